package commands

import (
	"context"
	"time"

	"github.com/felixgeelhaar/therapia/internal/availability/domain"
	catalog "github.com/felixgeelhaar/therapia/internal/catalog/domain"
	identity "github.com/felixgeelhaar/therapia/internal/identity/domain"
	sharedApplication "github.com/felixgeelhaar/therapia/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/google/uuid"
)

// RecurrenceInput describes how a window repeats.
type RecurrenceInput struct {
	Frequency string
	Interval  int
	EndDate   time.Time
}

// CreateAvailabilityCommand declares one window, or a recurring series of
// windows, in which bookings are accepted. A nil ServiceID creates global
// slots usable by every service.
type CreateAvailabilityCommand struct {
	Actor      identity.Actor
	ServiceID  *uuid.UUID
	Start      time.Time
	End        time.Time
	TZ         string
	Recurrence *RecurrenceInput
}

// CreateAvailabilityResult lists the slots that were created.
type CreateAvailabilityResult struct {
	SlotIDs []uuid.UUID
}

// CreateAvailabilityHandler handles CreateAvailabilityCommand.
type CreateAvailabilityHandler struct {
	slots    domain.Repository
	services catalog.ServiceRepository
	uow      sharedApplication.UnitOfWork
	clock    sharedDomain.Clock
	ids      sharedDomain.IDGenerator
}

// NewCreateAvailabilityHandler creates a new CreateAvailabilityHandler.
func NewCreateAvailabilityHandler(
	slots domain.Repository,
	services catalog.ServiceRepository,
	uow sharedApplication.UnitOfWork,
	clock sharedDomain.Clock,
	ids sharedDomain.IDGenerator,
) *CreateAvailabilityHandler {
	return &CreateAvailabilityHandler{slots: slots, services: services, uow: uow, clock: clock, ids: ids}
}

// Handle executes the command.
func (h *CreateAvailabilityHandler) Handle(ctx context.Context, cmd CreateAvailabilityCommand) (*CreateAvailabilityResult, error) {
	if !cmd.Actor.IsAdmin() {
		return nil, sharedDomain.ErrForbidden
	}

	first, err := sharedDomain.NewTimeSlot(cmd.Start, cmd.End, cmd.TZ)
	if err != nil {
		return nil, err
	}
	var rec *domain.Recurrence
	if cmd.Recurrence != nil {
		rec = &domain.Recurrence{
			Frequency: domain.Frequency(cmd.Recurrence.Frequency),
			Interval:  cmd.Recurrence.Interval,
			EndDate:   cmd.Recurrence.EndDate,
		}
	}
	windows, err := domain.Expand(first, rec)
	if err != nil {
		return nil, err
	}

	if cmd.ServiceID != nil {
		if _, err := h.services.FindByID(ctx, *cmd.ServiceID); err != nil {
			return nil, err
		}
	}

	now := h.clock.Now()
	slots := make([]*domain.Slot, 0, len(windows))
	result := &CreateAvailabilityResult{SlotIDs: make([]uuid.UUID, 0, len(windows))}
	for _, w := range windows {
		slot := domain.NewSlot(h.ids.NewID(), cmd.ServiceID, w, now)
		slots = append(slots, slot)
		result.SlotIDs = append(result.SlotIDs, slot.ID())
	}

	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		return h.slots.SaveBatch(txCtx, slots)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
