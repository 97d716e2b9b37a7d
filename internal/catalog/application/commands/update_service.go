package commands

import (
	"context"

	"github.com/felixgeelhaar/therapia/internal/catalog/domain"
	identity "github.com/felixgeelhaar/therapia/internal/identity/domain"
	sharedApplication "github.com/felixgeelhaar/therapia/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/google/uuid"
)

// UpdateServiceCommand replaces a service's attributes. Active toggles
// whether new bookings are accepted.
type UpdateServiceCommand struct {
	Actor     identity.Actor
	ServiceID uuid.UUID
	Active    *bool
	ServiceInput
}

// UpdateServiceHandler handles UpdateServiceCommand.
type UpdateServiceHandler struct {
	repo     domain.ServiceRepository
	recorder sharedApplication.EventRecorder
	uow      sharedApplication.UnitOfWork
	clock    sharedDomain.Clock
}

// NewUpdateServiceHandler creates a new UpdateServiceHandler.
func NewUpdateServiceHandler(
	repo domain.ServiceRepository,
	recorder sharedApplication.EventRecorder,
	uow sharedApplication.UnitOfWork,
	clock sharedDomain.Clock,
) *UpdateServiceHandler {
	return &UpdateServiceHandler{repo: repo, recorder: recorder, uow: uow, clock: clock}
}

// Handle executes the command.
func (h *UpdateServiceHandler) Handle(ctx context.Context, cmd UpdateServiceCommand) error {
	if !cmd.Actor.IsAdmin() {
		return sharedDomain.ErrForbidden
	}
	params, err := cmd.params()
	if err != nil {
		return err
	}

	now := h.clock.Now()
	return sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		svc, err := h.repo.FindByID(txCtx, cmd.ServiceID)
		if err != nil {
			return err
		}
		if err := svc.Update(params, now); err != nil {
			return err
		}
		if cmd.Active != nil {
			svc.SetActive(*cmd.Active, now)
		}
		if err := h.repo.Save(txCtx, svc); err != nil {
			return err
		}
		md := sharedApplication.NewEventMetadata(cmd.Actor.UserID, uuid.Nil)
		return sharedApplication.RecordAggregateEvents(txCtx, h.recorder, svc, md)
	})
}
