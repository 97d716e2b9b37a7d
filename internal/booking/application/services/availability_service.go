package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/therapia/internal/booking/domain"
	calendar "github.com/felixgeelhaar/therapia/internal/calendar/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/google/uuid"
)

// SlotLocker serializes critical sections per key across callers.
type SlotLocker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// AvailabilityService decides whether a time can be booked and performs the
// conflict-checked writes that reserve it.
type AvailabilityService struct {
	calendar     calendar.Adapter
	appointments domain.Repository
	locker       SlotLocker
	logger       *slog.Logger
}

// NewAvailabilityService creates the service.
func NewAvailabilityService(cal calendar.Adapter, appointments domain.Repository, locker SlotLocker, logger *slog.Logger) *AvailabilityService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AvailabilityService{
		calendar:     cal,
		appointments: appointments,
		locker:       locker,
		logger:       logger,
	}
}

// IsSlotAvailable reports whether the external calendar is free and no
// active appointment of the service overlaps slot.
func (s *AvailabilityService) IsSlotAvailable(ctx context.Context, slot sharedDomain.TimeSlot, serviceID uuid.UUID) (bool, error) {
	return s.isAvailable(ctx, slot, serviceID, uuid.Nil, true)
}

func (s *AvailabilityService) isAvailable(ctx context.Context, slot sharedDomain.TimeSlot, serviceID, exclude uuid.UUID, askCalendar bool) (bool, error) {
	if askCalendar {
		free, err := s.calendar.IsFree(ctx, slot)
		if err != nil {
			return false, fmt.Errorf("check calendar: %w", calendar.Classify(err))
		}
		if !free {
			s.logger.Debug("slot busy in external calendar",
				"service_id", serviceID,
				"start", slot.Start(),
			)
			return false, nil
		}
	}

	overlap, err := s.appointments.HasOverlap(ctx, serviceID, slot, exclude)
	if err != nil {
		return false, err
	}
	return !overlap, nil
}

// WithServiceLock runs fn while no other reservation of the service runs.
func (s *AvailabilityService) WithServiceLock(ctx context.Context, serviceID uuid.UUID, fn func(ctx context.Context) error) error {
	return s.locker.WithLock(ctx, "booking:service:"+serviceID.String(), fn)
}

// Reserve checks availability and inserts the appointment under the
// repository's atomic overlap check. Losing a race fails with
// domain.ErrSlotConflict and persists nothing.
func (s *AvailabilityService) Reserve(ctx context.Context, a *domain.Appointment) error {
	ok, err := s.IsSlotAvailable(ctx, a.Slot(), a.ServiceID())
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrSlotConflict
	}
	return s.appointments.Insert(ctx, a)
}

// ReplaceSlot persists a rescheduled appointment at its new slot. The
// appointment's own reservation never conflicts with the move; when the new
// slot overlaps the old one the calendar check is skipped because the
// calendar still shows the appointment's own event there.
func (s *AvailabilityService) ReplaceSlot(ctx context.Context, a *domain.Appointment, oldSlot sharedDomain.TimeSlot) error {
	askCalendar := !a.Slot().Overlaps(oldSlot)
	ok, err := s.isAvailable(ctx, a.Slot(), a.ServiceID(), a.ID(), askCalendar)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrSlotConflict
	}
	return s.appointments.UpdateSlot(ctx, a)
}
