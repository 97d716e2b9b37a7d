// Package subscribers reacts to payment and booking events: confirming paid
// appointments and keeping the external calendar in step.
package subscribers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/therapia/internal/booking/domain"
	calendarApp "github.com/felixgeelhaar/therapia/internal/calendar/application"
	calendar "github.com/felixgeelhaar/therapia/internal/calendar/domain"
	catalog "github.com/felixgeelhaar/therapia/internal/catalog/domain"
	sharedApplication "github.com/felixgeelhaar/therapia/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

// Calendar sync operations reported in booking.calendar.sync_failed.
const (
	OperationCreate = "create"
	OperationMove   = "move"
)

// CalendarSync writes confirmed appointments to the external calendar.
type CalendarSync struct {
	calendar     calendar.Adapter
	appointments domain.Repository
	services     catalog.ServiceRepository
	recorder     sharedApplication.EventRecorder
	uow          sharedApplication.UnitOfWork
	clock        sharedDomain.Clock
	backoff      calendarApp.Backoff
	logger       *slog.Logger
}

// NewCalendarSync creates a CalendarSync.
func NewCalendarSync(
	cal calendar.Adapter,
	appointments domain.Repository,
	services catalog.ServiceRepository,
	recorder sharedApplication.EventRecorder,
	uow sharedApplication.UnitOfWork,
	clock sharedDomain.Clock,
	backoff calendarApp.Backoff,
	logger *slog.Logger,
) *CalendarSync {
	if logger == nil {
		logger = slog.Default()
	}
	return &CalendarSync{
		calendar:     cal,
		appointments: appointments,
		services:     services,
		recorder:     recorder,
		uow:          uow,
		clock:        clock,
		backoff:      backoff,
		logger:       logger,
	}
}

// Create adds a calendar event for a confirmed appointment that has none.
func (s *CalendarSync) Create(ctx context.Context, appointmentID uuid.UUID, md sharedDomain.EventMetadata) error {
	a, err := s.appointments.FindByID(ctx, appointmentID)
	if err != nil {
		return err
	}
	if !a.IsConfirmed() || a.CalendarEventID() != "" {
		return nil
	}
	return s.sync(ctx, a, OperationCreate, md)
}

// Move replaces the calendar event of a rescheduled appointment with one at
// its current slot.
func (s *CalendarSync) Move(ctx context.Context, appointmentID uuid.UUID, md sharedDomain.EventMetadata) error {
	a, err := s.appointments.FindByID(ctx, appointmentID)
	if err != nil {
		return err
	}
	if !a.IsConfirmed() {
		return nil
	}
	if old := a.CalendarEventID(); old != "" {
		err := calendarApp.Retry(ctx, s.backoff, func(ctx context.Context) error {
			return calendar.Classify(s.calendar.DeleteEvent(ctx, old))
		})
		if err != nil {
			s.logger.Warn("failed to delete old calendar event",
				"appointment_id", a.ID(),
				"calendar_event_id", old,
				"error", err,
			)
		}
	}
	return s.sync(ctx, a, OperationMove, md)
}

func (s *CalendarSync) sync(ctx context.Context, a *domain.Appointment, operation string, md sharedDomain.EventMetadata) error {
	svc, err := s.services.FindByID(ctx, a.ServiceID())
	if err != nil {
		return err
	}

	attempts := 0
	var eventID string
	err = calendarApp.Retry(ctx, s.backoff, func(ctx context.Context) error {
		attempts++
		id, err := s.calendar.CreateEvent(ctx, calendar.EventRequest{
			AppointmentID: a.ID(),
			Slot:          a.Slot(),
			Summary:       svc.Name(),
			Description:   fmt.Sprintf("%s (%s)", svc.Name(), a.Format()),
		})
		if err != nil {
			return calendar.Classify(err)
		}
		eventID = id
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return err
	}

	now := s.clock.Now()
	return sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		current, findErr := s.appointments.FindByID(txCtx, a.ID())
		if findErr != nil {
			return findErr
		}
		if err == nil && !current.IsConfirmed() {
			// Canceled while the event was being created.
			if delErr := s.calendar.DeleteEvent(txCtx, eventID); delErr != nil {
				s.logger.Warn("failed to delete calendar event of canceled appointment",
					"appointment_id", a.ID(),
					"calendar_event_id", eventID,
					"error", delErr,
				)
			}
			return nil
		}
		if err != nil {
			s.logger.Error("calendar sync failed",
				"appointment_id", a.ID(),
				"operation", operation,
				"attempts", attempts,
				"error", err,
			)
			current.RecordCalendarSyncFailure(operation, err, attempts, now)
			if operation == OperationMove {
				current.SetCalendarEventID("", now)
			}
		} else {
			current.SetCalendarEventID(eventID, now)
			s.logger.Info("calendar event stored",
				"appointment_id", a.ID(),
				"calendar_event_id", eventID,
				"operation", operation,
			)
		}
		if saveErr := s.appointments.Save(txCtx, current); saveErr != nil {
			return saveErr
		}
		return sharedApplication.RecordAggregateEvents(txCtx, s.recorder, current, md)
	})
}
