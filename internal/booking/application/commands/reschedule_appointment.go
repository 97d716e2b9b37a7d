package commands

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/therapia/internal/booking/domain"
	identity "github.com/felixgeelhaar/therapia/internal/identity/domain"
	sharedApplication "github.com/felixgeelhaar/therapia/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

// RescheduleAppointmentCommand moves a confirmed appointment to a new time
// of the same service.
type RescheduleAppointmentCommand struct {
	Actor         identity.Actor
	AppointmentID uuid.UUID
	NewSlot       SlotRequest
}

// RescheduleAppointmentResult describes the moved appointment.
type RescheduleAppointmentResult struct {
	AppointmentID uuid.UUID
	Status        domain.Status
	OldSlot       sharedDomain.TimeSlot
	NewSlot       sharedDomain.TimeSlot
}

// RescheduleAppointmentHandler handles RescheduleAppointmentCommand.
type RescheduleAppointmentHandler struct {
	deps Deps
}

// NewRescheduleAppointmentHandler creates a new RescheduleAppointmentHandler.
func NewRescheduleAppointmentHandler(deps Deps) *RescheduleAppointmentHandler {
	return &RescheduleAppointmentHandler{deps: deps}
}

// Handle moves the appointment without charging again. The calendar event
// is moved asynchronously by the rescheduled event's subscriber.
func (h *RescheduleAppointmentHandler) Handle(ctx context.Context, cmd RescheduleAppointmentCommand) (result *RescheduleAppointmentResult, err error) {
	ctx, span := tracer.Start(ctx, "booking.RescheduleAppointment", trace.WithAttributes(
		attribute.String("appointment_id", cmd.AppointmentID.String()),
	))
	defer func() { endSpan(span, err) }()

	err = sharedApplication.WithDeadline(ctx, h.deps.Timeout, func(ctx context.Context) error {
		a, err := h.deps.Appointments.FindByID(ctx, cmd.AppointmentID)
		if err != nil {
			return err
		}
		if err := authorize(cmd.Actor, a); err != nil {
			return err
		}

		return h.deps.Availability.WithServiceLock(ctx, a.ServiceID(), func(ctx context.Context) error {
			return sharedApplication.WithUnitOfWork(ctx, h.deps.UoW, func(txCtx context.Context) error {
				result, err = h.reschedule(txCtx, cmd)
				return err
			})
		})
	})
	if err != nil {
		return nil, err
	}

	h.deps.logger().Info("appointment rescheduled",
		"appointment_id", result.AppointmentID,
		"old_start", result.OldSlot.Start(),
		"new_start", result.NewSlot.Start(),
	)
	return result, nil
}

func (h *RescheduleAppointmentHandler) reschedule(ctx context.Context, cmd RescheduleAppointmentCommand) (*RescheduleAppointmentResult, error) {
	// Reload under the lock so the version check sees concurrent writers.
	a, err := h.deps.Appointments.FindByID(ctx, cmd.AppointmentID)
	if err != nil {
		return nil, err
	}
	svc, err := h.deps.Services.FindByID(ctx, a.ServiceID())
	if err != nil {
		return nil, err
	}
	newSlot, err := resolveSlot(ctx, h.deps.Slots, svc, cmd.NewSlot)
	if err != nil {
		return nil, err
	}

	now := h.deps.Clock.Now()
	oldSlot := a.Slot()
	if err := a.Reschedule(newSlot, svc, now); err != nil {
		return nil, err
	}
	if err := a.ConfirmRescheduled(svc, now); err != nil {
		return nil, err
	}
	if err := h.deps.Availability.ReplaceSlot(ctx, a, oldSlot); err != nil {
		return nil, err
	}
	md := sharedApplication.NewEventMetadata(cmd.Actor.UserID, uuid.Nil)
	if err := sharedApplication.RecordAggregateEvents(ctx, h.deps.Recorder, a, md); err != nil {
		return nil, err
	}

	return &RescheduleAppointmentResult{
		AppointmentID: a.ID(),
		Status:        a.Status(),
		OldSlot:       oldSlot,
		NewSlot:       a.Slot(),
	}, nil
}
