package commands

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/therapia/internal/booking/domain"
	calendar "github.com/felixgeelhaar/therapia/internal/calendar/domain"
	identity "github.com/felixgeelhaar/therapia/internal/identity/domain"
	sharedApplication "github.com/felixgeelhaar/therapia/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

// CancelAppointmentCommand cancels an appointment.
type CancelAppointmentCommand struct {
	Actor         identity.Actor
	AppointmentID uuid.UUID
	Reason        string
	Details       string
}

// CancelAppointmentResult carries the refund decision. The refund itself
// runs asynchronously.
type CancelAppointmentResult struct {
	Status       domain.Status
	RefundStatus domain.RefundStatus
	RefundAmount *sharedDomain.Money
}

// CancelAppointmentHandler handles CancelAppointmentCommand.
type CancelAppointmentHandler struct {
	deps Deps
}

// NewCancelAppointmentHandler creates a new CancelAppointmentHandler.
func NewCancelAppointmentHandler(deps Deps) *CancelAppointmentHandler {
	return &CancelAppointmentHandler{deps: deps}
}

// Handle cancels the appointment under the service's refund policy. Admins
// cancel as the provider and always refund in full.
func (h *CancelAppointmentHandler) Handle(ctx context.Context, cmd CancelAppointmentCommand) (result *CancelAppointmentResult, err error) {
	ctx, span := tracer.Start(ctx, "booking.CancelAppointment", trace.WithAttributes(
		attribute.String("appointment_id", cmd.AppointmentID.String()),
	))
	defer func() { endSpan(span, err) }()

	var calendarEventID string
	err = sharedApplication.WithDeadline(ctx, h.deps.Timeout, func(ctx context.Context) error {
		return sharedApplication.WithUnitOfWork(ctx, h.deps.UoW, func(txCtx context.Context) error {
			a, err := h.deps.Appointments.FindByID(txCtx, cmd.AppointmentID)
			if err != nil {
				return err
			}
			if err := authorize(cmd.Actor, a); err != nil {
				return err
			}
			svc, err := h.deps.Services.FindByID(txCtx, a.ServiceID())
			if err != nil {
				return err
			}

			decision, err := a.Cancel(domain.CancelParams{
				Reason:    cmd.Reason,
				Details:   cmd.Details,
				Initiator: initiatorOf(cmd.Actor),
			}, svc, h.deps.Clock.Now())
			if err != nil {
				return err
			}
			if err := h.deps.Appointments.Save(txCtx, a); err != nil {
				return err
			}
			md := sharedApplication.NewEventMetadata(cmd.Actor.UserID, uuid.Nil)
			if err := sharedApplication.RecordAggregateEvents(txCtx, h.deps.Recorder, a, md); err != nil {
				return err
			}

			calendarEventID = a.CalendarEventID()
			result = &CancelAppointmentResult{
				Status:       a.Status(),
				RefundStatus: decision.Status,
				RefundAmount: decision.Amount,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	h.deps.logger().Info("appointment canceled",
		"appointment_id", cmd.AppointmentID,
		"refund_status", result.RefundStatus,
	)
	h.deleteCalendarEvent(ctx, cmd.AppointmentID, calendarEventID)
	return result, nil
}

// deleteCalendarEvent is best effort; a failure leaves a stale event in the
// practitioner's calendar and is only logged.
func (h *CancelAppointmentHandler) deleteCalendarEvent(ctx context.Context, appointmentID uuid.UUID, eventID string) {
	if eventID == "" || h.deps.Calendar == nil {
		return
	}
	if err := h.deps.Calendar.DeleteEvent(context.WithoutCancel(ctx), eventID); err != nil {
		h.deps.logger().Warn("failed to delete calendar event",
			"appointment_id", appointmentID,
			"calendar_event_id", eventID,
			"transient", calendar.IsTransient(calendar.Classify(err)),
			"error", err,
		)
	}
}
