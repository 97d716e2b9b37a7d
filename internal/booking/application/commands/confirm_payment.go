package commands

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/therapia/internal/booking/domain"
	sharedApplication "github.com/felixgeelhaar/therapia/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

// ConfirmPaymentCommand confirms the appointment a succeeded payment belongs to.
type ConfirmPaymentCommand struct {
	PaymentID uuid.UUID
	// Metadata links the confirmation to the event that triggered it.
	Metadata sharedDomain.EventMetadata
}

// ConfirmPaymentResult reports what the confirmation did.
type ConfirmPaymentResult struct {
	AppointmentID uuid.UUID
	Status        domain.Status
	// Changed is false when the appointment was already past pending_payment.
	Changed bool
}

// ConfirmPaymentHandler handles ConfirmPaymentCommand.
type ConfirmPaymentHandler struct {
	deps Deps
}

// NewConfirmPaymentHandler creates a new ConfirmPaymentHandler.
func NewConfirmPaymentHandler(deps Deps) *ConfirmPaymentHandler {
	return &ConfirmPaymentHandler{deps: deps}
}

// Handle is idempotent: an appointment that is no longer pending is left
// untouched.
func (h *ConfirmPaymentHandler) Handle(ctx context.Context, cmd ConfirmPaymentCommand) (result *ConfirmPaymentResult, err error) {
	ctx, span := tracer.Start(ctx, "booking.ConfirmPayment", trace.WithAttributes(
		attribute.String("payment_id", cmd.PaymentID.String()),
	))
	defer func() { endSpan(span, err) }()

	err = sharedApplication.WithDeadline(ctx, h.deps.Timeout, func(ctx context.Context) error {
		return sharedApplication.WithUnitOfWork(ctx, h.deps.UoW, func(txCtx context.Context) error {
			result, err = h.confirm(txCtx, cmd)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (h *ConfirmPaymentHandler) confirm(ctx context.Context, cmd ConfirmPaymentCommand) (*ConfirmPaymentResult, error) {
	payment, err := h.deps.Payments.FindByID(ctx, cmd.PaymentID)
	if err != nil {
		return nil, err
	}
	a, err := h.deps.Appointments.FindByID(ctx, payment.AppointmentID())
	if err != nil {
		return nil, err
	}

	if a.Status() != domain.StatusPendingPayment {
		if a.Status() == domain.StatusCanceled && payment.IsSucceeded() {
			h.deps.logger().Warn("payment succeeded for a canceled appointment",
				"appointment_id", a.ID(),
				"payment_id", payment.ID(),
				"amount", payment.Amount().String(),
			)
			payment.RecordOrphanedCapture("appointment canceled before payment", h.deps.Clock.Now())
			if err := sharedApplication.RecordAggregateEvents(ctx, h.deps.Recorder, payment, cmd.Metadata); err != nil {
				return nil, err
			}
		}
		return &ConfirmPaymentResult{AppointmentID: a.ID(), Status: a.Status()}, nil
	}

	svc, err := h.deps.Services.FindByID(ctx, a.ServiceID())
	if err != nil {
		return nil, err
	}
	if err := a.Confirm(payment, svc, h.deps.Clock.Now()); err != nil {
		return nil, err
	}
	if err := h.deps.Appointments.Save(ctx, a); err != nil {
		return nil, err
	}
	if err := sharedApplication.RecordAggregateEvents(ctx, h.deps.Recorder, a, cmd.Metadata); err != nil {
		return nil, err
	}

	h.deps.logger().Info("appointment confirmed",
		"appointment_id", a.ID(),
		"payment_id", payment.ID(),
	)
	return &ConfirmPaymentResult{AppointmentID: a.ID(), Status: a.Status(), Changed: true}, nil
}
