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

// RecordOutcomeCommand closes an appointment after its session.
type RecordOutcomeCommand struct {
	Actor         identity.Actor
	AppointmentID uuid.UUID
	Outcome       string
	Notes         string
}

// RecordOutcomeResult is the closed appointment state. Refund is set for
// canceled outcomes.
type RecordOutcomeResult struct {
	Status  domain.Status
	Outcome domain.Outcome
	Refund  *domain.RefundDecision
}

// RecordOutcomeHandler handles RecordOutcomeCommand.
type RecordOutcomeHandler struct {
	deps Deps
}

// NewRecordOutcomeHandler creates a new RecordOutcomeHandler.
func NewRecordOutcomeHandler(deps Deps) *RecordOutcomeHandler {
	return &RecordOutcomeHandler{deps: deps}
}

// Handle executes the command. Only admins record outcomes.
func (h *RecordOutcomeHandler) Handle(ctx context.Context, cmd RecordOutcomeCommand) (result *RecordOutcomeResult, err error) {
	ctx, span := tracer.Start(ctx, "booking.RecordOutcome", trace.WithAttributes(
		attribute.String("appointment_id", cmd.AppointmentID.String()),
		attribute.String("outcome", cmd.Outcome),
	))
	defer func() { endSpan(span, err) }()

	if !cmd.Actor.IsAdmin() {
		return nil, sharedDomain.ErrForbidden
	}
	outcome, err := domain.ParseOutcome(cmd.Outcome)
	if err != nil {
		return nil, err
	}

	err = sharedApplication.WithDeadline(ctx, h.deps.Timeout, func(ctx context.Context) error {
		return sharedApplication.WithUnitOfWork(ctx, h.deps.UoW, func(txCtx context.Context) error {
			a, err := h.deps.Appointments.FindByID(txCtx, cmd.AppointmentID)
			if err != nil {
				return err
			}
			svc, err := h.deps.Services.FindByID(txCtx, a.ServiceID())
			if err != nil {
				return err
			}
			refund, err := a.RecordOutcome(outcome, cmd.Notes, svc, h.deps.Clock.Now())
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
			result = &RecordOutcomeResult{Status: a.Status(), Outcome: a.Outcome(), Refund: refund}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
