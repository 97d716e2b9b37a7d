// Package subscribers executes refunds decided by the booking cancellation
// policy.
package subscribers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/therapia/internal/payments/domain"
	sharedApplication "github.com/felixgeelhaar/therapia/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/eventbus"
)

// RoutingKeyAppointmentCanceled is the booking event carrying refund decisions.
const RoutingKeyAppointmentCanceled = "booking.appointment.canceled"

// canceledPayload is the part of booking.appointment.canceled a refund needs.
type canceledPayload struct {
	AppointmentID string `json:"appointment_id"`
	PaymentID     string `json:"payment_id"`
	RefundStatus  string `json:"refund_status"`
	RefundAmount  string `json:"refund_amount"`
	Currency      string `json:"currency"`
}

// RefundSubscriber returns money through the gateway after a cancellation.
type RefundSubscriber struct {
	gateway  domain.Gateway
	payments domain.Repository
	recorder sharedApplication.EventRecorder
	uow      sharedApplication.UnitOfWork
	clock    sharedDomain.Clock
	logger   *slog.Logger
}

// NewRefundSubscriber creates the subscriber.
func NewRefundSubscriber(
	gateway domain.Gateway,
	payments domain.Repository,
	recorder sharedApplication.EventRecorder,
	uow sharedApplication.UnitOfWork,
	clock sharedDomain.Clock,
	logger *slog.Logger,
) *RefundSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefundSubscriber{
		gateway:  gateway,
		payments: payments,
		recorder: recorder,
		uow:      uow,
		clock:    clock,
		logger:   logger,
	}
}

// EventTypes implements eventbus.EventConsumer.
func (s *RefundSubscriber) EventTypes() []string {
	return []string{RoutingKeyAppointmentCanceled}
}

// Handle implements eventbus.EventConsumer. Gateway failures are not
// retried here; they raise payments.refund.failed for an operator.
func (s *RefundSubscriber) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var payload canceledPayload
	if err := event.Decode(&payload); err != nil {
		s.logger.Error("undecodable cancellation event", "event_id", event.EventID, "error", err)
		return nil
	}
	if payload.RefundAmount == "" || payload.PaymentID == "" {
		return nil
	}
	paymentID, err := uuid.Parse(payload.PaymentID)
	if err != nil {
		s.logger.Error("cancellation event has an invalid payment id", "event_id", event.EventID, "payment_id", payload.PaymentID)
		return nil
	}
	amount, err := sharedDomain.ParseMoney(payload.RefundAmount, payload.Currency)
	if err != nil {
		s.logger.Error("cancellation event has an invalid refund amount", "event_id", event.EventID, "error", err)
		return nil
	}

	p, err := s.payments.FindByID(ctx, paymentID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		s.logger.Error("cancellation event for unknown payment", "event_id", event.EventID, "payment_id", paymentID)
		return nil
	}
	if err != nil {
		return err
	}
	if p.Status() == domain.StatusRefunded {
		return nil
	}

	md := sharedApplication.CausedBy(event.EventID, event.Metadata)
	var refundErr error
	if !p.CanRefund(amount) {
		refundErr = domain.ErrRefundExceedsPaid.WithMessage("payment %s cannot refund %s in status %s", p.ID(), amount, p.Status())
	} else {
		refundErr = s.gateway.Refund(ctx, domain.RefundRequest{
			ProviderPaymentID: p.ProviderPaymentID(),
			Amount:            amount,
			IdempotencyKey:    "refund:" + event.EventID.String(),
		})
	}

	return sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		current, err := s.payments.FindByID(txCtx, paymentID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if refundErr != nil {
			s.logger.Error("refund failed",
				"payment_id", paymentID,
				"appointment_id", payload.AppointmentID,
				"amount", amount.String(),
				"error", refundErr,
			)
			current.RecordRefundFailure(amount, refundErr.Error(), now)
			return sharedApplication.RecordAggregateEvents(txCtx, s.recorder, current, md)
		}

		if err := current.MarkRefunded(amount, now); err != nil {
			return err
		}
		if err := s.payments.Save(txCtx, current); err != nil {
			return err
		}
		s.logger.Info("payment refunded",
			"payment_id", paymentID,
			"appointment_id", payload.AppointmentID,
			"amount", amount.String(),
			"refund_status", payload.RefundStatus,
		)
		return sharedApplication.RecordAggregateEvents(txCtx, s.recorder, current, md)
	})
}
