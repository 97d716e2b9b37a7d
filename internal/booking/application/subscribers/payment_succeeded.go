package subscribers

import (
	"context"
	"log/slog"

	"github.com/felixgeelhaar/therapia/internal/booking/application/commands"
	"github.com/felixgeelhaar/therapia/internal/booking/domain"
	payments "github.com/felixgeelhaar/therapia/internal/payments/domain"
	sharedApplication "github.com/felixgeelhaar/therapia/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/eventbus"
)

// PaymentSucceededSubscriber confirms the paid appointment and creates its
// calendar event.
type PaymentSucceededSubscriber struct {
	confirm *commands.ConfirmPaymentHandler
	sync    *CalendarSync
	logger  *slog.Logger
}

// NewPaymentSucceededSubscriber creates the subscriber.
func NewPaymentSucceededSubscriber(confirm *commands.ConfirmPaymentHandler, sync *CalendarSync, logger *slog.Logger) *PaymentSucceededSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentSucceededSubscriber{confirm: confirm, sync: sync, logger: logger}
}

// EventTypes implements eventbus.EventConsumer.
func (s *PaymentSucceededSubscriber) EventTypes() []string {
	return []string{payments.RoutingKeyPaymentSucceeded}
}

// Handle implements eventbus.EventConsumer. The event's aggregate is the
// payment.
func (s *PaymentSucceededSubscriber) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	md := sharedApplication.CausedBy(event.EventID, event.Metadata)
	res, err := s.confirm.Handle(ctx, commands.ConfirmPaymentCommand{PaymentID: event.AggregateID, Metadata: md})
	if err != nil {
		return settle(s.logger, event, err)
	}
	if res.Status != domain.StatusConfirmed {
		return nil
	}
	return settle(s.logger, event, s.sync.Create(ctx, res.AppointmentID, md))
}

// settle decides whether a failed delivery is redelivered. Failures that
// cannot succeed on retry are logged and acknowledged.
func settle(logger *slog.Logger, event *eventbus.ConsumedEvent, err error) error {
	if err == nil {
		return nil
	}
	switch sharedDomain.CodeOf(err) {
	case sharedDomain.CodeUpstreamUnavailable, sharedDomain.CodeTimeout, sharedDomain.CodeInternal, sharedDomain.CodeConflict:
		return err
	}
	logger.Error("event dropped",
		"event_id", event.EventID,
		"routing_key", event.RoutingKey,
		"aggregate_id", event.AggregateID,
		"error", err,
	)
	return nil
}
