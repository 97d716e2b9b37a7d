package app

import (
	"context"

	bookingSubscribers "github.com/felixgeelhaar/therapia/internal/booking/application/subscribers"
	notificationSubscribers "github.com/felixgeelhaar/therapia/internal/notifications/application/subscribers"
	paymentSubscribers "github.com/felixgeelhaar/therapia/internal/payments/application/subscribers"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/eventbus"
	waitlistSubscribers "github.com/felixgeelhaar/therapia/internal/waitlist/application/subscribers"
	"github.com/felixgeelhaar/therapia/pkg/observability"
)

// Consumer names key the processed_events table. Renaming one replays every
// retained event to it.
const (
	ConsumerPaymentSucceeded    = "booking.payment_succeeded"
	ConsumerCalendarReschedule  = "booking.calendar_reschedule"
	ConsumerRefund              = "payments.refund"
	ConsumerWaitlistMatcher     = "waitlist.opening_matcher"
	ConsumerWaitlistOpportunity = "notifications.waitlist_opportunity"
	ConsumerOpsAlerts           = "notifications.ops_alerts"
)

// Consumers builds every subscriber, each wrapped for deduplication and
// metrics, keyed by its stable name.
func Consumers(c *Container) map[string]eventbus.EventConsumer {
	r := c.Repos
	sync := bookingSubscribers.NewCalendarSync(
		c.Calendar.Adapter,
		r.Appointments,
		r.Services,
		c.Recorder,
		c.UnitOfWork,
		c.Clock,
		c.CalendarBackoff(),
		c.Logger,
	)

	inner := map[string]eventbus.EventConsumer{
		ConsumerPaymentSucceeded:   bookingSubscribers.NewPaymentSucceededSubscriber(c.ConfirmPaymentHandler, sync, c.Logger),
		ConsumerCalendarReschedule: bookingSubscribers.NewAppointmentRescheduledSubscriber(sync, c.Logger),
		ConsumerRefund: paymentSubscribers.NewRefundSubscriber(
			c.Gateway, r.Payments, c.Recorder, c.UnitOfWork, c.Clock, c.Logger,
		),
		ConsumerWaitlistMatcher: waitlistSubscribers.NewOpeningMatcher(
			r.Waitlist, c.Recorder, c.UnitOfWork, c.Clock, c.Logger,
		),
		ConsumerWaitlistOpportunity: notificationSubscribers.NewWaitlistOpportunitySubscriber(
			c.Notifier, r.Waitlist, r.Services, c.Logger,
		),
		ConsumerOpsAlerts: notificationSubscribers.NewOpsAlertSubscriber(c.Notifier, c.Config.OpsEmail, c.Logger),
	}

	out := make(map[string]eventbus.EventConsumer, len(inner))
	for name, consumer := range inner {
		idempotent := eventbus.NewIdempotentConsumer(name, consumer, r.Processed, c.Logger)
		out[name] = &meteredConsumer{name: name, next: idempotent, metrics: c.Metrics}
	}
	return out
}

// RegisterConsumers hands every subscriber to register, in a fixed order so
// that confirmation runs before the waitlist and notification fan-out.
func RegisterConsumers(c *Container, register func(eventbus.EventConsumer)) {
	consumers := Consumers(c)
	for _, name := range []string{
		ConsumerPaymentSucceeded,
		ConsumerCalendarReschedule,
		ConsumerRefund,
		ConsumerWaitlistMatcher,
		ConsumerWaitlistOpportunity,
		ConsumerOpsAlerts,
	} {
		register(consumers[name])
	}
}

type meteredConsumer struct {
	name    string
	next    eventbus.EventConsumer
	metrics observability.Metrics
}

func (m *meteredConsumer) EventTypes() []string { return m.next.EventTypes() }

func (m *meteredConsumer) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	err := m.next.Handle(ctx, event)
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.metrics.Counter(observability.MetricEventsConsumed, 1,
		observability.T("consumer", m.name),
		observability.T("routing_key", event.RoutingKey),
		observability.T("status", status),
	)
	return err
}

type meteredPublisher struct {
	next    eventbus.Publisher
	metrics observability.Metrics
}

func (m *meteredPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	err := m.next.Publish(ctx, routingKey, payload)
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.metrics.Counter(observability.MetricEventsPublished, 1,
		observability.T("routing_key", routingKey),
		observability.T("status", status),
	)
	return err
}

func (m *meteredPublisher) Close() error { return m.next.Close() }
