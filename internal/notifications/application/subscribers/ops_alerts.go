// Package subscribers turns domain events into emails.
package subscribers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/felixgeelhaar/therapia/internal/notifications/domain"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/eventbus"
)

const (
	RoutingKeyCalendarSyncFailed = "booking.calendar.sync_failed"
	RoutingKeyRefundFailed       = "payments.refund.failed"
	RoutingKeyPaymentOrphaned    = "payments.payment.orphaned"
)

type alertPayload struct {
	AppointmentID string `json:"appointment_id"`
	PaymentID     string `json:"payment_id"`
	Operation     string `json:"operation"`
	Attempts      int    `json:"attempts"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason"`
	Error         string `json:"error"`
}

// OpsAlertSubscriber emails the practice's operator when a side effect
// failed and needs a human.
type OpsAlertSubscriber struct {
	notifier domain.Notifier
	opsEmail string
	logger   *slog.Logger
}

// NewOpsAlertSubscriber creates the subscriber. Alerts are only logged when
// opsEmail is empty.
func NewOpsAlertSubscriber(notifier domain.Notifier, opsEmail string, logger *slog.Logger) *OpsAlertSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpsAlertSubscriber{notifier: notifier, opsEmail: opsEmail, logger: logger}
}

// EventTypes implements eventbus.EventConsumer.
func (s *OpsAlertSubscriber) EventTypes() []string {
	return []string{RoutingKeyCalendarSyncFailed, RoutingKeyRefundFailed, RoutingKeyPaymentOrphaned}
}

// Handle implements eventbus.EventConsumer.
func (s *OpsAlertSubscriber) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var p alertPayload
	if err := event.Decode(&p); err != nil {
		s.logger.Error("undecodable alert event", "event_id", event.EventID, "error", err)
		return nil
	}
	msg := alertMessage(event.RoutingKey, p)
	s.logger.Warn("operator alert",
		"routing_key", event.RoutingKey,
		"event_id", event.EventID,
		"appointment_id", p.AppointmentID,
	)
	if s.opsEmail == "" {
		return nil
	}
	msg.To = s.opsEmail
	return s.notifier.Send(ctx, msg)
}

func alertMessage(routingKey string, p alertPayload) domain.Message {
	var b strings.Builder
	var subject string
	switch routingKey {
	case RoutingKeyCalendarSyncFailed:
		subject = "Calendar sync failed for appointment " + p.AppointmentID
		fmt.Fprintf(&b, "The calendar could not be updated (%s) after %d attempts.\n", p.Operation, p.Attempts)
		fmt.Fprintf(&b, "Appointment: %s\nError: %s\n", p.AppointmentID, p.Error)
		b.WriteString("The appointment itself is unaffected. Please update the calendar by hand.\n")
	case RoutingKeyPaymentOrphaned:
		subject = "Payment received for canceled appointment " + p.AppointmentID
		fmt.Fprintf(&b, "A payment of %s %s succeeded after the appointment was canceled.\n", p.Amount, p.Currency)
		fmt.Fprintf(&b, "Appointment: %s\nPayment: %s\n", p.AppointmentID, p.PaymentID)
		b.WriteString("Please refund the client from the payment provider's dashboard.\n")
	default:
		subject = "Refund failed for appointment " + p.AppointmentID
		fmt.Fprintf(&b, "A refund of %s %s could not be executed.\n", p.Amount, p.Currency)
		fmt.Fprintf(&b, "Appointment: %s\nPayment: %s\nReason: %s\n", p.AppointmentID, p.PaymentID, p.Reason)
		b.WriteString("Please issue the refund from the payment provider's dashboard.\n")
	}
	return domain.Message{ToName: "Practice operations", Subject: subject, Body: b.String()}
}
