package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

const (
	AggregateType = "payment"

	RoutingKeyPaymentSucceeded = "payments.payment.succeeded"
	RoutingKeyPaymentFailed    = "payments.payment.failed"
	RoutingKeyPaymentRefunded  = "payments.payment.refunded"
	RoutingKeyRefundFailed     = "payments.refund.failed"
	RoutingKeyPaymentOrphaned  = "payments.payment.orphaned"
)

// PaymentSucceeded is emitted when the provider confirms the charge.
type PaymentSucceeded struct {
	sharedDomain.BaseEvent
	PaymentID         string `json:"payment_id"`
	AppointmentID     string `json:"appointment_id"`
	ProviderPaymentID string `json:"provider_payment_id"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
}

func NewPaymentSucceeded(p *Payment, now time.Time) *PaymentSucceeded {
	return &PaymentSucceeded{
		BaseEvent:         sharedDomain.NewBaseEvent(p.ID(), AggregateType, RoutingKeyPaymentSucceeded, now),
		PaymentID:         p.ID().String(),
		AppointmentID:     p.appointmentID.String(),
		ProviderPaymentID: p.providerPaymentID,
		Amount:            p.amount.AmountString(),
		Currency:          p.amount.Currency(),
	}
}

// PaymentFailed is emitted when the provider rejects or cancels the charge.
type PaymentFailed struct {
	sharedDomain.BaseEvent
	PaymentID         string `json:"payment_id"`
	AppointmentID     string `json:"appointment_id"`
	ProviderPaymentID string `json:"provider_payment_id"`
	Reason            string `json:"reason"`
}

func NewPaymentFailed(p *Payment, now time.Time) *PaymentFailed {
	return &PaymentFailed{
		BaseEvent:         sharedDomain.NewBaseEvent(p.ID(), AggregateType, RoutingKeyPaymentFailed, now),
		PaymentID:         p.ID().String(),
		AppointmentID:     p.appointmentID.String(),
		ProviderPaymentID: p.providerPaymentID,
		Reason:            p.failureReason,
	}
}

// PaymentRefunded is emitted after the gateway accepted a refund.
type PaymentRefunded struct {
	sharedDomain.BaseEvent
	PaymentID     string `json:"payment_id"`
	AppointmentID string `json:"appointment_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
}

func NewPaymentRefunded(p *Payment, now time.Time) *PaymentRefunded {
	e := &PaymentRefunded{
		BaseEvent:     sharedDomain.NewBaseEvent(p.ID(), AggregateType, RoutingKeyPaymentRefunded, now),
		PaymentID:     p.ID().String(),
		AppointmentID: p.appointmentID.String(),
		Currency:      p.amount.Currency(),
	}
	if p.refundedAmount != nil {
		e.Amount = p.refundedAmount.AmountString()
	}
	return e
}

// RefundFailed is emitted when the gateway refused or could not be reached.
type RefundFailed struct {
	sharedDomain.BaseEvent
	PaymentID     string `json:"payment_id"`
	AppointmentID string `json:"appointment_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason"`
}

func NewRefundFailed(p *Payment, amount sharedDomain.Money, reason string, now time.Time) *RefundFailed {
	return &RefundFailed{
		BaseEvent:     sharedDomain.NewBaseEvent(p.ID(), AggregateType, RoutingKeyRefundFailed, now),
		PaymentID:     p.ID().String(),
		AppointmentID: p.appointmentID.String(),
		Amount:        amount.AmountString(),
		Currency:      amount.Currency(),
		Reason:        reason,
	}
}

// PaymentOrphaned is emitted when a charge succeeded for an appointment that
// was canceled before payment. The money is held until an operator acts.
type PaymentOrphaned struct {
	sharedDomain.BaseEvent
	PaymentID         string `json:"payment_id"`
	AppointmentID     string `json:"appointment_id"`
	ProviderPaymentID string `json:"provider_payment_id"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	Reason            string `json:"reason"`
}

func NewPaymentOrphaned(p *Payment, reason string, now time.Time) *PaymentOrphaned {
	return &PaymentOrphaned{
		BaseEvent:         sharedDomain.NewBaseEvent(p.ID(), AggregateType, RoutingKeyPaymentOrphaned, now),
		PaymentID:         p.ID().String(),
		AppointmentID:     p.appointmentID.String(),
		ProviderPaymentID: p.providerPaymentID,
		Amount:            p.amount.AmountString(),
		Currency:          p.amount.Currency(),
		Reason:            reason,
	}
}
