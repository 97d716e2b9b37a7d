package domain

import (
	"strings"
	"time"

	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/google/uuid"
)

var (
	ErrPaymentNotFound     = sharedDomain.NewNotFoundError("PAYMENT_NOT_FOUND", "payment not found")
	ErrInvalidTransition   = sharedDomain.NewConflictError("PAYMENT_INVALID_TRANSITION", "payment cannot make this transition")
	ErrRefundExceedsPaid   = sharedDomain.NewBusinessRuleError("REFUND_EXCEEDS_PAID", "refund exceeds the paid amount")
	ErrEmptyProviderID     = sharedDomain.NewValidationError("EMPTY_PROVIDER_PAYMENT_ID", "provider payment id is required")
	ErrDuplicateProviderID = sharedDomain.NewConflictError("DUPLICATE_PROVIDER_PAYMENT_ID", "provider payment id already recorded")
)

// Status is the lifecycle state of a payment.
type Status string

const (
	StatusIntent    Status = "intent"
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// ParseStatus validates a stored status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.TrimSpace(s)); st {
	case StatusIntent, StatusPending, StatusSucceeded, StatusFailed, StatusRefunded:
		return st, nil
	default:
		return "", ErrInvalidTransition.WithMessage("unknown payment status %q", s)
	}
}

// Payment is the money side of one appointment.
type Payment struct {
	sharedDomain.BaseAggregateRoot
	appointmentID     uuid.UUID
	amount            sharedDomain.Money
	status            Status
	provider          string
	providerPaymentID string
	paymentURL        string
	refundedAmount    *sharedDomain.Money
	failureReason     string
	confirmedAt       *time.Time
	refundedAt        *time.Time
}

// NewPayment creates a payment in the intent state.
func NewPayment(id, appointmentID uuid.UUID, amount sharedDomain.Money, provider string, now time.Time) *Payment {
	return &Payment{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(id, now),
		appointmentID:     appointmentID,
		amount:            amount,
		status:            StatusIntent,
		provider:          provider,
	}
}

// PaymentState is the persisted form of a payment.
type PaymentState struct {
	ID                uuid.UUID
	AppointmentID     uuid.UUID
	Amount            sharedDomain.Money
	Status            Status
	Provider          string
	ProviderPaymentID string
	PaymentURL        string
	RefundedAmount    *sharedDomain.Money
	FailureReason     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ConfirmedAt       *time.Time
	RefundedAt        *time.Time
	Version           int
}

// RehydratePayment recreates a payment from storage.
func RehydratePayment(s PaymentState) *Payment {
	return &Payment{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(
			sharedDomain.RehydrateBaseEntity(s.ID, s.CreatedAt, s.UpdatedAt), s.Version,
		),
		appointmentID:     s.AppointmentID,
		amount:            s.Amount,
		status:            s.Status,
		provider:          s.Provider,
		providerPaymentID: s.ProviderPaymentID,
		paymentURL:        s.PaymentURL,
		refundedAmount:    s.RefundedAmount,
		failureReason:     s.FailureReason,
		confirmedAt:       s.ConfirmedAt,
		refundedAt:        s.RefundedAt,
	}
}

func (p *Payment) AppointmentID() uuid.UUID                 { return p.appointmentID }
func (p *Payment) Amount() sharedDomain.Money               { return p.amount }
func (p *Payment) Status() Status                           { return p.status }
func (p *Payment) Provider() string                         { return p.provider }
func (p *Payment) ProviderPaymentID() string                { return p.providerPaymentID }
func (p *Payment) PaymentURL() string                       { return p.paymentURL }
func (p *Payment) RefundedAmount() *sharedDomain.Money      { return p.refundedAmount }
func (p *Payment) FailureReason() string                    { return p.failureReason }
func (p *Payment) ConfirmedAt() *time.Time                  { return p.confirmedAt }
func (p *Payment) RefundedAt() *time.Time                   { return p.refundedAt }
func (p *Payment) IsSucceeded() bool                        { return p.status == StatusSucceeded }
func (p *Payment) HasProvider() bool                        { return p.providerPaymentID != "" }
func (p *Payment) CanRefund(amount sharedDomain.Money) bool { return p.checkRefund(amount) == nil }

// AttachProvider records the gateway's intent and moves the payment to pending.
func (p *Payment) AttachProvider(providerPaymentID, paymentURL string, now time.Time) error {
	if p.status != StatusIntent {
		return ErrInvalidTransition.WithMessage("cannot attach provider to a %s payment", p.status)
	}
	providerPaymentID = strings.TrimSpace(providerPaymentID)
	if providerPaymentID == "" {
		return ErrEmptyProviderID
	}
	p.providerPaymentID = providerPaymentID
	p.paymentURL = paymentURL
	p.status = StatusPending
	p.Touch(now)
	return nil
}

// MarkSucceeded applies a provider success. The paid amount replaces the
// requested one. A repeated success reports changed == false.
func (p *Payment) MarkSucceeded(paid sharedDomain.Money, now time.Time) (changed bool, err error) {
	switch p.status {
	case StatusSucceeded:
		return false, nil
	case StatusPending:
	default:
		return false, ErrInvalidTransition.WithMessage("cannot mark a %s payment succeeded", p.status)
	}
	p.amount = paid
	p.status = StatusSucceeded
	p.confirmedAt = &now
	p.Touch(now)
	p.AddDomainEvent(NewPaymentSucceeded(p, now))
	return true, nil
}

// MarkFailed applies a provider failure or cancellation.
func (p *Payment) MarkFailed(reason string, now time.Time) (changed bool, err error) {
	switch p.status {
	case StatusFailed:
		return false, nil
	case StatusPending, StatusIntent:
	default:
		return false, ErrInvalidTransition.WithMessage("cannot mark a %s payment failed", p.status)
	}
	p.status = StatusFailed
	p.failureReason = reason
	p.Touch(now)
	p.AddDomainEvent(NewPaymentFailed(p, now))
	return true, nil
}

func (p *Payment) checkRefund(amount sharedDomain.Money) error {
	if p.status != StatusSucceeded {
		return ErrInvalidTransition.WithMessage("cannot refund a %s payment", p.status)
	}
	if amount.Currency() != p.amount.Currency() {
		return sharedDomain.ErrCurrencyMismatch
	}
	if amount.IsZero() || amount.Amount().GreaterThan(p.amount.Amount()) {
		return ErrRefundExceedsPaid
	}
	return nil
}

// MarkRefunded records a completed refund of amount.
func (p *Payment) MarkRefunded(amount sharedDomain.Money, now time.Time) error {
	if p.status == StatusRefunded && p.refundedAmount != nil && p.refundedAmount.Equals(amount) {
		return nil
	}
	if err := p.checkRefund(amount); err != nil {
		return err
	}
	p.status = StatusRefunded
	p.refundedAmount = &amount
	p.refundedAt = &now
	p.Touch(now)
	p.AddDomainEvent(NewPaymentRefunded(p, now))
	return nil
}

// RecordRefundFailure keeps the payment succeeded and raises an operator event.
func (p *Payment) RecordRefundFailure(amount sharedDomain.Money, reason string, now time.Time) {
	p.AddDomainEvent(NewRefundFailed(p, amount, reason, now))
}

// RecordOrphanedCapture raises an operator event for a succeeded charge whose
// appointment no longer wants it.
func (p *Payment) RecordOrphanedCapture(reason string, now time.Time) {
	if p.status != StatusSucceeded {
		return
	}
	p.AddDomainEvent(NewPaymentOrphaned(p, reason, now))
}
