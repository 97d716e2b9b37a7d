package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

// RefundStatus is how much of the paid amount goes back to the client.
type RefundStatus string

const (
	RefundFull    RefundStatus = "full"
	RefundPartial RefundStatus = "partial"
	RefundNone    RefundStatus = "none"
)

// Initiator is the side that cancels an appointment.
type Initiator string

const (
	InitiatorClient   Initiator = "client"
	InitiatorProvider Initiator = "provider"
)

// RefundDecision is the outcome of the cancellation policy. Amount is nil
// when nothing is refunded.
type RefundDecision struct {
	Status RefundStatus
	Amount *sharedDomain.Money
}

// NoRefund is the decision for unpaid appointments.
func NoRefund() RefundDecision {
	return RefundDecision{Status: RefundNone}
}

// HasRefund reports whether money must be returned.
func (d RefundDecision) HasRefund() bool {
	return d.Amount != nil && !d.Amount.IsZero()
}

// RefundPolicy holds the cancellation windows of a service, in hours
// before the session start.
type RefundPolicy struct {
	FreeHours    int
	PartialHours int
}

// Decide applies the windows to a paid amount. The free window is
// inclusive: exactly FreeHours before the start is still a full refund.
func (p RefundPolicy) Decide(paid sharedDomain.Money, slot sharedDomain.TimeSlot, now time.Time, initiator Initiator) RefundDecision {
	if paid.IsZero() {
		return NoRefund()
	}
	if initiator == InitiatorProvider {
		return RefundDecision{Status: RefundFull, Amount: &paid}
	}

	h := slot.HoursUntil(now)
	switch {
	case h >= float64(p.FreeHours):
		return RefundDecision{Status: RefundFull, Amount: &paid}
	case h >= float64(p.PartialHours):
		half := paid.Half()
		return RefundDecision{Status: RefundPartial, Amount: &half}
	default:
		return NoRefund()
	}
}
