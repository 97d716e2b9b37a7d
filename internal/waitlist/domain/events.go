package domain

import (
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

const (
	AggregateType = "waitlist_request"

	RoutingKeyOpportunity = "waitlist.opportunity"
)

// Opportunity announces that a slot matching a waitlist request opened up.
// It deliberately carries identifiers only; consumers look the contact up.
type Opportunity struct {
	sharedDomain.BaseEvent
	RequestID     string    `json:"request_id"`
	ServiceID     string    `json:"service_id"`
	SlotStart     time.Time `json:"slot_start"`
	SlotEnd       time.Time `json:"slot_end"`
	SlotTZ        string    `json:"slot_tz"`
	SourceEventID string    `json:"source_event_id"`
}

func NewOpportunity(r *Request, slot sharedDomain.TimeSlot, sourceEventID uuid.UUID, now time.Time) *Opportunity {
	return &Opportunity{
		BaseEvent:     sharedDomain.NewBaseEvent(r.ID(), AggregateType, RoutingKeyOpportunity, now),
		RequestID:     r.ID().String(),
		ServiceID:     r.serviceID.String(),
		SlotStart:     slot.Start(),
		SlotEnd:       slot.End(),
		SlotTZ:        slot.TZ(),
		SourceEventID: sourceEventID.String(),
	}
}
