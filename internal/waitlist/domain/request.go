// Package domain models waitlist requests: clients asking to be told when
// a time opens up for a service.
package domain

import (
	"time"

	"github.com/google/uuid"

	identity "github.com/felixgeelhaar/therapia/internal/identity/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

var (
	ErrRequestNotFound = sharedDomain.NewNotFoundError("WAITLIST_REQUEST_NOT_FOUND", "waitlist request not found")
	ErrInvalidContact  = sharedDomain.NewValidationError("INVALID_CONTACT", "a valid contact email is required")
)

// Request is a waitlist entry. The contact address is personal data and is
// encrypted at rest.
type Request struct {
	sharedDomain.BaseAggregateRoot
	serviceID       uuid.UUID
	clientID        *uuid.UUID
	contact         string
	preferredWindow *sharedDomain.TimeSlot
}

// NewRequest creates a waitlist entry. A nil window matches any opening.
func NewRequest(id, serviceID uuid.UUID, clientID *uuid.UUID, contact string, window *sharedDomain.TimeSlot, now time.Time) (*Request, error) {
	email, err := identity.ParseEmail(contact)
	if err != nil {
		return nil, ErrInvalidContact.Wrap(err)
	}
	return &Request{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(id, now),
		serviceID:         serviceID,
		clientID:          clientID,
		contact:           email.String(),
		preferredWindow:   window,
	}, nil
}

// RehydrateRequest rebuilds a stored request.
func RehydrateRequest(id, serviceID uuid.UUID, clientID *uuid.UUID, contact string, window *sharedDomain.TimeSlot, createdAt time.Time) *Request {
	return &Request{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(sharedDomain.RehydrateBaseEntity(id, createdAt, createdAt), 1),
		serviceID:         serviceID,
		clientID:          clientID,
		contact:           contact,
		preferredWindow:   window,
	}
}

func (r *Request) ServiceID() uuid.UUID                    { return r.serviceID }
func (r *Request) ClientID() *uuid.UUID                    { return r.clientID }
func (r *Request) Contact() string                         { return r.contact }
func (r *Request) PreferredWindow() *sharedDomain.TimeSlot { return r.preferredWindow }

// Matches reports whether an opening at slot of serviceID interests the
// requester.
func (r *Request) Matches(serviceID uuid.UUID, slot sharedDomain.TimeSlot) bool {
	if r.serviceID != serviceID {
		return false
	}
	return r.preferredWindow == nil || r.preferredWindow.Overlaps(slot)
}

// OfferOpening buffers a waitlist.opportunity event for slot.
func (r *Request) OfferOpening(slot sharedDomain.TimeSlot, sourceEventID uuid.UUID, now time.Time) {
	r.AddDomainEvent(NewOpportunity(r, slot, sourceEventID, now))
}
