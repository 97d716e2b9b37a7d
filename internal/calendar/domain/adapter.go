package domain

import (
	"context"
	"time"

	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/google/uuid"
)

// ManagedMarker tags events created by this system in the external
// calendar so imports can skip them.
const ManagedMarker = "therapia"

// EventRequest describes a calendar event for a confirmed appointment.
type EventRequest struct {
	AppointmentID uuid.UUID
	Slot          sharedDomain.TimeSlot
	Summary       string
	Description   string
	Attendee      string
}

// Adapter is the contract every external calendar implements. Errors are
// classified with ErrTransientUpstream or ErrPermanentUpstream.
type Adapter interface {
	// IsFree reports whether the calendar has no busy period intersecting slot.
	IsFree(ctx context.Context, slot sharedDomain.TimeSlot) (bool, error)
	// CreateEvent books the slot and returns the provider's event ID.
	CreateEvent(ctx context.Context, req EventRequest) (string, error)
	// DeleteEvent removes an event. Deleting a missing event succeeds.
	DeleteEvent(ctx context.Context, externalEventID string) error
}

// ExternalEvent is a busy period read back from the calendar.
type ExternalEvent struct {
	ID      string
	Summary string
	Start   time.Time
	End     time.Time
	AllDay  bool
	// Managed is true for events this system created.
	Managed bool
}

// Importer lists events so external busy periods can be mirrored into the
// availability store.
type Importer interface {
	ListEvents(ctx context.Context, from, to time.Time) ([]ExternalEvent, error)
}
