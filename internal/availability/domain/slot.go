package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/google/uuid"
)

var (
	ErrSlotNotFound     = sharedDomain.NewNotFoundError("SLOT_NOT_FOUND", "availability slot not found")
	ErrSlotUnavailable  = sharedDomain.NewConflictError("SLOT_UNAVAILABLE", "availability slot is not available")
	ErrSlotWrongService = sharedDomain.NewValidationError("SLOT_WRONG_SERVICE", "availability slot belongs to another service")
	ErrInvalidStatus    = sharedDomain.NewValidationError("INVALID_SLOT_STATUS", "unknown availability status")
)

// Status is the booking state of an availability slot.
type Status string

const (
	StatusAvailable Status = "available"
	StatusReserved  Status = "reserved"
	StatusBlocked   Status = "blocked"
)

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusAvailable, StatusReserved, StatusBlocked:
		return st, nil
	default:
		return "", ErrInvalidStatus.WithMessage("unknown availability status %q", s)
	}
}

// Source records where a slot came from.
type Source string

const (
	SourceInternal         Source = "internal"
	SourceExternalCalendar Source = "external_calendar"
)

// Slot is a declared window in which bookings are acceptable. A nil service
// ID makes the slot usable by every service.
type Slot struct {
	sharedDomain.BaseEntity
	serviceID       *uuid.UUID
	window          sharedDomain.TimeSlot
	status          Status
	source          Source
	externalEventID string
}

// NewSlot creates an internal, available slot.
func NewSlot(id uuid.UUID, serviceID *uuid.UUID, window sharedDomain.TimeSlot, now time.Time) *Slot {
	return &Slot{
		BaseEntity: sharedDomain.NewBaseEntity(id, now),
		serviceID:  serviceID,
		window:     window,
		status:     StatusAvailable,
		source:     SourceInternal,
	}
}

// NewExternalBusySlot records a busy period imported from the external calendar.
func NewExternalBusySlot(id uuid.UUID, window sharedDomain.TimeSlot, externalEventID string, now time.Time) *Slot {
	return &Slot{
		BaseEntity:      sharedDomain.NewBaseEntity(id, now),
		window:          window,
		status:          StatusBlocked,
		source:          SourceExternalCalendar,
		externalEventID: externalEventID,
	}
}

// RehydrateSlot recreates a slot from persistence.
func RehydrateSlot(
	id uuid.UUID,
	serviceID *uuid.UUID,
	window sharedDomain.TimeSlot,
	status Status,
	source Source,
	externalEventID string,
	createdAt, updatedAt time.Time,
) *Slot {
	return &Slot{
		BaseEntity:      sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		serviceID:       serviceID,
		window:          window,
		status:          status,
		source:          source,
		externalEventID: externalEventID,
	}
}

func (s *Slot) ServiceID() *uuid.UUID         { return s.serviceID }
func (s *Slot) Window() sharedDomain.TimeSlot { return s.window }
func (s *Slot) Status() Status                { return s.status }
func (s *Slot) Source() Source                { return s.source }
func (s *Slot) ExternalEventID() string       { return s.externalEventID }
func (s *Slot) IsAvailable() bool             { return s.status == StatusAvailable }
func (s *Slot) IsGlobal() bool                { return s.serviceID == nil }

// ServesService reports whether the slot may be used to book serviceID.
func (s *Slot) ServesService(serviceID uuid.UUID) bool {
	return s.serviceID == nil || *s.serviceID == serviceID
}

// SetStatus moves the slot to status.
func (s *Slot) SetStatus(status Status, now time.Time) {
	if s.status == status {
		return
	}
	s.status = status
	s.Touch(now)
}

// Move updates the window, used when an imported event changes.
func (s *Slot) Move(window sharedDomain.TimeSlot, now time.Time) {
	if s.window.Equals(window) {
		return
	}
	s.window = window
	s.Touch(now)
}
