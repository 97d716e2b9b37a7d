package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

const (
	AggregateType = "appointment"

	RoutingKeyAppointmentCreated     = "booking.appointment.created"
	RoutingKeyAppointmentConfirmed   = "booking.appointment.confirmed"
	RoutingKeyAppointmentCanceled    = "booking.appointment.canceled"
	RoutingKeyAppointmentRescheduled = "booking.appointment.rescheduled"
	RoutingKeyAppointmentCompleted   = "booking.appointment.completed"
	RoutingKeyAppointmentNoShow      = "booking.appointment.no_show"
	RoutingKeyCalendarSyncFailed     = "booking.calendar.sync_failed"
)

// SlotPayload is the wire form of a time slot.
type SlotPayload struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	TZ    string    `json:"tz"`
}

// ToTimeSlot converts the payload back to a value object.
func (p SlotPayload) ToTimeSlot() (sharedDomain.TimeSlot, error) {
	return sharedDomain.NewTimeSlot(p.Start, p.End, p.TZ)
}

func slotPayload(s sharedDomain.TimeSlot) SlotPayload {
	return SlotPayload{Start: s.Start(), End: s.End(), TZ: s.TZ()}
}

// AppointmentEvent carries the fields every appointment event shares.
type AppointmentEvent struct {
	sharedDomain.BaseEvent
	AppointmentID string      `json:"appointment_id"`
	ServiceID     string      `json:"service_id"`
	ClientID      string      `json:"client_id,omitempty"`
	AnonymousID   string      `json:"anonymous_id,omitempty"`
	Slot          SlotPayload `json:"slot"`
	Status        string      `json:"status"`
}

func newAppointmentEvent(a *Appointment, routingKey string, now time.Time) AppointmentEvent {
	e := AppointmentEvent{
		BaseEvent:     sharedDomain.NewBaseEvent(a.ID(), AggregateType, routingKey, now),
		AppointmentID: a.ID().String(),
		ServiceID:     a.serviceID.String(),
		AnonymousID:   a.owner.AnonymousID,
		Slot:          slotPayload(a.slot),
		Status:        string(a.status),
	}
	if a.owner.ClientID != nil {
		e.ClientID = a.owner.ClientID.String()
	}
	return e
}

// NewAppointmentCreated creates a booking.appointment.created event.
func NewAppointmentCreated(a *Appointment, now time.Time) *AppointmentEvent {
	e := newAppointmentEvent(a, RoutingKeyAppointmentCreated, now)
	return &e
}

// AppointmentConfirmed is emitted once the payment has been accepted.
type AppointmentConfirmed struct {
	AppointmentEvent
	PaymentID string `json:"payment_id"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

func NewAppointmentConfirmed(a *Appointment, now time.Time) *AppointmentConfirmed {
	e := &AppointmentConfirmed{AppointmentEvent: newAppointmentEvent(a, RoutingKeyAppointmentConfirmed, now)}
	if a.payment != nil {
		e.PaymentID = a.payment.ID().String()
		e.Amount = a.payment.Amount().AmountString()
		e.Currency = a.payment.Amount().Currency()
	}
	return e
}

// AppointmentCanceled carries the refund decision to the refund subscriber
// and the freed slot to the waitlist matcher.
type AppointmentCanceled struct {
	AppointmentEvent
	Reason          string `json:"reason"`
	Details         string `json:"details,omitempty"`
	Initiator       string `json:"initiator"`
	RefundStatus    string `json:"refund_status"`
	RefundAmount    string `json:"refund_amount,omitempty"`
	Currency        string `json:"currency,omitempty"`
	PaymentID       string `json:"payment_id,omitempty"`
	CalendarEventID string `json:"calendar_event_id,omitempty"`
}

func NewAppointmentCanceled(a *Appointment, initiator Initiator, d RefundDecision, now time.Time) *AppointmentCanceled {
	e := &AppointmentCanceled{
		AppointmentEvent: newAppointmentEvent(a, RoutingKeyAppointmentCanceled, now),
		Reason:           a.cancellationReason,
		Details:          a.cancellationDetails,
		Initiator:        string(initiator),
		RefundStatus:     string(d.Status),
		CalendarEventID:  a.calendarEventID,
	}
	if d.Amount != nil {
		e.RefundAmount = d.Amount.AmountString()
		e.Currency = d.Amount.Currency()
	}
	if a.payment != nil {
		e.PaymentID = a.payment.ID().String()
	}
	return e
}

// AppointmentRescheduled records the move from OldSlot to the new slot.
type AppointmentRescheduled struct {
	AppointmentEvent
	OldSlot         SlotPayload `json:"old_slot"`
	NewSlot         SlotPayload `json:"new_slot"`
	CalendarEventID string      `json:"calendar_event_id,omitempty"`
}

func NewAppointmentRescheduled(a *Appointment, old sharedDomain.TimeSlot, now time.Time) *AppointmentRescheduled {
	return &AppointmentRescheduled{
		AppointmentEvent: newAppointmentEvent(a, RoutingKeyAppointmentRescheduled, now),
		OldSlot:          slotPayload(old),
		NewSlot:          slotPayload(a.slot),
		CalendarEventID:  a.calendarEventID,
	}
}

// NewAppointmentCompleted creates a booking.appointment.completed event.
func NewAppointmentCompleted(a *Appointment, now time.Time) *AppointmentEvent {
	e := newAppointmentEvent(a, RoutingKeyAppointmentCompleted, now)
	return &e
}

// NewAppointmentNoShow creates a booking.appointment.no_show event.
func NewAppointmentNoShow(a *Appointment, now time.Time) *AppointmentEvent {
	e := newAppointmentEvent(a, RoutingKeyAppointmentNoShow, now)
	return &e
}

// CalendarSyncFailed tells operators that the external calendar could not be
// updated for a confirmed appointment.
type CalendarSyncFailed struct {
	AppointmentEvent
	Operation string `json:"operation"`
	Error     string `json:"error"`
	Attempts  int    `json:"attempts"`
}

func NewCalendarSyncFailed(a *Appointment, operation string, cause error, attempts int, now time.Time) *CalendarSyncFailed {
	e := &CalendarSyncFailed{
		AppointmentEvent: newAppointmentEvent(a, RoutingKeyCalendarSyncFailed, now),
		Operation:        operation,
		Attempts:         attempts,
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	return e
}

// RecordCalendarSyncFailure buffers a CalendarSyncFailed event.
func (a *Appointment) RecordCalendarSyncFailure(operation string, cause error, attempts int, now time.Time) {
	a.AddDomainEvent(NewCalendarSyncFailed(a, operation, cause, attempts, now))
}
