package domain

import (
	"maps"
	"strings"
	"time"

	catalog "github.com/felixgeelhaar/therapia/internal/catalog/domain"
	payments "github.com/felixgeelhaar/therapia/internal/payments/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusConfirmed      Status = "confirmed"
	StatusCanceled       Status = "canceled"
	StatusRescheduled    Status = "rescheduled"
	StatusCompleted      Status = "completed"
	StatusNoShow         Status = "no_show"
)

// ParseStatus validates a stored status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.TrimSpace(s)); st {
	case StatusPendingPayment, StatusConfirmed, StatusCanceled, StatusRescheduled, StatusCompleted, StatusNoShow:
		return st, nil
	default:
		return "", ErrInvalidStatus.WithMessage("unknown appointment status %q", s)
	}
}

// IsTerminal reports whether the status is never left again.
func (s Status) IsTerminal() bool {
	return s == StatusCanceled || s == StatusCompleted || s == StatusNoShow
}

// Outcome is what an administrator records after the session.
type Outcome string

const (
	OutcomeAttended           Outcome = "attended"
	OutcomeNoShow             Outcome = "no_show"
	OutcomeCanceledByClient   Outcome = "canceled_by_client"
	OutcomeCanceledByProvider Outcome = "canceled_by_provider"
)

// ParseOutcome validates an outcome name.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(strings.ToLower(strings.TrimSpace(s))); o {
	case OutcomeAttended, OutcomeNoShow, OutcomeCanceledByClient, OutcomeCanceledByProvider:
		return o, nil
	default:
		return "", ErrInvalidOutcome.WithMessage("unknown appointment outcome %q", s)
	}
}

// Owner identifies who the appointment is for. Exactly one field is set.
type Owner struct {
	ClientID    *uuid.UUID
	AnonymousID string
}

func (o Owner) validate() error {
	hasClient := o.ClientID != nil && *o.ClientID != uuid.Nil
	hasAnon := strings.TrimSpace(o.AnonymousID) != ""
	if hasClient == hasAnon {
		return ErrOwnerRequired
	}
	return nil
}

// NewAppointmentParams carries the booking request.
type NewAppointmentParams struct {
	Owner      Owner
	Slot       sharedDomain.TimeSlot
	Format     catalog.Format
	IntakeForm string
	Metadata   map[string]string
}

// CancelParams describes a cancellation.
type CancelParams struct {
	Reason    string
	Details   string
	Initiator Initiator
}

// Appointment is a client's reservation of a service at a time slot.
type Appointment struct {
	sharedDomain.BaseAggregateRoot
	serviceID           uuid.UUID
	owner               Owner
	slot                sharedDomain.TimeSlot
	format              catalog.Format
	status              Status
	payment             *payments.Payment
	intakeForm          string
	outcome             Outcome
	outcomeNotes        string
	metadata            map[string]string
	calendarEventID     string
	cancellationReason  string
	cancellationDetails string
	canceledAt          *time.Time
}

// NewAppointment books svc for the owner. The appointment starts in
// pending_payment.
func NewAppointment(id uuid.UUID, svc *catalog.Service, params NewAppointmentParams, now time.Time) (*Appointment, error) {
	if !svc.IsActive() {
		return nil, ErrServiceInactive
	}
	if err := params.Owner.validate(); err != nil {
		return nil, err
	}
	if params.Slot.IsInPast(now) {
		return nil, ErrSlotInPast
	}
	if err := checkDuration(params.Slot, svc); err != nil {
		return nil, err
	}
	if !svc.SupportsFormat(params.Format) {
		return nil, ErrFormatNotSupported.WithMessage("service %s is not offered %s", svc.Slug(), params.Format)
	}

	owner := params.Owner
	owner.AnonymousID = strings.TrimSpace(owner.AnonymousID)
	a := &Appointment{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(id, now),
		serviceID:         svc.ID(),
		owner:             owner,
		slot:              params.Slot,
		format:            params.Format,
		status:            StatusPendingPayment,
		intakeForm:        params.IntakeForm,
		metadata:          copyMetadata(params.Metadata),
	}
	a.AddDomainEvent(NewAppointmentCreated(a, now))
	return a, nil
}

// checkDuration requires the slot to last exactly one session of svc.
func checkDuration(slot sharedDomain.TimeSlot, svc *catalog.Service) error {
	if slot.Duration() != svc.Duration() {
		return ErrSlotDuration.WithMessage("%s lasts %d minutes, the requested slot %d",
			svc.Slug(), svc.DurationMinutes(), slot.DurationMinutes())
	}
	return nil
}

// AppointmentState is the persisted form of an appointment.
type AppointmentState struct {
	ID                  uuid.UUID
	ServiceID           uuid.UUID
	Owner               Owner
	Slot                sharedDomain.TimeSlot
	Format              catalog.Format
	Status              Status
	IntakeForm          string
	Outcome             Outcome
	OutcomeNotes        string
	Metadata            map[string]string
	CalendarEventID     string
	CancellationReason  string
	CancellationDetails string
	CanceledAt          *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Version             int
}

// RehydrateAppointment recreates an appointment from storage.
func RehydrateAppointment(s AppointmentState) *Appointment {
	return &Appointment{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(
			sharedDomain.RehydrateBaseEntity(s.ID, s.CreatedAt, s.UpdatedAt), s.Version,
		),
		serviceID:           s.ServiceID,
		owner:               s.Owner,
		slot:                s.Slot,
		format:              s.Format,
		status:              s.Status,
		intakeForm:          s.IntakeForm,
		outcome:             s.Outcome,
		outcomeNotes:        s.OutcomeNotes,
		metadata:            copyMetadata(s.Metadata),
		calendarEventID:     s.CalendarEventID,
		cancellationReason:  s.CancellationReason,
		cancellationDetails: s.CancellationDetails,
		canceledAt:          s.CanceledAt,
	}
}

func (a *Appointment) ServiceID() uuid.UUID              { return a.serviceID }
func (a *Appointment) Owner() Owner                      { return a.owner }
func (a *Appointment) ClientID() *uuid.UUID              { return a.owner.ClientID }
func (a *Appointment) AnonymousID() string               { return a.owner.AnonymousID }
func (a *Appointment) Slot() sharedDomain.TimeSlot       { return a.slot }
func (a *Appointment) Format() catalog.Format            { return a.format }
func (a *Appointment) Status() Status                    { return a.status }
func (a *Appointment) Payment() *payments.Payment        { return a.payment }
func (a *Appointment) IntakeForm() string                { return a.intakeForm }
func (a *Appointment) Outcome() Outcome                  { return a.outcome }
func (a *Appointment) OutcomeNotes() string              { return a.outcomeNotes }
func (a *Appointment) Metadata() map[string]string       { return copyMetadata(a.metadata) }
func (a *Appointment) CalendarEventID() string           { return a.calendarEventID }
func (a *Appointment) CancellationReason() string        { return a.cancellationReason }
func (a *Appointment) CancellationDetails() string       { return a.cancellationDetails }
func (a *Appointment) CanceledAt() *time.Time            { return a.canceledAt }
func (a *Appointment) IsConfirmed() bool                 { return a.status == StatusConfirmed }
func (a *Appointment) IsActive() bool                    { return a.status != StatusCanceled }
func (a *Appointment) AttachPayment(p *payments.Payment) { a.payment = p }

// IsOwnedBy reports whether clientID booked the appointment.
func (a *Appointment) IsOwnedBy(clientID uuid.UUID) bool {
	return a.owner.ClientID != nil && *a.owner.ClientID == clientID
}

// Confirm moves a pending appointment to confirmed once the payment has
// succeeded for the full price or the deposit.
func (a *Appointment) Confirm(payment *payments.Payment, svc *catalog.Service, now time.Time) error {
	if a.status != StatusPendingPayment {
		return ErrInvalidTransition.WithMessage("cannot confirm a %s appointment", a.status)
	}
	if err := a.checkPayment(payment, svc); err != nil {
		return err
	}
	a.payment = payment
	a.status = StatusConfirmed
	a.Touch(now)
	a.AddDomainEvent(NewAppointmentConfirmed(a, now))
	return nil
}

func (a *Appointment) checkPayment(payment *payments.Payment, svc *catalog.Service) error {
	if payment == nil || !payment.IsSucceeded() {
		return ErrPaymentNotSucceeded
	}
	if payment.AppointmentID() != a.ID() {
		return ErrPaymentMismatch
	}
	paid := payment.Amount()
	if paid.Equals(svc.Price()) {
		return nil
	}
	if d := svc.Deposit(); d != nil && paid.Equals(*d) {
		return nil
	}
	return ErrPaymentAmountMismatch.WithMessage("payment amount mismatch: paid %s, price %s", paid, svc.Price())
}

// Cancel closes the appointment and decides the refund. Unpaid appointments
// are never refunded.
func (a *Appointment) Cancel(params CancelParams, svc *catalog.Service, now time.Time) (RefundDecision, error) {
	if a.status.IsTerminal() {
		return RefundDecision{}, ErrAlreadyTerminal.WithMessage("appointment is already %s", a.status)
	}
	params.Reason = strings.TrimSpace(params.Reason)
	if params.Reason == "" {
		return RefundDecision{}, ErrCancellationReason
	}
	if params.Initiator != InitiatorProvider {
		params.Initiator = InitiatorClient
	}

	decision := NoRefund()
	if a.status != StatusPendingPayment && a.payment != nil && a.payment.IsSucceeded() {
		policy := RefundPolicy{
			FreeHours:    svc.Policy().CancelFreeHours,
			PartialHours: svc.Policy().CancelPartialHours,
		}
		decision = policy.Decide(a.payment.Amount(), a.slot, now, params.Initiator)
	}

	a.status = StatusCanceled
	a.cancellationReason = params.Reason
	a.cancellationDetails = strings.TrimSpace(params.Details)
	a.canceledAt = &now
	a.Touch(now)
	a.AddDomainEvent(NewAppointmentCanceled(a, params.Initiator, decision, now))
	return decision, nil
}

// Reschedule moves a confirmed appointment to a new slot of the same
// service. ConfirmRescheduled completes the move.
func (a *Appointment) Reschedule(newSlot sharedDomain.TimeSlot, svc *catalog.Service, now time.Time) error {
	if a.status != StatusConfirmed {
		return ErrInvalidTransition.WithMessage("cannot reschedule a %s appointment", a.status)
	}
	if svc.ID() != a.serviceID {
		return ErrServiceMismatch
	}
	if a.slot.HoursUntil(now) < float64(svc.Policy().RescheduleMinHours) {
		return ErrRescheduleWindowClosed.WithMessage(
			"appointments can be rescheduled up to %d hours before the start", svc.Policy().RescheduleMinHours)
	}
	if newSlot.IsInPast(now) {
		return ErrSlotInPast
	}
	if err := checkDuration(newSlot, svc); err != nil {
		return err
	}

	old := a.slot
	a.slot = newSlot
	a.status = StatusRescheduled
	a.Touch(now)
	a.AddDomainEvent(NewAppointmentRescheduled(a, old, now))
	return nil
}

// ConfirmRescheduled returns a rescheduled appointment to confirmed. The
// original payment must still cover the service.
func (a *Appointment) ConfirmRescheduled(svc *catalog.Service, now time.Time) error {
	if a.status != StatusRescheduled {
		return ErrInvalidTransition.WithMessage("cannot confirm reschedule of a %s appointment", a.status)
	}
	if err := a.checkPayment(a.payment, svc); err != nil {
		return err
	}
	a.status = StatusConfirmed
	a.Touch(now)
	return nil
}

// RecordOutcome closes a confirmed appointment after its session ended.
// Canceled outcomes run the refund policy and return its decision.
func (a *Appointment) RecordOutcome(outcome Outcome, notes string, svc *catalog.Service, now time.Time) (*RefundDecision, error) {
	if a.status != StatusConfirmed {
		return nil, ErrInvalidTransition.WithMessage("cannot record an outcome for a %s appointment", a.status)
	}
	if !a.slot.HasEnded(now) {
		return nil, ErrSessionNotEnded
	}

	notes = strings.TrimSpace(notes)
	switch outcome {
	case OutcomeAttended:
		a.status = StatusCompleted
		a.AddDomainEvent(NewAppointmentCompleted(a, now))
	case OutcomeNoShow:
		a.status = StatusNoShow
		a.AddDomainEvent(NewAppointmentNoShow(a, now))
	case OutcomeCanceledByClient, OutcomeCanceledByProvider:
		initiator := InitiatorClient
		if outcome == OutcomeCanceledByProvider {
			initiator = InitiatorProvider
		}
		decision, err := a.Cancel(CancelParams{Reason: string(outcome), Details: notes, Initiator: initiator}, svc, now)
		if err != nil {
			return nil, err
		}
		a.outcome = outcome
		a.outcomeNotes = notes
		return &decision, nil
	default:
		return nil, ErrInvalidOutcome
	}

	a.outcome = outcome
	a.outcomeNotes = notes
	a.Touch(now)
	return nil, nil
}

// SetCalendarEventID stores the external calendar event of the session.
func (a *Appointment) SetCalendarEventID(id string, now time.Time) {
	if a.calendarEventID == id {
		return
	}
	a.calendarEventID = id
	a.Touch(now)
}

func copyMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	maps.Copy(out, in)
	return out
}
