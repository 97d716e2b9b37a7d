package queries

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/therapia/internal/booking/domain"
	identity "github.com/felixgeelhaar/therapia/internal/identity/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

// PaymentDTO is the payment part of an appointment read model.
type PaymentDTO struct {
	ID             uuid.UUID  `json:"id"`
	Status         string     `json:"status"`
	Amount         string     `json:"amount"`
	Currency       string     `json:"currency"`
	Provider       string     `json:"provider"`
	PaymentURL     string     `json:"payment_url,omitempty"`
	RefundedAmount string     `json:"refunded_amount,omitempty"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
}

// AppointmentDTO is the read model of an appointment.
type AppointmentDTO struct {
	ID                 uuid.UUID         `json:"id"`
	ServiceID          uuid.UUID         `json:"service_id"`
	ClientID           *uuid.UUID        `json:"client_id,omitempty"`
	AnonymousID        string            `json:"anonymous_id,omitempty"`
	Start              time.Time         `json:"start"`
	End                time.Time         `json:"end"`
	TZ                 string            `json:"tz"`
	Format             string            `json:"format"`
	Status             string            `json:"status"`
	IntakeForm         string            `json:"intake_form,omitempty"`
	Outcome            string            `json:"outcome,omitempty"`
	OutcomeNotes       string            `json:"outcome_notes,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	CalendarEventID    string            `json:"calendar_event_id,omitempty"`
	CancellationReason string            `json:"cancellation_reason,omitempty"`
	CanceledAt         *time.Time        `json:"canceled_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	Payment            *PaymentDTO       `json:"payment,omitempty"`
}

// ToAppointmentDTO maps an appointment with times in its own zone.
func ToAppointmentDTO(a *domain.Appointment) AppointmentDTO {
	slot := a.Slot()
	dto := AppointmentDTO{
		ID:                 a.ID(),
		ServiceID:          a.ServiceID(),
		ClientID:           a.ClientID(),
		AnonymousID:        a.AnonymousID(),
		Start:              slot.LocalStart(),
		End:                slot.LocalEnd(),
		TZ:                 slot.TZ(),
		Format:             string(a.Format()),
		Status:             string(a.Status()),
		IntakeForm:         a.IntakeForm(),
		Outcome:            string(a.Outcome()),
		OutcomeNotes:       a.OutcomeNotes(),
		Metadata:           a.Metadata(),
		CalendarEventID:    a.CalendarEventID(),
		CancellationReason: a.CancellationReason(),
		CanceledAt:         a.CanceledAt(),
		CreatedAt:          a.CreatedAt(),
		UpdatedAt:          a.UpdatedAt(),
	}
	if p := a.Payment(); p != nil {
		pd := &PaymentDTO{
			ID:          p.ID(),
			Status:      string(p.Status()),
			Amount:      p.Amount().AmountString(),
			Currency:    p.Amount().Currency(),
			Provider:    p.Provider(),
			PaymentURL:  p.PaymentURL(),
			ConfirmedAt: p.ConfirmedAt(),
		}
		if r := p.RefundedAmount(); r != nil {
			pd.RefundedAmount = r.AmountString()
		}
		dto.Payment = pd
	}
	return dto
}

// GetAppointmentQuery loads one appointment.
type GetAppointmentQuery struct {
	Actor         identity.Actor
	AppointmentID uuid.UUID
}

// GetAppointmentHandler handles GetAppointmentQuery.
type GetAppointmentHandler struct {
	appointments domain.Repository
}

// NewGetAppointmentHandler creates a new GetAppointmentHandler.
func NewGetAppointmentHandler(appointments domain.Repository) *GetAppointmentHandler {
	return &GetAppointmentHandler{appointments: appointments}
}

// Handle returns the appointment to its owner or an admin.
func (h *GetAppointmentHandler) Handle(ctx context.Context, q GetAppointmentQuery) (*AppointmentDTO, error) {
	a, err := h.appointments.FindByID(ctx, q.AppointmentID)
	if err != nil {
		return nil, err
	}
	if !q.Actor.IsAdmin() {
		id := a.ClientID()
		if id == nil || !q.Actor.CanActFor(*id) {
			return nil, sharedDomain.ErrForbidden
		}
	}
	dto := ToAppointmentDTO(a)
	return &dto, nil
}
