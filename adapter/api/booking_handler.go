package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	bookingCommands "github.com/felixgeelhaar/therapia/internal/booking/application/commands"
	bookingQueries "github.com/felixgeelhaar/therapia/internal/booking/application/queries"
	catalogQueries "github.com/felixgeelhaar/therapia/internal/catalog/application/queries"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	waitlistCommands "github.com/felixgeelhaar/therapia/internal/waitlist/application/commands"
	"github.com/felixgeelhaar/therapia/pkg/observability"
)

// defaultSlotRange is used when a slot listing gives no upper bound.
const defaultSlotRange = 14 * 24 * time.Hour

// bookingHandler serves the client-facing booking routes.
type bookingHandler struct {
	s *Server
}

type moneyDTO struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func toMoneyDTO(m *sharedDomain.Money) *moneyDTO {
	if m == nil {
		return nil
	}
	return &moneyDTO{Amount: m.AmountString(), Currency: m.Currency()}
}

type slotDTO struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	TZ    string    `json:"tz"`
}

func toSlotDTO(s sharedDomain.TimeSlot) slotDTO {
	return slotDTO{Start: s.LocalStart(), End: s.LocalEnd(), TZ: s.TZ()}
}

// slotRequest names a slot either by ID or by explicit times.
type slotRequest struct {
	SlotID *uuid.UUID `json:"slot_id,omitempty"`
	Start  time.Time  `json:"start"`
	End    time.Time  `json:"end"`
	TZ     string     `json:"tz"`
}

func (r slotRequest) toCommand() bookingCommands.SlotRequest {
	return bookingCommands.SlotRequest{SlotID: r.SlotID, Start: r.Start, End: r.End, TZ: r.TZ}
}

type bookRequest struct {
	ServiceID   uuid.UUID         `json:"service_id"`
	SlotID      *uuid.UUID        `json:"slot_id,omitempty"`
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	TZ          string            `json:"tz"`
	Format      string            `json:"format"`
	ClientID    *uuid.UUID        `json:"client_id,omitempty"`
	AnonymousID string            `json:"anonymous_id,omitempty"`
	Intake      string            `json:"intake,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type bookedAppointment struct {
	ID        uuid.UUID `json:"id"`
	ServiceID uuid.UUID `json:"service_id"`
	Status    string    `json:"status"`
	Slot      slotDTO   `json:"slot"`
	Format    string    `json:"format"`
	PaymentID uuid.UUID `json:"payment_id"`
	Amount    moneyDTO  `json:"amount"`
}

type bookResponse struct {
	Appointment bookedAppointment `json:"appointment"`
	PaymentURL  string            `json:"payment_url"`
}

// Book handles POST /booking/appointments.
func (h *bookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.s.writeError(w, r, err)
		return
	}

	result, err := h.s.container.BookAppointmentHandler.Handle(r.Context(), bookingCommands.BookAppointmentCommand{
		Actor:     ActorFromContext(r.Context()),
		ServiceID: req.ServiceID,
		Slot: bookingCommands.SlotRequest{
			SlotID: req.SlotID,
			Start:  req.Start,
			End:    req.End,
			TZ:     req.TZ,
		},
		Format:      req.Format,
		ClientID:    req.ClientID,
		AnonymousID: req.AnonymousID,
		IntakeForm:  req.Intake,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	h.s.metrics.Counter(observability.MetricAppointmentsBooked, 1, observability.T("format", req.Format))

	writeJSON(w, http.StatusCreated, bookResponse{
		Appointment: bookedAppointment{
			ID:        result.AppointmentID,
			ServiceID: req.ServiceID,
			Status:    string(result.Status),
			Slot:      toSlotDTO(result.Slot),
			Format:    req.Format,
			PaymentID: result.PaymentID,
			Amount:    *toMoneyDTO(&result.Amount),
		},
		PaymentURL: result.PaymentURL,
	})
}

// Get handles GET /booking/appointments/{id}.
func (h *bookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	dto, err := h.s.container.GetAppointmentHandler.Handle(r.Context(), bookingQueries.GetAppointmentQuery{
		Actor:         ActorFromContext(r.Context()),
		AppointmentID: id,
	})
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

type cancelRequest struct {
	Reason        string `json:"reason"`
	ReasonDetails string `json:"reason_details,omitempty"`
}

type cancelResponse struct {
	Status       string    `json:"status"`
	RefundStatus string    `json:"refund_status"`
	RefundAmount *moneyDTO `json:"refund_amount,omitempty"`
}

// Cancel handles POST /booking/appointments/{id}/cancel.
func (h *bookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	var req cancelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.s.writeError(w, r, err)
		return
	}

	result, err := h.s.container.CancelAppointmentHandler.Handle(r.Context(), bookingCommands.CancelAppointmentCommand{
		Actor:         ActorFromContext(r.Context()),
		AppointmentID: id,
		Reason:        req.Reason,
		Details:       req.ReasonDetails,
	})
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	h.s.metrics.Counter(observability.MetricAppointmentsCanceled, 1,
		observability.T("refund_status", string(result.RefundStatus)),
	)
	writeJSON(w, http.StatusOK, cancelResponse{
		Status:       string(result.Status),
		RefundStatus: string(result.RefundStatus),
		RefundAmount: toMoneyDTO(result.RefundAmount),
	})
}

type rescheduleRequest struct {
	NewSlotID *uuid.UUID `json:"new_slot_id,omitempty"`
	Start     time.Time  `json:"start"`
	End       time.Time  `json:"end"`
	TZ        string     `json:"tz"`
}

type rescheduleResponse struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Status        string    `json:"status"`
	OldSlot       slotDTO   `json:"old_slot"`
	NewSlot       slotDTO   `json:"new_slot"`
}

// Reschedule handles POST /booking/appointments/{id}/reschedule.
func (h *bookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	var req rescheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.s.writeError(w, r, err)
		return
	}

	slot := slotRequest{SlotID: req.NewSlotID, Start: req.Start, End: req.End, TZ: req.TZ}
	result, err := h.s.container.RescheduleHandler.Handle(r.Context(), bookingCommands.RescheduleAppointmentCommand{
		Actor:         ActorFromContext(r.Context()),
		AppointmentID: id,
		NewSlot:       slot.toCommand(),
	})
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rescheduleResponse{
		AppointmentID: result.AppointmentID,
		Status:        string(result.Status),
		OldSlot:       toSlotDTO(result.OldSlot),
		NewSlot:       toSlotDTO(result.NewSlot),
	})
}

type outcomeRequest struct {
	Outcome string `json:"outcome"`
	Notes   string `json:"notes,omitempty"`
}

type outcomeResponse struct {
	Status       string    `json:"status"`
	Outcome      string    `json:"outcome"`
	RefundStatus string    `json:"refund_status,omitempty"`
	RefundAmount *moneyDTO `json:"refund_amount,omitempty"`
}

// RecordOutcome handles POST /booking/appointments/{id}/outcome.
func (h *bookingHandler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	var req outcomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.s.writeError(w, r, err)
		return
	}

	result, err := h.s.container.RecordOutcomeHandler.Handle(r.Context(), bookingCommands.RecordOutcomeCommand{
		Actor:         ActorFromContext(r.Context()),
		AppointmentID: id,
		Outcome:       req.Outcome,
		Notes:         req.Notes,
	})
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	resp := outcomeResponse{Status: string(result.Status), Outcome: string(result.Outcome)}
	if result.Refund != nil {
		resp.RefundStatus = string(result.Refund.Status)
		resp.RefundAmount = toMoneyDTO(result.Refund.Amount)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListServices handles GET /booking/services. Only active services are shown.
func (h *bookingHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.s.container.ListServicesHandler.Handle(r.Context(), catalogQueries.ListServicesQuery{})
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, services)
}

// AvailableSlots handles GET /booking/services/{id}/slots?from&to&tz. The
// range defaults to the next two weeks.
func (h *bookingHandler) AvailableSlots(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	from, err := queryTime(q.Get("from"), h.s.container.Clock.Now())
	if err != nil {
		h.s.writeError(w, r, invalidParam("from", err))
		return
	}
	to, err := queryTime(q.Get("to"), from.Add(defaultSlotRange))
	if err != nil {
		h.s.writeError(w, r, invalidParam("to", err))
		return
	}

	slots, err := h.s.container.AvailableSlotsHandler.Handle(r.Context(), bookingQueries.GetAvailableSlotsQuery{
		ServiceID: id,
		From:      from,
		To:        to,
		TZ:        q.Get("tz"),
	})
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

type waitlistRequest struct {
	ServiceID      uuid.UUID  `json:"service_id"`
	ClientID       *uuid.UUID `json:"client_id,omitempty"`
	ContactInfo    string     `json:"contact_info"`
	PreferredStart *time.Time `json:"preferred_start,omitempty"`
	PreferredEnd   *time.Time `json:"preferred_end,omitempty"`
	TZ             string     `json:"tz,omitempty"`
}

// JoinWaitlist handles POST /booking/waitlist.
func (h *bookingHandler) JoinWaitlist(w http.ResponseWriter, r *http.Request) {
	var req waitlistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.s.writeError(w, r, err)
		return
	}
	id, err := h.s.container.SubmitWaitlistHandler.Handle(r.Context(), waitlistCommands.SubmitRequestCommand{
		Actor:          ActorFromContext(r.Context()),
		ServiceID:      req.ServiceID,
		ClientID:       req.ClientID,
		ContactInfo:    req.ContactInfo,
		PreferredStart: req.PreferredStart,
		PreferredEnd:   req.PreferredEnd,
		TZ:             req.TZ,
	})
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uuid.UUID{"id": id})
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, errInvalidID
	}
	return id, nil
}

// queryTime parses an RFC 3339 parameter, or returns def when it is absent.
func queryTime(value string, def time.Time) (time.Time, error) {
	if value == "" {
		return def, nil
	}
	return time.Parse(time.RFC3339, value)
}
