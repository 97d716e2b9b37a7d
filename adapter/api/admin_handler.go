package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	availabilityCommands "github.com/felixgeelhaar/therapia/internal/availability/application/commands"
	availabilityQueries "github.com/felixgeelhaar/therapia/internal/availability/application/queries"
	catalogCommands "github.com/felixgeelhaar/therapia/internal/catalog/application/commands"
	catalogQueries "github.com/felixgeelhaar/therapia/internal/catalog/application/queries"
	waitlistQueries "github.com/felixgeelhaar/therapia/internal/waitlist/application/queries"
)

// adminHandler serves catalog, availability and waitlist management. Every
// route sits behind requireAdmin.
type adminHandler struct {
	s *Server
}

type serviceRequest struct {
	Slug               string   `json:"slug"`
	Name               string   `json:"name"`
	Price              string   `json:"price"`
	Currency           string   `json:"currency"`
	Deposit            string   `json:"deposit,omitempty"`
	DurationMinutes    int      `json:"duration_minutes"`
	Formats            []string `json:"formats"`
	CancelFreeHours    int      `json:"cancel_free_hours"`
	CancelPartialHours int      `json:"cancel_partial_hours"`
	RescheduleMinHours int      `json:"reschedule_min_hours"`
	Active             *bool    `json:"active,omitempty"`
}

func (req serviceRequest) input() catalogCommands.ServiceInput {
	return catalogCommands.ServiceInput{
		Slug:               req.Slug,
		Name:               req.Name,
		Price:              req.Price,
		Currency:           req.Currency,
		Deposit:            req.Deposit,
		DurationMinutes:    req.DurationMinutes,
		Formats:            req.Formats,
		CancelFreeHours:    req.CancelFreeHours,
		CancelPartialHours: req.CancelPartialHours,
		RescheduleMinHours: req.RescheduleMinHours,
	}
}

// ListServices handles GET /admin/services, inactive services included.
func (h *adminHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.s.container.ListServicesHandler.Handle(r.Context(), catalogQueries.ListServicesQuery{IncludeInactive: true})
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, services)
}

// GetService handles GET /admin/services/{id}. The id may also be a slug.
func (h *adminHandler) GetService(w http.ResponseWriter, r *http.Request) {
	dto, err := h.s.container.GetServiceHandler.Handle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// CreateService handles POST /admin/services.
func (h *adminHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.s.writeError(w, r, err)
		return
	}
	id, err := h.s.container.CreateServiceHandler.Handle(r.Context(), catalogCommands.CreateServiceCommand{
		Actor:        ActorFromContext(r.Context()),
		ServiceInput: req.input(),
	})
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uuid.UUID{"id": id})
}

// UpdateService handles PUT /admin/services/{id}.
func (h *adminHandler) UpdateService(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	var req serviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.s.writeError(w, r, err)
		return
	}
	err = h.s.container.UpdateServiceHandler.Handle(r.Context(), catalogCommands.UpdateServiceCommand{
		Actor:        ActorFromContext(r.Context()),
		ServiceID:    id,
		Active:       req.Active,
		ServiceInput: req.input(),
	})
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type recurrenceRequest struct {
	Frequency string    `json:"frequency"`
	Interval  int       `json:"interval,omitempty"`
	EndDate   time.Time `json:"end_date"`
}

type availabilityRequest struct {
	ServiceID  *uuid.UUID         `json:"service_id,omitempty"`
	Start      time.Time          `json:"start"`
	End        time.Time          `json:"end"`
	TZ         string             `json:"tz"`
	Recurrence *recurrenceRequest `json:"recurrence,omitempty"`
}

// CreateAvailability handles POST /admin/availability. A recurrence expands
// into one slot per occurrence.
func (h *adminHandler) CreateAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.s.writeError(w, r, err)
		return
	}
	cmd := availabilityCommands.CreateAvailabilityCommand{
		Actor:     ActorFromContext(r.Context()),
		ServiceID: req.ServiceID,
		Start:     req.Start,
		End:       req.End,
		TZ:        req.TZ,
	}
	if req.Recurrence != nil {
		cmd.Recurrence = &availabilityCommands.RecurrenceInput{
			Frequency: req.Recurrence.Frequency,
			Interval:  req.Recurrence.Interval,
			EndDate:   req.Recurrence.EndDate,
		}
	}
	result, err := h.s.container.CreateAvailabilityHandler.Handle(r.Context(), cmd)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string][]uuid.UUID{"slot_ids": result.SlotIDs})
}

// ListSlots handles GET /admin/availability?service_id&status&source&from&to.
func (h *adminHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := availabilityQueries.ListSlotsQuery{
		Actor:  ActorFromContext(r.Context()),
		Status: q.Get("status"),
		Source: q.Get("source"),
	}
	if raw := q.Get("service_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.s.writeError(w, r, invalidParam("service_id", err))
			return
		}
		query.ServiceID = &id
	}
	var err error
	if query.From, err = queryTime(q.Get("from"), time.Time{}); err != nil {
		h.s.writeError(w, r, invalidParam("from", err))
		return
	}
	if query.To, err = queryTime(q.Get("to"), time.Time{}); err != nil {
		h.s.writeError(w, r, invalidParam("to", err))
		return
	}

	slots, err := h.s.container.ListSlotsHandler.Handle(r.Context(), query)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

// SetSlotStatus handles PATCH /admin/availability/{id} with {"status": ...}.
func (h *adminHandler) SetSlotStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.s.writeError(w, r, err)
		return
	}
	err = h.s.container.SetSlotStatusHandler.Handle(r.Context(), availabilityCommands.SetSlotStatusCommand{
		Actor:  ActorFromContext(r.Context()),
		SlotID: id,
		Status: req.Status,
	})
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteSlot handles DELETE /admin/availability/{id}.
func (h *adminHandler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	err = h.s.container.DeleteSlotHandler.Handle(r.Context(), availabilityCommands.DeleteSlotCommand{
		Actor:  ActorFromContext(r.Context()),
		SlotID: id,
	})
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListWaitlist handles GET /admin/waitlist?service_id.
func (h *adminHandler) ListWaitlist(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.URL.Query().Get("service_id"))
	if err != nil {
		h.s.writeError(w, r, invalidParam("service_id", err))
		return
	}
	requests, err := h.s.container.ListWaitlistHandler.Handle(r.Context(), waitlistQueries.ListRequestsQuery{
		Actor:     ActorFromContext(r.Context()),
		ServiceID: id,
	})
	if err != nil {
		h.s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}
