package queries

import (
	"context"
	"time"

	"github.com/felixgeelhaar/therapia/internal/availability/domain"
	identity "github.com/felixgeelhaar/therapia/internal/identity/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/google/uuid"
)

// SlotDTO is the admin read model of an availability slot.
type SlotDTO struct {
	ID              uuid.UUID  `json:"id"`
	ServiceID       *uuid.UUID `json:"service_id,omitempty"`
	Start           time.Time  `json:"start"`
	End             time.Time  `json:"end"`
	TZ              string     `json:"tz"`
	Status          string     `json:"status"`
	Source          string     `json:"source"`
	ExternalEventID string     `json:"external_event_id,omitempty"`
}

// ToSlotDTO maps a slot to its read model with times in the slot's zone.
func ToSlotDTO(s *domain.Slot) SlotDTO {
	w := s.Window()
	return SlotDTO{
		ID:              s.ID(),
		ServiceID:       s.ServiceID(),
		Start:           w.LocalStart(),
		End:             w.LocalEnd(),
		TZ:              w.TZ(),
		Status:          string(s.Status()),
		Source:          string(s.Source()),
		ExternalEventID: s.ExternalEventID(),
	}
}

// ListSlotsQuery filters the availability store.
type ListSlotsQuery struct {
	Actor     identity.Actor
	ServiceID *uuid.UUID
	Status    string
	Source    string
	From      time.Time
	To        time.Time
}

// ListSlotsHandler handles ListSlotsQuery. It is admin only.
type ListSlotsHandler struct {
	slots domain.Repository
}

// NewListSlotsHandler creates a new ListSlotsHandler.
func NewListSlotsHandler(slots domain.Repository) *ListSlotsHandler {
	return &ListSlotsHandler{slots: slots}
}

// Handle executes the query.
func (h *ListSlotsHandler) Handle(ctx context.Context, q ListSlotsQuery) ([]SlotDTO, error) {
	if !q.Actor.IsAdmin() {
		return nil, sharedDomain.ErrForbidden
	}

	filter := domain.Filter{ServiceID: q.ServiceID, From: q.From, To: q.To}
	if q.Status != "" {
		status, err := domain.ParseStatus(q.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}
	if q.Source != "" {
		filter.Source = domain.Source(q.Source)
	}

	slots, err := h.slots.ListAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	dtos := make([]SlotDTO, 0, len(slots))
	for _, s := range slots {
		dtos = append(dtos, ToSlotDTO(s))
	}
	return dtos, nil
}
