// Package queries holds the waitlist read side.
package queries

import (
	"context"
	"time"

	"github.com/google/uuid"

	identity "github.com/felixgeelhaar/therapia/internal/identity/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/internal/waitlist/domain"
)

// RequestDTO is a waitlist entry as shown to staff.
type RequestDTO struct {
	ID             uuid.UUID  `json:"id"`
	ServiceID      uuid.UUID  `json:"service_id"`
	ClientID       *uuid.UUID `json:"client_id,omitempty"`
	ContactInfo    string     `json:"contact_info"`
	PreferredStart *time.Time `json:"preferred_start,omitempty"`
	PreferredEnd   *time.Time `json:"preferred_end,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ListRequestsQuery lists the waitlist of one service.
type ListRequestsQuery struct {
	Actor     identity.Actor
	ServiceID uuid.UUID
}

// ListRequestsHandler handles ListRequestsQuery. Only staff may read
// contact details.
type ListRequestsHandler struct {
	requests domain.Repository
}

// NewListRequestsHandler creates a new ListRequestsHandler.
func NewListRequestsHandler(requests domain.Repository) *ListRequestsHandler {
	return &ListRequestsHandler{requests: requests}
}

func (h *ListRequestsHandler) Handle(ctx context.Context, q ListRequestsQuery) ([]RequestDTO, error) {
	if !q.Actor.IsAdmin() {
		return nil, sharedDomain.ErrForbidden
	}
	requests, err := h.requests.ListByService(ctx, q.ServiceID)
	if err != nil {
		return nil, err
	}
	out := make([]RequestDTO, 0, len(requests))
	for _, r := range requests {
		dto := RequestDTO{
			ID:          r.ID(),
			ServiceID:   r.ServiceID(),
			ClientID:    r.ClientID(),
			ContactInfo: r.Contact(),
			CreatedAt:   r.CreatedAt(),
		}
		if w := r.PreferredWindow(); w != nil {
			start, end := w.Start(), w.End()
			dto.PreferredStart, dto.PreferredEnd = &start, &end
		}
		out = append(out, dto)
	}
	return out, nil
}
