package queries

import (
	"context"

	"github.com/felixgeelhaar/therapia/internal/catalog/domain"
	"github.com/google/uuid"
)

// ServiceDTO is the read model of a service.
type ServiceDTO struct {
	ID                 uuid.UUID `json:"id"`
	Slug               string    `json:"slug"`
	Name               string    `json:"name"`
	Price              string    `json:"price"`
	Currency           string    `json:"currency"`
	Deposit            string    `json:"deposit,omitempty"`
	DurationMinutes    int       `json:"duration_minutes"`
	Formats            []string  `json:"formats"`
	CancelFreeHours    int       `json:"cancel_free_hours"`
	CancelPartialHours int       `json:"cancel_partial_hours"`
	RescheduleMinHours int       `json:"reschedule_min_hours"`
	Active             bool      `json:"active"`
}

// ToServiceDTO maps a service to its read model.
func ToServiceDTO(s *domain.Service) ServiceDTO {
	dto := ServiceDTO{
		ID:                 s.ID(),
		Slug:               s.Slug(),
		Name:               s.Name(),
		Price:              s.Price().AmountString(),
		Currency:           s.Price().Currency(),
		DurationMinutes:    s.DurationMinutes(),
		CancelFreeHours:    s.Policy().CancelFreeHours,
		CancelPartialHours: s.Policy().CancelPartialHours,
		RescheduleMinHours: s.Policy().RescheduleMinHours,
		Active:             s.IsActive(),
	}
	if d := s.Deposit(); d != nil {
		dto.Deposit = d.AmountString()
	}
	for _, f := range s.Formats() {
		dto.Formats = append(dto.Formats, string(f))
	}
	return dto
}

// ListServicesQuery lists the catalog.
type ListServicesQuery struct {
	IncludeInactive bool
}

// ListServicesHandler handles ListServicesQuery.
type ListServicesHandler struct {
	repo domain.ServiceRepository
}

// NewListServicesHandler creates a new ListServicesHandler.
func NewListServicesHandler(repo domain.ServiceRepository) *ListServicesHandler {
	return &ListServicesHandler{repo: repo}
}

// Handle executes the query.
func (h *ListServicesHandler) Handle(ctx context.Context, q ListServicesQuery) ([]ServiceDTO, error) {
	services, err := h.repo.List(ctx, q.IncludeInactive)
	if err != nil {
		return nil, err
	}
	out := make([]ServiceDTO, 0, len(services))
	for _, s := range services {
		out = append(out, ToServiceDTO(s))
	}
	return out, nil
}

// GetServiceHandler loads a single service by ID or slug.
type GetServiceHandler struct {
	repo domain.ServiceRepository
}

// NewGetServiceHandler creates a new GetServiceHandler.
func NewGetServiceHandler(repo domain.ServiceRepository) *GetServiceHandler {
	return &GetServiceHandler{repo: repo}
}

// Handle resolves ref as a UUID first, then as a slug.
func (h *GetServiceHandler) Handle(ctx context.Context, ref string) (*ServiceDTO, error) {
	var (
		svc *domain.Service
		err error
	)
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		svc, err = h.repo.FindByID(ctx, id)
	} else {
		svc, err = h.repo.FindBySlug(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	dto := ToServiceDTO(svc)
	return &dto, nil
}
