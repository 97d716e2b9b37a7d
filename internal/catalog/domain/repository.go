package domain

import (
	"context"

	"github.com/google/uuid"
)

// ServiceRepository persists services.
type ServiceRepository interface {
	Save(ctx context.Context, service *Service) error
	FindByID(ctx context.Context, id uuid.UUID) (*Service, error)
	FindBySlug(ctx context.Context, slug string) (*Service, error)
	List(ctx context.Context, includeInactive bool) ([]*Service, error)
}
