package domain

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists waitlist requests.
type Repository interface {
	Save(ctx context.Context, r *Request) error
	FindByID(ctx context.Context, id uuid.UUID) (*Request, error)
	ListByService(ctx context.Context, serviceID uuid.UUID) ([]*Request, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
