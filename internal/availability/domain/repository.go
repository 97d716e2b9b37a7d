package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows admin slot listings. Zero fields are ignored.
type Filter struct {
	ServiceID *uuid.UUID
	Status    Status
	Source    Source
	From      time.Time
	To        time.Time
}

// Repository persists availability slots.
type Repository interface {
	Save(ctx context.Context, slot *Slot) error
	SaveBatch(ctx context.Context, slots []*Slot) error
	FindByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	FindByExternalEventID(ctx context.Context, externalEventID string) (*Slot, error)
	// ListAvailable returns available slots of serviceID or global slots
	// intersecting [from, to).
	ListAvailable(ctx context.Context, serviceID uuid.UUID, from, to time.Time) ([]*Slot, error)
	ListAll(ctx context.Context, filter Filter) ([]*Slot, error)
	DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
