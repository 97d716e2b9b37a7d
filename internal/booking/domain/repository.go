package domain

import (
	"context"
	"time"

	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/google/uuid"
)

// Repository persists appointments. Insert and UpdateSlot enforce that no two
// active appointments of a service overlap and fail with ErrSlotConflict.
type Repository interface {
	Insert(ctx context.Context, a *Appointment) error
	Save(ctx context.Context, a *Appointment) error
	UpdateSlot(ctx context.Context, a *Appointment) error
	FindByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	HasOverlap(ctx context.Context, serviceID uuid.UUID, slot sharedDomain.TimeSlot, exclude uuid.UUID) (bool, error)
	ListActiveInRange(ctx context.Context, serviceID uuid.UUID, from, to time.Time) ([]*Appointment, error)
}
