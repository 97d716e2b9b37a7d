package domain

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists payments.
type Repository interface {
	Save(ctx context.Context, payment *Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	FindByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*Payment, error)
	FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*Payment, error)
}
