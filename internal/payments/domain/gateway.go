package domain

import (
	"context"

	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/google/uuid"
)

var (
	ErrGatewayUnavailable = sharedDomain.NewUpstreamError("PAYMENT_GATEWAY_UNAVAILABLE", "payment provider is unavailable")
	ErrGatewayRejected    = sharedDomain.NewInternalError("PAYMENT_GATEWAY_REJECTED", "payment provider rejected the request")
)

// IntentRequest asks the provider to prepare a charge.
type IntentRequest struct {
	AppointmentID  uuid.UUID
	Amount         sharedDomain.Money
	Description    string
	ReturnURL      string
	IdempotencyKey string
}

// Intent is the provider's answer to an IntentRequest.
type Intent struct {
	ProviderPaymentID string
	PaymentURL        string
}

// RefundRequest returns money for a succeeded payment.
type RefundRequest struct {
	ProviderPaymentID string
	Amount            sharedDomain.Money
	IdempotencyKey    string
}

// Gateway is the payment provider.
type Gateway interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	Refund(ctx context.Context, req RefundRequest) error
}
