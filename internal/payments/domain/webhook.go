package domain

import (
	"context"
	"time"

	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

var (
	ErrMalformedWebhook = sharedDomain.NewValidationError("MALFORMED_WEBHOOK", "webhook body is malformed")
	ErrDuplicateWebhook = sharedDomain.NewConflictError("DUPLICATE_WEBHOOK", "webhook already processed")
)

// Provider event types understood by the webhook processor.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentCanceled  = "payment.canceled"
	EventPaymentFailed    = "payment.failed"
)

// WebhookEvent is a verified, parsed provider notification.
type WebhookEvent struct {
	ProviderPaymentID string
	EventType         string
	Amount            *sharedDomain.Money
}

// WebhookDecoder verifies and parses raw webhook deliveries. Bad signatures
// fail with sharedDomain.ErrInvalidSignature, bad bodies with
// ErrMalformedWebhook.
type WebhookDecoder interface {
	SignatureHeader() string
	Decode(body []byte, signature string) (*WebhookEvent, error)
}

// WebhookLedger remembers processed (provider_payment_id, event_type) pairs.
type WebhookLedger interface {
	Exists(ctx context.Context, providerPaymentID, eventType string) (bool, error)
	Record(ctx context.Context, providerPaymentID, eventType string, at time.Time) error
}
