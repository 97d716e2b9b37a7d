package stripe

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/felixgeelhaar/therapia/internal/payments/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/shopspring/decimal"
	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// SignatureHeader is the header Stripe signs deliveries with.
const SignatureHeader = "Stripe-Signature"

// Stripe event types translated to provider-neutral ones.
var eventTypes = map[string]string{
	"payment_intent.succeeded":      domain.EventPaymentSucceeded,
	"payment_intent.payment_failed": domain.EventPaymentFailed,
	"payment_intent.canceled":       domain.EventPaymentCanceled,
}

// WebhookDecoder verifies Stripe-Signature and maps PaymentIntent events.
type WebhookDecoder struct {
	secret string
}

// NewWebhookDecoder creates a decoder for the endpoint signing secret.
func NewWebhookDecoder(secret string) *WebhookDecoder {
	return &WebhookDecoder{secret: secret}
}

// SignatureHeader implements domain.WebhookDecoder.
func (d *WebhookDecoder) SignatureHeader() string { return SignatureHeader }

// Decode implements domain.WebhookDecoder. Event types other than the
// PaymentIntent ones above are passed through with a "stripe." prefix.
func (d *WebhookDecoder) Decode(body []byte, signature string) (*domain.WebhookEvent, error) {
	if d.secret == "" || signature == "" {
		return nil, sharedDomain.ErrInvalidSignature
	}
	event, err := webhook.ConstructEventWithOptions(body, signature, d.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, sharedDomain.ErrInvalidSignature.Wrap(err)
		}
		return nil, domain.ErrMalformedWebhook.Wrap(err)
	}

	eventType, known := eventTypes[string(event.Type)]
	if !known {
		eventType = "stripe." + string(event.Type)
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, domain.ErrMalformedWebhook.WithMessage("event %s has no data", event.ID)
	}
	var pi stripeapi.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, domain.ErrMalformedWebhook.Wrap(err)
	}
	if pi.ID == "" {
		return nil, domain.ErrMalformedWebhook.WithMessage("event %s has no payment intent id", event.ID)
	}

	out := &domain.WebhookEvent{ProviderPaymentID: pi.ID, EventType: eventType}
	if known && pi.Currency != "" {
		minor := pi.AmountReceived
		if minor == 0 {
			minor = pi.Amount
		}
		m, err := fromMinorUnits(minor, string(pi.Currency))
		if err != nil {
			return nil, domain.ErrMalformedWebhook.Wrap(err)
		}
		out.Amount = &m
	}
	if eventType == domain.EventPaymentSucceeded && out.Amount == nil {
		return nil, domain.ErrMalformedWebhook.WithMessage("succeeded event %s has no amount", event.ID)
	}
	return out, nil
}

func fromMinorUnits(minor int64, currency string) (sharedDomain.Money, error) {
	exp := sharedDomain.ZeroMoney(currency).MinorExponent()
	return sharedDomain.NewMoney(decimal.New(minor, -exp), strings.ToUpper(currency))
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrTooOld)
}
