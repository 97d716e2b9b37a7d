package stripe_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/therapia/internal/payments/domain"
	"github.com/felixgeelhaar/therapia/internal/payments/infrastructure/stripe"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

const signingSecret = "whsec_test_secret"

func signStripe(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.", ts)))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventBody(eventType string, amountReceived int64) []byte {
	return []byte(fmt.Sprintf(`{
  "id": "evt_1",
  "object": "event",
  "api_version": "2023-10-16",
  "type": %q,
  "data": {"object": {"id": "pi_123", "object": "payment_intent", "amount": 500000, "amount_received": %d, "currency": "rub"}}
}`, eventType, amountReceived))
}

func TestWebhookDecoder_Succeeded(t *testing.T) {
	d := stripe.NewWebhookDecoder(signingSecret)
	body := eventBody("payment_intent.succeeded", 500000)

	event, err := d.Decode(body, signStripe(body, signingSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "pi_123", event.ProviderPaymentID)
	assert.Equal(t, domain.EventPaymentSucceeded, event.EventType)
	require.NotNil(t, event.Amount)
	assert.True(t, event.Amount.Equals(sharedDomain.MustMoney("5000.00", "RUB")))
	assert.Equal(t, stripe.SignatureHeader, d.SignatureHeader())
}

func TestWebhookDecoder_MapsEventTypes(t *testing.T) {
	d := stripe.NewWebhookDecoder(signingSecret)
	tests := map[string]string{
		"payment_intent.payment_failed": domain.EventPaymentFailed,
		"payment_intent.canceled":       domain.EventPaymentCanceled,
		"payment_intent.created":        "stripe.payment_intent.created",
	}
	for stripeType, want := range tests {
		t.Run(stripeType, func(t *testing.T) {
			body := eventBody(stripeType, 0)
			event, err := d.Decode(body, signStripe(body, signingSecret, time.Now()))
			require.NoError(t, err)
			assert.Equal(t, want, event.EventType)
		})
	}
}

func TestWebhookDecoder_RejectsBadSignatures(t *testing.T) {
	d := stripe.NewWebhookDecoder(signingSecret)
	body := eventBody("payment_intent.succeeded", 500000)

	tests := map[string]string{
		"empty":        "",
		"wrong secret": signStripe(body, "whsec_other", time.Now()),
		"too old":      signStripe(body, signingSecret, time.Now().Add(-time.Hour)),
		"garbage":      "nonsense",
	}
	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := d.Decode(body, header)
			assert.ErrorIs(t, err, sharedDomain.ErrInvalidSignature)
		})
	}
}

func TestWebhookDecoder_MalformedBody(t *testing.T) {
	d := stripe.NewWebhookDecoder(signingSecret)
	body := []byte(`{"id":"evt_2","object":"event","type":"payment_intent.succeeded","data":{"object":{"object":"payment_intent"}}}`)

	_, err := d.Decode(body, signStripe(body, signingSecret, time.Now()))
	assert.ErrorIs(t, err, domain.ErrMalformedWebhook)
}
