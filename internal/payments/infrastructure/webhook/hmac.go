// Package webhook verifies and parses provider notifications signed with a
// shared HMAC secret.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/felixgeelhaar/therapia/internal/payments/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw body.
const SignatureHeader = "X-Signature"

type payload struct {
	ProviderPaymentID string `json:"provider_payment_id"`
	EventType         string `json:"event_type"`
	Amount            *struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"amount"`
}

// HMACDecoder checks X-Signature and decodes the generic webhook body.
type HMACDecoder struct {
	secret []byte
}

// NewHMACDecoder creates a decoder for secret.
func NewHMACDecoder(secret string) *HMACDecoder {
	return &HMACDecoder{secret: []byte(secret)}
}

// SignatureHeader implements domain.WebhookDecoder.
func (d *HMACDecoder) SignatureHeader() string { return SignatureHeader }

// Sign returns the signature for body.
func (d *HMACDecoder) Sign(body []byte) string {
	mac := hmac.New(sha256.New, d.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares the signature in constant time.
func (d *HMACDecoder) Verify(body []byte, signature string) bool {
	if len(d.secret) == 0 {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, d.secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Decode implements domain.WebhookDecoder.
func (d *HMACDecoder) Decode(body []byte, signature string) (*domain.WebhookEvent, error) {
	if !d.Verify(body, signature) {
		return nil, sharedDomain.ErrInvalidSignature
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, domain.ErrMalformedWebhook.Wrap(err)
	}
	p.ProviderPaymentID = strings.TrimSpace(p.ProviderPaymentID)
	p.EventType = strings.TrimSpace(p.EventType)
	if p.ProviderPaymentID == "" || p.EventType == "" {
		return nil, domain.ErrMalformedWebhook.WithMessage("provider_payment_id and event_type are required")
	}

	event := &domain.WebhookEvent{ProviderPaymentID: p.ProviderPaymentID, EventType: p.EventType}
	if p.Amount != nil {
		m, err := sharedDomain.ParseMoney(p.Amount.Value, p.Amount.Currency)
		if err != nil {
			return nil, domain.ErrMalformedWebhook.Wrap(err)
		}
		event.Amount = &m
	}
	if event.EventType == domain.EventPaymentSucceeded && event.Amount == nil {
		return nil, domain.ErrMalformedWebhook.WithMessage("amount is required for %s", event.EventType)
	}
	return event, nil
}

// Body builds a webhook body, used by the fake gateway's pay page and tests.
func Body(providerPaymentID, eventType string, amount *sharedDomain.Money) []byte {
	p := payload{ProviderPaymentID: providerPaymentID, EventType: eventType}
	if amount != nil {
		p.Amount = &struct {
			Value    string `json:"value"`
			Currency string `json:"currency"`
		}{Value: amount.AmountString(), Currency: amount.Currency()}
	}
	b, _ := json.Marshal(p)
	return b
}
