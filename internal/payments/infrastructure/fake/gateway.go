// Package fake provides an in-memory payment gateway for local mode and
// tests. Payments are completed by posting a signed webhook.
package fake

import (
	"context"
	"net/url"
	"sync"

	"github.com/felixgeelhaar/therapia/internal/payments/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/google/uuid"
)

// ProviderName identifies the fake gateway in stored payments.
const ProviderName = "fake"

// Refund is a refund the gateway accepted.
type Refund struct {
	ProviderPaymentID string
	Amount            sharedDomain.Money
	IdempotencyKey    string
}

// Gateway hands out "fake_<uuid>" payment IDs and records refunds.
type Gateway struct {
	mu       sync.Mutex
	baseURL  string
	intents  map[string]domain.IntentRequest
	byKey    map[string]string
	refunds  []Refund
	intentFn func() error
	refundFn func() error
}

// NewGateway creates a fake gateway whose payment pages live under baseURL.
func NewGateway(baseURL string) *Gateway {
	if baseURL == "" {
		baseURL = "http://localhost:8080/fake-pay"
	}
	return &Gateway{
		baseURL: baseURL,
		intents: make(map[string]domain.IntentRequest),
		byKey:   make(map[string]string),
	}
}

// FailIntents makes CreateIntent return err until cleared with nil.
func (g *Gateway) FailIntents(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intentFn = errFn(err)
}

// FailRefunds makes Refund return err until cleared with nil.
func (g *Gateway) FailRefunds(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundFn = errFn(err)
}

func errFn(err error) func() error {
	if err == nil {
		return nil
	}
	return func() error { return err }
}

// Name implements domain.Gateway.
func (g *Gateway) Name() string { return ProviderName }

// CreateIntent implements domain.Gateway. Repeating an idempotency key
// returns the original intent.
func (g *Gateway) CreateIntent(_ context.Context, req domain.IntentRequest) (*domain.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.intentFn != nil {
		return nil, domain.ErrGatewayUnavailable.Wrap(g.intentFn())
	}
	if id, ok := g.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return &domain.Intent{ProviderPaymentID: id, PaymentURL: g.paymentURL(id, req.ReturnURL)}, nil
	}
	id := "fake_" + uuid.NewString()
	g.intents[id] = req
	if req.IdempotencyKey != "" {
		g.byKey[req.IdempotencyKey] = id
	}
	return &domain.Intent{ProviderPaymentID: id, PaymentURL: g.paymentURL(id, req.ReturnURL)}, nil
}

func (g *Gateway) paymentURL(id, returnURL string) string {
	q := url.Values{"payment_id": {id}}
	if returnURL != "" {
		q.Set("return_url", returnURL)
	}
	return g.baseURL + "?" + q.Encode()
}

// Refund implements domain.Gateway.
func (g *Gateway) Refund(_ context.Context, req domain.RefundRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundFn != nil {
		return domain.ErrGatewayUnavailable.Wrap(g.refundFn())
	}
	if _, ok := g.intents[req.ProviderPaymentID]; !ok {
		return domain.ErrGatewayRejected.WithMessage("unknown payment %s", req.ProviderPaymentID)
	}
	for _, r := range g.refunds {
		if req.IdempotencyKey != "" && r.IdempotencyKey == req.IdempotencyKey {
			return nil
		}
	}
	g.refunds = append(g.refunds, Refund{
		ProviderPaymentID: req.ProviderPaymentID,
		Amount:            req.Amount,
		IdempotencyKey:    req.IdempotencyKey,
	})
	return nil
}

// Intent returns the request behind a provider payment ID.
func (g *Gateway) Intent(providerPaymentID string) (domain.IntentRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, ok := g.intents[providerPaymentID]
	return req, ok
}

// IntentFor returns the provider payment ID created for an appointment.
func (g *Gateway) IntentFor(appointmentID uuid.UUID) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, req := range g.intents {
		if req.AppointmentID == appointmentID {
			return id, true
		}
	}
	return "", false
}

// Refunds returns the accepted refunds in order.
func (g *Gateway) Refunds() []Refund {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Refund(nil), g.refunds...)
}
