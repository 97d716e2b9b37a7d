// Package stripe implements the payment gateway and webhook decoder on top
// of Stripe PaymentIntents.
package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/therapia/internal/payments/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// ProviderName identifies Stripe in stored payments.
const ProviderName = "stripe"

// Config configures the Stripe gateway.
type Config struct {
	SecretKey string
	// BaseURL overrides the API endpoint, used by tests.
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Gateway creates PaymentIntents and refunds through the Stripe API.
type Gateway struct {
	api *client.API
}

// NewGateway creates a Stripe gateway.
func NewGateway(cfg Config) *Gateway {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	backendCfg := &stripeapi.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripeapi.Int64(0),
		LeveledLogger:     &stripeapi.LeveledLogger{Level: stripeapi.LevelError},
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripeapi.String(strings.TrimRight(cfg.BaseURL, "/"))
	}
	backends := &stripeapi.Backends{
		API:     stripeapi.GetBackendWithConfig(stripeapi.APIBackend, backendCfg),
		Connect: stripeapi.GetBackendWithConfig(stripeapi.ConnectBackend, backendCfg),
		Uploads: stripeapi.GetBackendWithConfig(stripeapi.UploadsBackend, backendCfg),
	}
	return &Gateway{api: client.New(cfg.SecretKey, backends)}
}

// Name implements domain.Gateway.
func (g *Gateway) Name() string { return ProviderName }

// CreateIntent implements domain.Gateway. The payment URL points at
// ReturnURL with the intent's client secret so the front-end can mount
// Stripe Elements.
func (g *Gateway) CreateIntent(ctx context.Context, req domain.IntentRequest) (*domain.Intent, error) {
	params := &stripeapi.PaymentIntentParams{
		Amount:      stripeapi.Int64(MinorUnits(req.Amount)),
		Currency:    stripeapi.String(strings.ToLower(req.Amount.Currency())),
		Description: stripeapi.String(req.Description),
		AutomaticPaymentMethods: &stripeapi.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripeapi.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("appointment_id", req.AppointmentID.String())
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, classify(err)
	}
	return &domain.Intent{
		ProviderPaymentID: pi.ID,
		PaymentURL:        paymentURL(req.ReturnURL, pi.ID, pi.ClientSecret),
	}, nil
}

// Refund implements domain.Gateway.
func (g *Gateway) Refund(ctx context.Context, req domain.RefundRequest) error {
	params := &stripeapi.RefundParams{
		PaymentIntent: stripeapi.String(req.ProviderPaymentID),
		Amount:        stripeapi.Int64(MinorUnits(req.Amount)),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	if _, err := g.api.Refunds.New(params); err != nil {
		return classify(err)
	}
	return nil
}

// MinorUnits converts m to the integer amount Stripe expects.
func MinorUnits(m sharedDomain.Money) int64 {
	return m.Amount().Shift(m.MinorExponent()).IntPart()
}

func paymentURL(returnURL, id, secret string) string {
	u, err := url.Parse(returnURL)
	if err != nil || returnURL == "" {
		return ""
	}
	q := u.Query()
	q.Set("payment_intent", id)
	q.Set("payment_intent_client_secret", secret)
	u.RawQuery = q.Encode()
	return u.String()
}

// classify maps Stripe failures: request errors are permanent, everything
// else (5xx, rate limits, transport) is reported as unavailable.
func classify(err error) error {
	var se *stripeapi.Error
	if errors.As(err, &se) {
		switch {
		case se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= 500:
			return domain.ErrGatewayUnavailable.Wrap(err)
		case se.HTTPStatusCode >= 400:
			return domain.ErrGatewayRejected.Wrap(err)
		}
	}
	return domain.ErrGatewayUnavailable.Wrap(err)
}
