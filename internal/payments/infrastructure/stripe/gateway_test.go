package stripe_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/therapia/internal/payments/domain"
	"github.com/felixgeelhaar/therapia/internal/payments/infrastructure/stripe"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

type recordedRequest struct {
	path           string
	form           url.Values
	idempotencyKey string
}

func newStripeServer(t *testing.T, status int, body string) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		mu.Lock()
		reqs = append(reqs, recordedRequest{path: r.URL.Path, form: r.PostForm, idempotencyKey: r.Header.Get("Idempotency-Key")})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), reqs...)
	}
}

func TestGateway_CreateIntent(t *testing.T) {
	srv, requests := newStripeServer(t, http.StatusOK, `{"id":"pi_123","object":"payment_intent","client_secret":"pi_123_secret_abc","amount":500000,"currency":"rub","status":"requires_payment_method"}`)
	gw := stripe.NewGateway(stripe.Config{SecretKey: "sk_test_123", BaseURL: srv.URL})

	appointmentID := uuid.New()
	intent, err := gw.CreateIntent(context.Background(), domain.IntentRequest{
		AppointmentID:  appointmentID,
		Amount:         sharedDomain.MustMoney("5000.00", "RUB"),
		Description:    "Individual session",
		ReturnURL:      "https://app.example.com/booking/return",
		IdempotencyKey: "appointment:" + appointmentID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.ProviderPaymentID)

	u, err := url.Parse(intent.PaymentURL)
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", u.Host)
	assert.Equal(t, "pi_123", u.Query().Get("payment_intent"))
	assert.Equal(t, "pi_123_secret_abc", u.Query().Get("payment_intent_client_secret"))

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/v1/payment_intents", reqs[0].path)
	assert.Equal(t, "500000", reqs[0].form.Get("amount"))
	assert.Equal(t, "rub", reqs[0].form.Get("currency"))
	assert.Equal(t, appointmentID.String(), reqs[0].form.Get("metadata[appointment_id]"))
	assert.Equal(t, "appointment:"+appointmentID.String(), reqs[0].idempotencyKey)
	assert.Equal(t, stripe.ProviderName, gw.Name())
}

func TestGateway_Refund(t *testing.T) {
	srv, requests := newStripeServer(t, http.StatusOK, `{"id":"re_1","object":"refund","status":"succeeded"}`)
	gw := stripe.NewGateway(stripe.Config{SecretKey: "sk_test_123", BaseURL: srv.URL})

	err := gw.Refund(context.Background(), domain.RefundRequest{
		ProviderPaymentID: "pi_123",
		Amount:            sharedDomain.MustMoney("2500.00", "RUB"),
		IdempotencyKey:    "refund:1",
	})
	require.NoError(t, err)

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/v1/refunds", reqs[0].path)
	assert.Equal(t, "pi_123", reqs[0].form.Get("payment_intent"))
	assert.Equal(t, "250000", reqs[0].form.Get("amount"))
	assert.Equal(t, "refund:1", reqs[0].idempotencyKey)
}

func TestGateway_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"card declined", http.StatusPaymentRequired, domain.ErrGatewayRejected},
		{"bad request", http.StatusBadRequest, domain.ErrGatewayRejected},
		{"rate limited", http.StatusTooManyRequests, domain.ErrGatewayUnavailable},
		{"server error", http.StatusServiceUnavailable, domain.ErrGatewayUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(map[string]any{"error": map[string]any{"type": "api_error", "message": tt.name}})
			srv, _ := newStripeServer(t, tt.status, string(body))
			gw := stripe.NewGateway(stripe.Config{SecretKey: "sk_test_123", BaseURL: srv.URL})

			_, err := gw.CreateIntent(context.Background(), domain.IntentRequest{
				AppointmentID: uuid.New(),
				Amount:        sharedDomain.MustMoney("10.00", "EUR"),
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGateway_UnreachableIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	gw := stripe.NewGateway(stripe.Config{SecretKey: "sk_test_123", BaseURL: base})
	err := gw.Refund(context.Background(), domain.RefundRequest{ProviderPaymentID: "pi_1", Amount: sharedDomain.MustMoney("1.00", "EUR")})
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.Equal(t, sharedDomain.CodeUpstreamUnavailable, sharedDomain.CodeOf(err))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(500000), stripe.MinorUnits(sharedDomain.MustMoney("5000.00", "RUB")))
	assert.Equal(t, int64(5000), stripe.MinorUnits(sharedDomain.MustMoney("5000", "JPY")))
	assert.Equal(t, int64(1250), stripe.MinorUnits(sharedDomain.MustMoney("1.250", "KWD")))
}
