package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/therapia/internal/app"
	identity "github.com/felixgeelhaar/therapia/internal/identity/domain"
	"github.com/felixgeelhaar/therapia/internal/payments/infrastructure/fake"
	"github.com/felixgeelhaar/therapia/internal/payments/infrastructure/webhook"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/pkg/config"
)

const (
	testJWTSecret     = "jwt-test-secret"
	testWebhookSecret = "whsec-test"
)

var testNow = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	t      *testing.T
	c      *app.Container
	server *Server
	clock  *sharedDomain.FixedClock

	ownerToken  string
	clientID    uuid.UUID
	clientToken string
}

func newTestEnv(t *testing.T, mutate ...func(*ServerConfig)) *testEnv {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	cfg := &config.Config{
		AppEnv:                "test",
		EncryptionKey:         base64.StdEncoding.EncodeToString(key),
		DatabaseURL:           filepath.Join(t.TempDir(), "therapia.db"),
		LocalMode:             true,
		JWTSecret:             testJWTSecret,
		PaymentProvider:       "fake",
		PaymentWebhookSecret:  testWebhookSecret,
		CalendarProvider:      "mock",
		CalendarTZ:            "UTC",
		UseCaseTimeout:        5 * time.Second,
		WebhookTimeout:        5 * time.Second,
		AvailabilityRetention: 30 * 24 * time.Hour,
		OutboxPollInterval:    time.Hour,
		OutboxBatchSize:       100,
		OutboxMaxRetries:      5,
		CalendarRetryAttempts: 1,
		CalendarRetryBase:     time.Millisecond,
		CalendarRetryMax:      time.Millisecond,
	}

	clock := sharedDomain.NewFixedClock(testNow)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := app.NewContainer(context.Background(), cfg, logger, app.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	sc := ServerConfigFrom(cfg)
	sc.RateLimitRPS = 0
	for _, m := range mutate {
		m(&sc)
	}

	env := &testEnv{
		t:        t,
		c:        c,
		server:   NewServer(sc, c),
		clock:    clock,
		clientID: uuid.New(),
	}
	env.ownerToken = env.token(uuid.New(), identity.RoleOwner)
	env.clientToken = env.token(env.clientID, identity.RoleClient)
	return env
}

func (e *testEnv) token(userID uuid.UUID, roles ...identity.Role) string {
	e.t.Helper()
	tok, err := IssueToken(testJWTSecret, userID, roles, time.Hour)
	require.NoError(e.t, err)
	return tok
}

// do sends a request through the router. body may be nil, []byte or any
// JSON-encodable value.
func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (e *testEnv) createService(slug, price string) uuid.UUID {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/admin/services", e.ownerToken, map[string]any{
		"slug":                 slug,
		"name":                 "Session " + slug,
		"price":                price,
		"currency":             "RUB",
		"duration_minutes":     60,
		"formats":              []string{"online"},
		"cancel_free_hours":    24,
		"cancel_partial_hours": 6,
		"reschedule_min_hours": 24,
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[map[string]uuid.UUID](e.t, rec)["id"]
}

func (e *testEnv) openWindow(serviceID uuid.UUID, start, end time.Time) {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/admin/availability", e.ownerToken, map[string]any{
		"service_id": serviceID,
		"start":      start,
		"end":        end,
		"tz":         "Europe/Moscow",
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (e *testEnv) book(serviceID uuid.UUID, start time.Time) *httptest.ResponseRecorder {
	e.t.Helper()
	return e.do(http.MethodPost, "/booking/appointments", e.clientToken, map[string]any{
		"service_id": serviceID,
		"start":      start,
		"end":        start.Add(time.Hour),
		"tz":         "Europe/Moscow",
		"format":     "online",
	})
}

func (e *testEnv) mustBook(serviceID uuid.UUID, start time.Time) bookResponse {
	e.t.Helper()
	rec := e.book(serviceID, start)
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[bookResponse](e.t, rec)
}

// payWebhook builds a signed payment.succeeded delivery for an appointment.
func (e *testEnv) payWebhook(appointmentID uuid.UUID, amount string) (body []byte, signature string) {
	e.t.Helper()
	gateway := e.c.Gateway.(*fake.Gateway)
	providerPaymentID, ok := gateway.IntentFor(appointmentID)
	require.True(e.t, ok, "no payment intent for %s", appointmentID)
	money, err := sharedDomain.ParseMoney(amount, "RUB")
	require.NoError(e.t, err)
	body = webhook.Body(providerPaymentID, "payment.succeeded", &money)
	return body, webhook.NewHMACDecoder(testWebhookSecret).Sign(body)
}

func (e *testEnv) deliverWebhook(body []byte, signature string) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, signature)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

// drain runs the outbox until subscribers have seen every cascade of events.
func (e *testEnv) drain() {
	e.t.Helper()
	for i := 0; i < 4; i++ {
		require.NoError(e.t, e.c.OutboxProcessor.ProcessOnce(context.Background()))
	}
}

// confirm books start and pays the full amount.
func (e *testEnv) confirm(serviceID uuid.UUID, start time.Time, amount string) uuid.UUID {
	e.t.Helper()
	booked := e.mustBook(serviceID, start)
	body, sig := e.payWebhook(booked.Appointment.ID, amount)
	rec := e.deliverWebhook(body, sig)
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
	e.drain()
	return booked.Appointment.ID
}

func (e *testEnv) appointment(id uuid.UUID) map[string]any {
	e.t.Helper()
	rec := e.do(http.MethodGet, "/booking/appointments/"+id.String(), e.clientToken, nil)
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[map[string]any](e.t, rec)
}

func (e *testEnv) outboxCount(routingKey string) int {
	e.t.Helper()
	var n int
	err := e.c.DBConn.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM outbox WHERE routing_key = $1`, routingKey,
	).Scan(&n)
	require.NoError(e.t, err)
	return n
}
