package commands_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/therapia/internal/payments/application/commands"
	"github.com/felixgeelhaar/therapia/internal/payments/domain"
	"github.com/felixgeelhaar/therapia/internal/payments/infrastructure/persistence"
	"github.com/felixgeelhaar/therapia/internal/payments/infrastructure/webhook"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/database/dbtest"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/outbox"
)

var testNow = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

type webhookFixture struct {
	handler  *commands.ProcessWebhookHandler
	decoder  *webhook.HMACDecoder
	payments *persistence.SQLPaymentRepository
	outbox   *outbox.SQLRepository
	payment  *domain.Payment
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	conn := dbtest.NewSQLite(t)
	serviceID := dbtest.SeedService(t, conn, "individual")
	appointmentID := dbtest.SeedAppointment(t, conn, serviceID, testNow.Add(48*time.Hour))

	repo := persistence.NewSQLPaymentRepository(conn)
	p := domain.NewPayment(uuid.New(), appointmentID, sharedDomain.MustMoney("5000.00", "RUB"), "fake", testNow)
	require.NoError(t, p.AttachProvider("fake_1", "", testNow))
	require.NoError(t, repo.Save(context.Background(), p))

	ob := outbox.NewSQLRepository(conn)
	decoder := webhook.NewHMACDecoder("whsec_test")
	handler := commands.NewProcessWebhookHandler(
		decoder,
		repo,
		persistence.NewSQLWebhookLedger(conn),
		outbox.NewRecorder(ob),
		database.NewUnitOfWork(conn),
		sharedDomain.NewFixedClock(testNow),
		5*time.Second,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return &webhookFixture{handler: handler, decoder: decoder, payments: repo, outbox: ob, payment: p}
}

func (f *webhookFixture) deliver(t *testing.T, providerID, eventType string, amount *sharedDomain.Money) (*commands.ProcessWebhookResult, error) {
	t.Helper()
	body := webhook.Body(providerID, eventType, amount)
	return f.handler.Handle(context.Background(), commands.ProcessWebhookCommand{Body: body, Signature: f.decoder.Sign(body)})
}

func (f *webhookFixture) routingKeys(t *testing.T) []string {
	t.Helper()
	msgs, err := f.outbox.GetUnpublished(context.Background(), 100)
	require.NoError(t, err)
	keys := make([]string, 0, len(msgs))
	for _, m := range msgs {
		keys = append(keys, m.RoutingKey)
	}
	return keys
}

func (f *webhookFixture) reload(t *testing.T) *domain.Payment {
	t.Helper()
	p, err := f.payments.FindByID(context.Background(), f.payment.ID())
	require.NoError(t, err)
	return p
}

func TestProcessWebhook_SucceededIsAppliedOnce(t *testing.T) {
	f := newWebhookFixture(t)
	amount := sharedDomain.MustMoney("5000.00", "RUB")
	assert.Equal(t, webhook.SignatureHeader, f.handler.SignatureHeader())

	res, err := f.deliver(t, "fake_1", domain.EventPaymentSucceeded, &amount)
	require.NoError(t, err)
	assert.Equal(t, commands.OutcomeApplied, res.Outcome)
	assert.Equal(t, f.payment.ID(), res.PaymentID)
	assert.Equal(t, domain.EventPaymentSucceeded, res.EventType)

	p := f.reload(t)
	assert.Equal(t, domain.StatusSucceeded, p.Status())
	assert.NotNil(t, p.ConfirmedAt())
	assert.Equal(t, []string{domain.RoutingKeyPaymentSucceeded}, f.routingKeys(t))

	again, err := f.deliver(t, "fake_1", domain.EventPaymentSucceeded, &amount)
	require.NoError(t, err)
	assert.Equal(t, commands.OutcomeDuplicate, again.Outcome)
	assert.Equal(t, []string{domain.RoutingKeyPaymentSucceeded}, f.routingKeys(t))
}

func TestProcessWebhook_PaidAmountReplacesRequested(t *testing.T) {
	f := newWebhookFixture(t)
	paid := sharedDomain.MustMoney("1000.00", "RUB")

	res, err := f.deliver(t, "fake_1", domain.EventPaymentSucceeded, &paid)
	require.NoError(t, err)
	assert.Equal(t, commands.OutcomeApplied, res.Outcome)
	assert.Equal(t, "1000.00", f.reload(t).Amount().AmountString())
}

func TestProcessWebhook_Canceled(t *testing.T) {
	f := newWebhookFixture(t)

	res, err := f.deliver(t, "fake_1", domain.EventPaymentCanceled, nil)
	require.NoError(t, err)
	assert.Equal(t, commands.OutcomeApplied, res.Outcome)

	p := f.reload(t)
	assert.Equal(t, domain.StatusFailed, p.Status())
	assert.Equal(t, domain.EventPaymentCanceled, p.FailureReason())
	assert.Equal(t, []string{domain.RoutingKeyPaymentFailed}, f.routingKeys(t))

	failed, err := f.deliver(t, "fake_1", domain.EventPaymentFailed, nil)
	require.NoError(t, err)
	assert.Equal(t, commands.OutcomeUnchanged, failed.Outcome)
}

func TestProcessWebhook_ProtocolViolation(t *testing.T) {
	f := newWebhookFixture(t)
	amount := sharedDomain.MustMoney("5000.00", "RUB")
	_, err := f.deliver(t, "fake_1", domain.EventPaymentSucceeded, &amount)
	require.NoError(t, err)

	res, err := f.deliver(t, "fake_1", domain.EventPaymentCanceled, nil)
	require.NoError(t, err)
	assert.Equal(t, commands.OutcomeProtocolViolation, res.Outcome)
	assert.Equal(t, domain.StatusSucceeded, f.reload(t).Status())
}

func TestProcessWebhook_UnknownPaymentAndType(t *testing.T) {
	f := newWebhookFixture(t)
	amount := sharedDomain.MustMoney("5000.00", "RUB")

	res, err := f.deliver(t, "fake_missing", domain.EventPaymentSucceeded, &amount)
	require.NoError(t, err)
	assert.Equal(t, commands.OutcomeUnknownPayment, res.Outcome)
	assert.Equal(t, uuid.Nil, res.PaymentID)

	res, err = f.deliver(t, "fake_missing", domain.EventPaymentSucceeded, &amount)
	require.NoError(t, err)
	assert.Equal(t, commands.OutcomeDuplicate, res.Outcome)

	res, err = f.deliver(t, "fake_1", "payment.waiting_for_capture", nil)
	require.NoError(t, err)
	assert.Equal(t, commands.OutcomeIgnored, res.Outcome)
	assert.Equal(t, domain.StatusPending, f.reload(t).Status())
	assert.Empty(t, f.routingKeys(t))
}

func TestProcessWebhook_AlreadySucceeded(t *testing.T) {
	f := newWebhookFixture(t)
	amount := sharedDomain.MustMoney("5000.00", "RUB")
	p := f.reload(t)
	_, err := p.MarkSucceeded(amount, testNow)
	require.NoError(t, err)
	require.NoError(t, f.payments.Save(context.Background(), p))

	res, err := f.deliver(t, "fake_1", domain.EventPaymentSucceeded, &amount)
	require.NoError(t, err)
	assert.Equal(t, commands.OutcomeUnchanged, res.Outcome)
	assert.Empty(t, f.routingKeys(t))
}

func TestProcessWebhook_RejectsBeforeTouchingState(t *testing.T) {
	f := newWebhookFixture(t)
	amount := sharedDomain.MustMoney("5000.00", "RUB")
	body := webhook.Body("fake_1", domain.EventPaymentSucceeded, &amount)

	_, err := f.handler.Handle(context.Background(), commands.ProcessWebhookCommand{Body: body, Signature: "deadbeef"})
	assert.ErrorIs(t, err, sharedDomain.ErrInvalidSignature)
	assert.Equal(t, sharedDomain.CodeInvalidSignature, sharedDomain.CodeOf(err))

	garbage := []byte(`{"event_type":`)
	_, err = f.handler.Handle(context.Background(), commands.ProcessWebhookCommand{Body: garbage, Signature: f.decoder.Sign(garbage)})
	assert.ErrorIs(t, err, domain.ErrMalformedWebhook)

	assert.Equal(t, domain.StatusPending, f.reload(t).Status())

	// The rejected deliveries left no ledger entry behind.
	res, err := f.deliver(t, "fake_1", domain.EventPaymentSucceeded, &amount)
	require.NoError(t, err)
	assert.Equal(t, commands.OutcomeApplied, res.Outcome)
}
