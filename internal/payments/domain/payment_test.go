package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/therapia/internal/payments/domain"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
)

var testNow = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func pendingPayment(t *testing.T) *domain.Payment {
	t.Helper()
	p := domain.NewPayment(uuid.New(), uuid.New(), sharedDomain.MustMoney("5000.00", "RUB"), "fake", testNow)
	require.NoError(t, p.AttachProvider("fake_1", "https://pay.example/fake_1", testNow))
	return p
}

func TestPayment_AttachProvider(t *testing.T) {
	p := domain.NewPayment(uuid.New(), uuid.New(), sharedDomain.MustMoney("5000.00", "RUB"), "fake", testNow)
	assert.Equal(t, domain.StatusIntent, p.Status())

	assert.ErrorIs(t, p.AttachProvider("  ", "", testNow), domain.ErrEmptyProviderID)

	require.NoError(t, p.AttachProvider("fake_1", "https://pay.example/fake_1", testNow))
	assert.Equal(t, domain.StatusPending, p.Status())
	assert.Equal(t, "fake_1", p.ProviderPaymentID())
	assert.Equal(t, "https://pay.example/fake_1", p.PaymentURL())

	assert.ErrorIs(t, p.AttachProvider("fake_2", "", testNow), domain.ErrInvalidTransition)
}

func TestPayment_MarkSucceeded(t *testing.T) {
	p := pendingPayment(t)

	changed, err := p.MarkSucceeded(sharedDomain.MustMoney("2500.00", "RUB"), testNow)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, p.IsSucceeded())
	assert.Equal(t, "2500.00", p.Amount().AmountString())
	require.NotNil(t, p.ConfirmedAt())
	require.Len(t, p.DomainEvents(), 1)
	assert.Equal(t, domain.RoutingKeyPaymentSucceeded, p.DomainEvents()[0].RoutingKey())

	changed, err = p.MarkSucceeded(sharedDomain.MustMoney("2500.00", "RUB"), testNow)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, p.DomainEvents(), 1)
}

func TestPayment_MarkSucceeded_FromFailed(t *testing.T) {
	p := pendingPayment(t)
	_, err := p.MarkFailed("card declined", testNow)
	require.NoError(t, err)

	_, err = p.MarkSucceeded(sharedDomain.MustMoney("5000.00", "RUB"), testNow)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.StatusFailed, p.Status())
}

func TestPayment_MarkFailed(t *testing.T) {
	p := pendingPayment(t)

	changed, err := p.MarkFailed("canceled by payer", testNow)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "canceled by payer", p.FailureReason())

	changed, err = p.MarkFailed("again", testNow)
	require.NoError(t, err)
	assert.False(t, changed)

	succeeded := pendingPayment(t)
	_, err = succeeded.MarkSucceeded(succeeded.Amount(), testNow)
	require.NoError(t, err)
	_, err = succeeded.MarkFailed("late cancel", testNow)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestPayment_MarkRefunded(t *testing.T) {
	t.Run("partial refund", func(t *testing.T) {
		p := pendingPayment(t)
		_, err := p.MarkSucceeded(sharedDomain.MustMoney("4000.00", "RUB"), testNow)
		require.NoError(t, err)
		p.ClearDomainEvents()

		half := sharedDomain.MustMoney("2000.00", "RUB")
		assert.True(t, p.CanRefund(half))
		require.NoError(t, p.MarkRefunded(half, testNow))
		assert.Equal(t, domain.StatusRefunded, p.Status())
		require.NotNil(t, p.RefundedAmount())
		assert.True(t, p.RefundedAmount().Equals(half))
		require.Len(t, p.DomainEvents(), 1)
		assert.Equal(t, domain.RoutingKeyPaymentRefunded, p.DomainEvents()[0].RoutingKey())

		require.NoError(t, p.MarkRefunded(half, testNow), "repeated refund is a no-op")
		assert.Len(t, p.DomainEvents(), 1)
	})

	t.Run("rejections", func(t *testing.T) {
		p := pendingPayment(t)
		assert.ErrorIs(t, p.MarkRefunded(sharedDomain.MustMoney("1.00", "RUB"), testNow), domain.ErrInvalidTransition)

		_, err := p.MarkSucceeded(sharedDomain.MustMoney("5000.00", "RUB"), testNow)
		require.NoError(t, err)
		assert.ErrorIs(t, p.MarkRefunded(sharedDomain.MustMoney("5000.01", "RUB"), testNow), domain.ErrRefundExceedsPaid)
		assert.ErrorIs(t, p.MarkRefunded(sharedDomain.MustMoney("10.00", "EUR"), testNow), sharedDomain.ErrCurrencyMismatch)
		assert.False(t, p.CanRefund(sharedDomain.ZeroMoney("RUB")))
	})
}

func TestPayment_RecordRefundFailure(t *testing.T) {
	p := pendingPayment(t)
	_, err := p.MarkSucceeded(p.Amount(), testNow)
	require.NoError(t, err)
	p.ClearDomainEvents()

	p.RecordRefundFailure(sharedDomain.MustMoney("5000.00", "RUB"), "gateway down", testNow)

	assert.Equal(t, domain.StatusSucceeded, p.Status())
	require.Len(t, p.DomainEvents(), 1)
	ev, ok := p.DomainEvents()[0].(*domain.RefundFailed)
	require.True(t, ok)
	assert.Equal(t, "gateway down", ev.Reason)
	assert.Equal(t, "5000.00", ev.Amount)
}

func TestPayment_RecordOrphanedCapture(t *testing.T) {
	p := pendingPayment(t)
	p.RecordOrphanedCapture("appointment canceled", testNow)
	assert.Empty(t, p.DomainEvents(), "nothing was captured yet")

	_, err := p.MarkSucceeded(p.Amount(), testNow)
	require.NoError(t, err)
	p.ClearDomainEvents()

	p.RecordOrphanedCapture("appointment canceled", testNow)

	require.Len(t, p.DomainEvents(), 1)
	ev, ok := p.DomainEvents()[0].(*domain.PaymentOrphaned)
	require.True(t, ok)
	assert.Equal(t, domain.RoutingKeyPaymentOrphaned, ev.RoutingKey())
	assert.Equal(t, "5000.00", ev.Amount)
	assert.Equal(t, p.AppointmentID().String(), ev.AppointmentID)
}
