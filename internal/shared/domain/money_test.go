package domain_test

import (
	"testing"

	"github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	t.Run("normalizes currency", func(t *testing.T) {
		m, err := domain.ParseMoney("5000.00", "rub")
		require.NoError(t, err)
		assert.Equal(t, "RUB", m.Currency())
		assert.Equal(t, "5000.00 RUB", m.String())
	})

	t.Run("rejects negative amounts", func(t *testing.T) {
		_, err := domain.ParseMoney("-1", "RUB")
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("rejects bad currency", func(t *testing.T) {
		_, err := domain.ParseMoney("1", "RUBLE")
		assert.ErrorIs(t, err, domain.ErrInvalidCurrency)
	})

	t.Run("rejects malformed amount", func(t *testing.T) {
		_, err := domain.ParseMoney("12,5", "EUR")
		assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
	})
}

func TestMoney_Arithmetic(t *testing.T) {
	a := domain.MustMoney("4000.00", "RUB")
	b := domain.MustMoney("1500.50", "RUB")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, "5500.50", sum.AmountString())

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, "2499.50", diff.AmountString())

	_, err = b.Sub(a)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = a.Add(domain.MustMoney("1", "EUR"))
	assert.ErrorIs(t, err, domain.ErrCurrencyMismatch)

	tripled, err := b.Mul(decimal.NewFromInt(3))
	require.NoError(t, err)
	assert.Equal(t, "4501.50", tripled.AmountString())

	_, err = a.Mul(decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestMoney_Half(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     string
	}{
		{"4000.00", "RUB", "2000.00"},
		{"0.01", "RUB", "0.00"},
		{"0.03", "RUB", "0.02"},
		{"0.05", "EUR", "0.02"},
		{"0.07", "EUR", "0.04"},
		{"5", "JPY", "2"},
		{"7", "JPY", "4"},
	}

	for _, tt := range tests {
		t.Run(tt.amount+tt.currency, func(t *testing.T) {
			half := domain.MustMoney(tt.amount, tt.currency).Half()
			assert.Equal(t, tt.want, half.AmountString())
		})
	}
}

func TestMoney_Equals(t *testing.T) {
	assert.True(t, domain.MustMoney("10", "RUB").Equals(domain.MustMoney("10.00", "RUB")))
	assert.False(t, domain.MustMoney("10", "RUB").Equals(domain.MustMoney("10", "EUR")))
	assert.False(t, domain.MustMoney("10", "RUB").Equals(domain.MustMoney("10.01", "RUB")))
}
