package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount    = NewBusinessRuleError("INVALID_AMOUNT", "amount must not be negative")
	ErrCurrencyMismatch = NewBusinessRuleError("CURRENCY_MISMATCH", "currencies differ")
	ErrInvalidCurrency  = NewValidationError("INVALID_CURRENCY", "currency must be a three-letter ISO 4217 code")
)

// minorUnits lists currencies whose minor unit is not two decimal places.
var minorUnits = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"CLP": 0,
	"ISK": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
	"JOD": 3,
	"TND": 3,
}

// Money is an exact, non-negative amount in a single currency.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// NewMoney creates money from a decimal amount.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return Money{}, ErrInvalidCurrency
	}
	if amount.IsNegative() {
		return Money{}, ErrInvalidAmount
	}
	return Money{amount: amount, currency: currency}, nil
}

// ParseMoney creates money from a decimal string such as "5000.00".
func ParseMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, NewValidationError("INVALID_AMOUNT_FORMAT", fmt.Sprintf("invalid amount %q", amount))
	}
	return NewMoney(d, currency)
}

// MustMoney is ParseMoney for literals known to be valid.
func MustMoney(amount, currency string) Money {
	m, err := ParseMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// ZeroMoney returns zero in currency.
func ZeroMoney(currency string) Money {
	return Money{amount: decimal.Zero, currency: strings.ToUpper(currency)}
}

func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) Currency() string        { return m.currency }
func (m Money) IsZero() bool            { return m.amount.IsZero() }

// MinorExponent is the number of decimal places of the currency's minor unit.
func (m Money) MinorExponent() int32 {
	if exp, ok := minorUnits[m.currency]; ok {
		return exp
	}
	return 2
}

// Add returns m + other.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Sub returns m - other; a negative result fails with INVALID_AMOUNT.
func (m Money) Sub(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, ErrCurrencyMismatch
	}
	diff := m.amount.Sub(other.amount)
	if diff.IsNegative() {
		return Money{}, ErrInvalidAmount
	}
	return Money{amount: diff, currency: m.currency}, nil
}

// Mul scales m by a non-negative factor.
func (m Money) Mul(factor decimal.Decimal) (Money, error) {
	if factor.IsNegative() {
		return Money{}, ErrInvalidAmount
	}
	return Money{amount: m.amount.Mul(factor), currency: m.currency}, nil
}

// Half returns 50% of m, rounded half-to-even at the currency's minor unit.
func (m Money) Half() Money {
	half := m.amount.Div(decimal.NewFromInt(2)).RoundBank(m.MinorExponent())
	return Money{amount: half, currency: m.currency}
}

// Equals compares amount numerically and currency exactly.
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// String formats the amount at the minor unit, e.g. "5000.00 RUB".
func (m Money) String() string {
	return m.AmountString() + " " + m.currency
}

// AmountString formats the amount at the minor unit without currency.
func (m Money) AmountString() string {
	return m.amount.StringFixedBank(m.MinorExponent())
}
