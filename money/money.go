package money

import (
	"errors"
	"fmt"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var ErrCurrencyMismatch = errors.New("currency mismatch")

// Money is an exact amount in major units of an ISO 4217 currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func New(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToUpper(currency)}
}

// IsKnownCurrency reports whether code is an ISO 4217 code go-money knows about.
func IsKnownCurrency(code string) bool {
	return gomoney.GetCurrency(strings.ToUpper(code)) != nil
}

// currency never returns nil; unknown codes get go-money's default formatting.
func (m Money) currency() *gomoney.Currency {
	return gomoney.New(0, m.Currency).Currency()
}

// Precision is the number of minor-unit digits of m's currency.
func (m Money) Precision() int32 {
	return int32(m.currency().Fraction)
}

// Round rounds to the currency's minor unit.
func (m Money) Round() Money {
	return Money{Amount: m.Amount.Round(m.Precision()), Currency: m.Currency}
}

// String formats with the currency's symbol, grapheme and separators.
func (m Money) String() string {
	cur := m.currency()
	minor := m.Amount.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}

func (m Money) IsZero() bool     { return m.Amount.IsZero() }
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }
func (m Money) Abs() Money       { return Money{Amount: m.Amount.Abs(), Currency: m.Currency} }
func (m Money) Neg() Money       { return Money{Amount: m.Amount.Neg(), Currency: m.Currency} }

func (m Money) Add(n Money) (Money, error) {
	if m.Currency != n.Currency {
		return Money{}, fmt.Errorf("%w: %s != %s", ErrCurrencyMismatch, m.Currency, n.Currency)
	}
	return Money{Amount: m.Amount.Add(n.Amount), Currency: m.Currency}, nil
}

func (m Money) Sub(n Money) (Money, error) {
	return m.Add(n.Neg())
}

func (m Money) Equal(n Money) bool {
	return m.Currency == n.Currency && m.Amount.Equal(n.Amount)
}

// Format renders amount in currency, e.g. "R$1.234,50".
func Format(amount decimal.Decimal, currency string) string {
	return New(amount, currency).String()
}
