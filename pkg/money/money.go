package money

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by every stored amount.
const Scale = 2

var (
	ErrInvalidAmount = errors.New("amount must be a decimal number")
	ErrTooPrecise    = errors.New("amount has more than 2 decimal places")
	ErrNegative      = errors.New("amount must not be negative")
	ErrNotPositive   = errors.New("amount must be greater than zero")
)

var (
	half    = decimal.NewFromFloat(0.5)
	hundred = decimal.NewFromInt(100)
)

// Money is an immutable currency amount backed by an arbitrary precision decimal.
// The zero value is 0.00.
type Money struct {
	d decimal.Decimal
}

// Zero returns 0.00.
func Zero() Money {
	return Money{}
}

// New wraps a decimal without rounding it.
func New(d decimal.Decimal) Money {
	return Money{d: d}
}

// FromCents builds an amount from an integer number of cents.
func FromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -Scale)}
}

// MustParse is Parse for literals in tests and fixtures.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Parse reads a decimal formatted string such as "12", "12.5" or "-3.40".
// Inputs with more than two fractional digits are rejected instead of rounded.
func Parse(s string) (Money, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Money{}, ErrInvalidAmount
	}
	// decimal accepts exponents; currency input never needs them.
	if strings.ContainsAny(trimmed, "eE") {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.Exponent() < -Scale && !d.Equal(d.Truncate(Scale)) {
		return Money{}, ErrTooPrecise
	}
	return Money{d: d.Truncate(Scale)}, nil
}

// ParseNonNegative is Parse plus a >= 0 check.
func ParseNonNegative(s string) (Money, error) {
	m, err := Parse(s)
	if err != nil {
		return Money{}, err
	}
	if m.IsNegative() {
		return Money{}, ErrNegative
	}
	return m, nil
}

// ParsePositive is Parse plus a > 0 check.
func ParsePositive(s string) (Money, error) {
	m, err := Parse(s)
	if err != nil {
		return Money{}, err
	}
	if !m.IsPositive() {
		return Money{}, ErrNotPositive
	}
	return m, nil
}

// Decimal exposes the underlying value.
func (m Money) Decimal() decimal.Decimal { return m.d }

func (m Money) Add(other Money) Money { return Money{d: m.d.Add(other.d)} }

func (m Money) Sub(other Money) Money { return Money{d: m.d.Sub(other.d)} }

// Mul multiplies by a scalar. The result is not rounded; call Round when a
// currency value is needed.
func (m Money) Mul(factor decimal.Decimal) Money { return Money{d: m.d.Mul(factor)} }

func (m Money) MulInt(factor int64) Money { return m.Mul(decimal.NewFromInt(factor)) }

func (m Money) Cmp(other Money) int { return m.d.Cmp(other.d) }

func (m Money) Equal(other Money) bool { return m.d.Equal(other.d) }

func (m Money) GreaterThan(other Money) bool { return m.d.GreaterThan(other.d) }

func (m Money) LessThan(other Money) bool { return m.d.LessThan(other.d) }

func (m Money) IsZero() bool { return m.d.IsZero() }

func (m Money) IsNegative() bool { return m.d.IsNegative() }

func (m Money) IsPositive() bool { return m.d.IsPositive() }

// Round rounds half-up (toward positive infinity on ties) to two places.
func (m Money) Round() Money {
	return Money{d: m.d.Shift(Scale).Add(half).Floor().Shift(-Scale)}
}

// Cents returns the amount in cents after rounding.
func (m Money) Cents() int64 {
	return m.Round().d.Mul(hundred).IntPart()
}

// String formats with exactly two decimals.
func (m Money) String() string {
	return m.Round().d.StringFixed(Scale)
}

// Sum adds every amount.
func Sum(amounts ...Money) Money {
	total := Zero()
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// MarshalJSON always emits a JSON string so clients never see a float.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts "12.34" as well as a bare 12.34 literal; the literal is
// parsed from its text, never through float64.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if bytes.Equal(raw, []byte("null")) {
		return ErrInvalidAmount
	}
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		raw = []byte(s)
	}
	parsed, err := Parse(string(raw))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value stores the amount as a fixed two decimal string.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan reads numeric, text and (sqlite) float columns.
func (m *Money) Scan(value any) error {
	if value == nil {
		m.d = decimal.Zero
		return nil
	}
	var d decimal.Decimal
	if err := d.Scan(value); err != nil {
		return fmt.Errorf("scan money: %w", err)
	}
	m.d = d.Round(Scale)
	return nil
}
