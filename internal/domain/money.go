package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money is an amount in cents. Prices from the backend are decimal numbers;
// they are rounded to the nearest cent on decode.
type Money int64

// MaxMoney bounds every amount and total. Beyond 2^53 cents the decimal form
// no longer survives a round trip through float64.
const MaxMoney Money = 1 << 53

// NewMoney converts a decimal amount to Money.
func NewMoney(amount float64) Money {
	return Money(math.Round(amount * 100))
}

// ParseMoney parses a decimal string such as "150", "99.9" or "-3.50".
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if math.Abs(f*100) > float64(MaxMoney) {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	return NewMoney(f), nil
}

// Valid reports whether m is within ±MaxMoney.
func (m Money) Valid() bool {
	return m >= -MaxMoney && m <= MaxMoney
}

// Times multiplies by a quantity.
func (m Money) Times(quantity int) Money {
	return m * Money(quantity)
}

// CheckedTimes multiplies by a quantity. ok is false when either operand or
// the product falls outside ±MaxMoney.
func (m Money) CheckedTimes(quantity int) (product Money, ok bool) {
	if !m.Valid() {
		return 0, false
	}
	if quantity == 0 || m == 0 {
		return 0, true
	}
	q := int64(quantity)
	if q < 0 {
		q = -q
	}
	a := int64(m)
	if a < 0 {
		a = -a
	}
	if q < 0 || a > int64(MaxMoney)/q {
		return 0, false
	}
	return m * Money(quantity), true
}

// CheckedAdd adds two amounts. ok is false when either operand or the sum
// falls outside ±MaxMoney.
func (m Money) CheckedAdd(o Money) (sum Money, ok bool) {
	if !m.Valid() || !o.Valid() {
		return 0, false
	}
	sum = m + o
	return sum, sum.Valid()
}

// Float returns the decimal value.
func (m Money) Float() float64 {
	return float64(m) / 100
}

// String renders a fixed two-decimal amount, the format the payment gateway
// expects.
func (m Money) String() string {
	v := int64(m)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Format renders the amount in rand, e.g. "R 150.00".
func (m Money) Format() string {
	return "R " + m.String()
}

// MarshalJSON encodes the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number, a numeric string or null.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*m = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
