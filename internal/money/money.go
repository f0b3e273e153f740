// Package money implements the fixed-point currency amounts used by the
// ledger. Amounts are whole cents held in an int64 so that rate × hours
// arithmetic is exact.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cents is an amount of currency expressed in hundredths of a unit.
type Cents int64

// Zero is the empty amount.
const Zero Cents = 0

var (
	// ErrInvalidAmount is returned when text cannot be read as an amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNegativeAmount is returned by Parse for amounts below zero.
	ErrNegativeAmount = errors.New("amount must not be negative")
	// ErrOverflow is returned when a multiplication leaves the int64 range.
	ErrOverflow = errors.New("amount overflow")
)

// Parse reads a non-negative decimal amount such as "12", "12.5" or "12.00".
// At most two fractional digits are accepted.
func Parse(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeAmount
	}
	s = strings.TrimPrefix(s, "+")
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" && (!hasFrac || frac == "") {
		return 0, ErrInvalidAmount
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("%w: more than two decimal places in %q", ErrInvalidAmount, s)
	}
	if !digitsOnly(whole) || !digitsOnly(frac) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	var units int64
	if whole != "" {
		n, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
		units = n
	}
	for len(frac) < 2 {
		frac += "0"
	}
	cents, _ := strconv.ParseInt(frac, 10, 64)
	if units > (math.MaxInt64-cents)/100 {
		return 0, ErrOverflow
	}
	return Cents(units*100 + cents), nil
}

// MustParse is Parse for constants in tests and seed data.
func MustParse(s string) Cents {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// String renders the amount with exactly two decimals, e.g. "11.98".
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MulHours returns the cost of hours at the hourly rate c.
func (c Cents) MulHours(hours int64) (Cents, error) {
	if hours < 0 || c < 0 {
		return 0, ErrInvalidAmount
	}
	if hours != 0 && int64(c) > math.MaxInt64/hours {
		return 0, ErrOverflow
	}
	return Cents(int64(c) * hours), nil
}

// Fraction returns floor(c × f) with f clamped to [0, 1].
func (c Cents) Fraction(f float64) Cents {
	switch {
	case f <= 0 || math.IsNaN(f):
		return 0
	case f >= 1:
		return c
	}
	return Cents(math.Floor(float64(c) * f))
}

// MarshalJSON encodes the amount as a decimal string.
func (c Cents) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts either a decimal string or a JSON number.
func (c *Cents) UnmarshalJSON(b []byte) error {
	var s string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	} else {
		s = string(b)
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}
