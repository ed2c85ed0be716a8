package decimal

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a value held or moved by the ledger. One unit is one ether.
type Amount struct {
	value decimal.Decimal
}

// Ratio is a fixed-point multiplier such as 3:2.
type Ratio struct {
	num decimal.Decimal
	den decimal.Decimal
}

// Zero is the empty amount.
var Zero = Amount{value: decimal.Zero}

// NewAmount creates an Amount from a string
func NewAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount: %w", err)
	}
	return Amount{value: d}, nil
}

// MustAmount is NewAmount for constants and tests.
func MustAmount(s string) Amount {
	a, err := NewAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// NewAmountFromInt creates an Amount from whole units
func NewAmountFromInt(i int64) Amount {
	return Amount{value: decimal.NewFromInt(i)}
}

// Add adds two amounts
func (a Amount) Add(other Amount) Amount {
	return Amount{value: a.value.Add(other.value)}
}

// Sub subtracts two amounts
func (a Amount) Sub(other Amount) Amount {
	return Amount{value: a.value.Sub(other.value)}
}

// MulRatio applies a ratio exactly; no float conversion is involved.
func (a Amount) MulRatio(r Ratio) Amount {
	return Amount{value: a.value.Mul(r.num).Div(r.den)}
}

// Cmp compares two amounts
func (a Amount) Cmp(other Amount) int {
	return a.value.Cmp(other.value)
}

func (a Amount) Equal(other Amount) bool {
	return a.value.Equal(other.value)
}

func (a Amount) GreaterThan(other Amount) bool {
	return a.value.GreaterThan(other.value)
}

func (a Amount) LessThan(other Amount) bool {
	return a.value.LessThan(other.value)
}

// IsZero checks if amount is zero
func (a Amount) IsZero() bool {
	return a.value.IsZero()
}

// IsPositive checks if amount is strictly greater than zero
func (a Amount) IsPositive() bool {
	return a.value.IsPositive()
}

// String returns string representation
func (a Amount) String() string {
	return a.value.String()
}

// Float64 returns float64 representation (loses precision, telemetry only)
func (a Amount) Float64() float64 {
	f, _ := a.value.Float64()
	return f
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return a.value.MarshalJSON()
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	return a.value.UnmarshalJSON(b)
}

// NewRatio creates num:den, den must be non-zero
func NewRatio(num, den int64) (Ratio, error) {
	if den == 0 {
		return Ratio{}, fmt.Errorf("division by zero")
	}
	return Ratio{num: decimal.NewFromInt(num), den: decimal.NewFromInt(den)}, nil
}

// ParseRatio parses "3:2" or "3/2" or a plain decimal like "1.5"
func ParseRatio(s string) (Ratio, error) {
	s = strings.TrimSpace(s)
	sep := strings.IndexAny(s, ":/")
	if sep < 0 {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return Ratio{}, fmt.Errorf("invalid ratio: %w", err)
		}
		return Ratio{num: d, den: decimal.NewFromInt(1)}, nil
	}

	num, err := decimal.NewFromString(strings.TrimSpace(s[:sep]))
	if err != nil {
		return Ratio{}, fmt.Errorf("invalid ratio numerator: %w", err)
	}
	den, err := decimal.NewFromString(strings.TrimSpace(s[sep+1:]))
	if err != nil {
		return Ratio{}, fmt.Errorf("invalid ratio denominator: %w", err)
	}
	if den.IsZero() {
		return Ratio{}, fmt.Errorf("division by zero")
	}
	return Ratio{num: num, den: den}, nil
}

func (r Ratio) String() string {
	return r.num.String() + ":" + r.den.String()
}
