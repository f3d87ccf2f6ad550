// Package money fixes the representation of monetary values for the
// whole engine: shopspring/decimal, never float64. Prices, fees,
// balances and P&L all flow through this type, so no binary-float
// rounding ever enters a cash path.
package money

import "github.com/shopspring/decimal"

// Money is an exact decimal amount. It is a pure value type: it never
// clamps or rounds on its own — policy (e.g. "used balance never goes
// negative") belongs to the caller.
type Money = decimal.Decimal

// Scale is the number of decimal places used when presenting amounts.
// Internal arithmetic is exact and never rounded to Scale.
const Scale int32 = 2

// Zero is the zero amount.
var Zero = decimal.Zero

// FromFloat converts a float sample (e.g. a tick from a feed that only
// speaks float) into Money at the boundary. Core code should prefer
// FromInt / MustFromString.
func FromFloat(f float64) Money {
	return decimal.NewFromFloat(f)
}

// FromInt returns an integral amount.
func FromInt(i int64) Money {
	return decimal.NewFromInt(i)
}

// MustFromString parses a decimal literal and panics on malformed
// input. Reserved for constants and test fixtures.
func MustFromString(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("money: " + err.Error())
	}
	return d
}

// Max returns the larger of a and b.
func Max(a, b Money) Money {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b Money) Money {
	if a.LessThan(b) {
		return a
	}
	return b
}

// ClampFloor returns v, raised to floor if v is below it.
func ClampFloor(v, floor Money) Money {
	if v.LessThan(floor) {
		return floor
	}
	return v
}
