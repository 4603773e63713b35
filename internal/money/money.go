// Package money implements fixed-point integer money. One coin is 1e6
// atomics; all balance arithmetic happens on atomic int64 values and floats
// exist only at the display and input edges.
package money

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by an atomic value.
const Scale = 6

// AtomicsPerCoin is the atomic value of one whole coin.
const AtomicsPerCoin int64 = 1_000_000

var atomicFactor = decimal.New(1, Scale)

// ToAtomic converts a client-supplied coin amount to atomics.
// Fails on non-finite or negative input and on values that overflow int64.
func ToAtomic(coins float64) (int64, error) {
	if math.IsNaN(coins) || math.IsInf(coins, 0) {
		return 0, fmt.Errorf("money: amount is not finite")
	}
	if coins < 0 {
		return 0, fmt.Errorf("money: amount is negative")
	}
	d := decimal.NewFromFloat(coins).Mul(atomicFactor).Round(0)
	if !d.IsInteger() || d.BigInt().BitLen() > 62 {
		return 0, fmt.Errorf("money: amount %v out of range", coins)
	}
	return d.IntPart(), nil
}

// FromAtomic converts atomics back to a coin float for display payloads.
func FromAtomic(v int64) float64 {
	f, _ := decimal.New(v, -Scale).Float64()
	return f
}

// DecimalFromAtomic returns the exact decimal coin value of an atomic amount.
func DecimalFromAtomic(v int64) decimal.Decimal {
	return decimal.New(v, -Scale)
}

// AtomicFromDecimal converts a decimal coin value to atomics.
// Fails if the value carries more than 6 fractional digits or is negative.
func AtomicFromDecimal(d decimal.Decimal) (int64, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("money: amount is negative")
	}
	scaled := d.Mul(atomicFactor)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("money: amount %s has more than %d fractional digits", d, Scale)
	}
	if scaled.BigInt().BitLen() > 62 {
		return 0, fmt.Errorf("money: amount %s out of range", d)
	}
	return scaled.IntPart(), nil
}

// Format renders an atomic value with the given number of display digits
// (default two). Rounding is half-up, matching toFixed on the client.
func Format(v int64, digits int) string {
	if digits < 0 {
		digits = 2
	}
	return DecimalFromAtomic(v).Round(int32(digits)).StringFixed(int32(digits))
}

// ParseCoins converts a decimal string (e.g. a provider-reported amount) to
// atomics without passing through a float.
func ParseCoins(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return AtomicFromDecimal(d)
}

// MulRate multiplies an atomic amount by a two-decimal rate (e.g. a payout
// multiplier) and truncates to an atomic result.
func MulRate(v int64, rate float64) int64 {
	d := DecimalFromAtomic(v).Mul(decimal.NewFromFloat(rate))
	return d.Mul(atomicFactor).Truncate(0).IntPart()
}
