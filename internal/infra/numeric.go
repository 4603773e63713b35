package infra

import (
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
)

// Balance columns are NUMERIC(30,6); in Go every amount is an atomic int64
// (1 atomic = 1e-6 coin). The conversions below shift the pgtype exponent so
// that no floating point is involved.

const atomicScale = 6

// NumericToAtomic converts a pgtype.Numeric to an atomic int64.
// Returns an error if the value is NULL, carries more than 6 fractional
// digits, or overflows int64.
func NumericToAtomic(n pgtype.Numeric) (int64, error) {
	if !n.Valid {
		return 0, fmt.Errorf("numeric value is NULL")
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return 0, fmt.Errorf("numeric value is not finite")
	}

	// pgtype.Numeric stores value as Int * 10^Exp; atomic = value * 10^6.
	bi := new(big.Int).Set(n.Int)
	exp := int64(n.Exp) + atomicScale

	switch {
	case exp > 0:
		multiplier := new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
		bi.Mul(bi, multiplier)
	case exp < 0:
		divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(-exp), nil)
		rem := new(big.Int)
		bi.DivMod(bi, divisor, rem)
		if rem.Sign() != 0 {
			return 0, fmt.Errorf("numeric value has more than %d fractional digits", atomicScale)
		}
	}

	if !bi.IsInt64() {
		return 0, fmt.Errorf("numeric value %s overflows int64", bi.String())
	}

	return bi.Int64(), nil
}

// AtomicToNumeric converts an atomic int64 to pgtype.Numeric for writing to
// a NUMERIC(30,6) column.
func AtomicToNumeric(v int64) pgtype.Numeric {
	return pgtype.Numeric{
		Int:              big.NewInt(v),
		Exp:              -atomicScale,
		NaN:              false,
		InfinityModifier: pgtype.Finite,
		Valid:            true,
	}
}
