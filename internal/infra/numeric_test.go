package infra

import (
	"math"
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericToAtomic_Zero(t *testing.T) {
	v, err := NumericToAtomic(AtomicToNumeric(0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestNumericToAtomic_Roundtrip(t *testing.T) {
	values := []int64{0, 1, -1, 500_000, -500_000, 1_000_000, 999_999_999_999_999, math.MaxInt64, math.MinInt64}
	for _, v := range values {
		got, err := NumericToAtomic(AtomicToNumeric(v))
		require.NoError(t, err, "value: %d", v)
		assert.Equal(t, v, got, "value: %d", v)
	}
}

func TestNumericToAtomic_NullReturnsError(t *testing.T) {
	_, err := NumericToAtomic(pgtype.Numeric{Valid: false})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "NULL")
}

func TestNumericToAtomic_NaNReturnsError(t *testing.T) {
	_, err := NumericToAtomic(pgtype.Numeric{NaN: true, Valid: true})
	assert.Error(t, err)
}

func TestNumericToAtomic_WholeCoin(t *testing.T) {
	// 5 * 10^0 coins = 5000000 atomics
	n := pgtype.Numeric{Int: big.NewInt(5), Exp: 0, Valid: true}
	v, err := NumericToAtomic(n)
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), v)
}

func TestNumericToAtomic_FractionalDigits(t *testing.T) {
	// 123456 * 10^-6 = 0.123456 coins = 123456 atomics
	n := pgtype.Numeric{Int: big.NewInt(123456), Exp: -6, Valid: true}
	v, err := NumericToAtomic(n)
	require.NoError(t, err)
	assert.Equal(t, int64(123456), v)
}

func TestNumericToAtomic_TooManyFractionalDigits(t *testing.T) {
	// 10^-7 coins cannot be represented as atomics.
	n := pgtype.Numeric{Int: big.NewInt(1), Exp: -7, Valid: true}
	_, err := NumericToAtomic(n)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fractional")
}

func TestNumericToAtomic_Overflow(t *testing.T) {
	overflow := new(big.Int).SetInt64(math.MaxInt64)
	overflow.Add(overflow, big.NewInt(1))
	n := pgtype.Numeric{Int: overflow, Exp: -6, Valid: true}
	_, err := NumericToAtomic(n)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "overflows")
}
