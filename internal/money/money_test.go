package money

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToAtomic_WholeCoins(t *testing.T) {
	v, err := ToAtomic(10)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), v)
}

func TestToAtomic_FractionalCoins(t *testing.T) {
	v, err := ToAtomic(0.5)
	require.NoError(t, err)
	assert.Equal(t, int64(500_000), v)
}

func TestToAtomic_FloatNoise(t *testing.T) {
	// 0.1 + 0.2 is not representable exactly; the decimal path must still
	// land on 300000 atomics.
	v, err := ToAtomic(0.1 + 0.2)
	require.NoError(t, err)
	assert.Equal(t, int64(300_000), v)
}

func TestToAtomic_Zero(t *testing.T) {
	v, err := ToAtomic(0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestToAtomic_NegativeRejected(t *testing.T) {
	_, err := ToAtomic(-1)
	assert.Error(t, err)
}

func TestToAtomic_NonFiniteRejected(t *testing.T) {
	_, err := ToAtomic(math.NaN())
	assert.Error(t, err)
	_, err = ToAtomic(math.Inf(1))
	assert.Error(t, err)
}

func TestFromAtomic_Roundtrip(t *testing.T) {
	values := []int64{0, 1, 500_000, 1_000_000, 123_456_789, 999_999_999_999}
	for _, v := range values {
		got, err := ToAtomic(FromAtomic(v))
		require.NoError(t, err, "value: %d", v)
		assert.Equal(t, v, got, "value: %d", v)
	}
}

func TestAtomicFromDecimal_Roundtrip(t *testing.T) {
	values := []int64{0, 1, 999, 1_000_000, 123_456_789_012}
	for _, v := range values {
		got, err := AtomicFromDecimal(DecimalFromAtomic(v))
		require.NoError(t, err, "value: %d", v)
		assert.Equal(t, v, got, "value: %d", v)
	}
}

func TestAtomicFromDecimal_TooManyDigits(t *testing.T) {
	d, err := decimal.NewFromString("1.0000001")
	require.NoError(t, err)
	_, err = AtomicFromDecimal(d)
	assert.Error(t, err)
}

func TestAtomicFromDecimal_NegativeRejected(t *testing.T) {
	_, err := AtomicFromDecimal(decimal.NewFromInt(-5))
	assert.Error(t, err)
}

func TestParseCoins(t *testing.T) {
	v, err := ParseCoins("12.345678")
	require.NoError(t, err)
	assert.Equal(t, int64(12_345_678), v)
}

func TestParseCoins_Malformed(t *testing.T) {
	_, err := ParseCoins("12.3.4")
	assert.Error(t, err)
	_, err = ParseCoins("")
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1.50", Format(1_500_000, 2))
	assert.Equal(t, "0.00", Format(0, 2))
	assert.Equal(t, "12.345678", Format(12_345_678, 6))
	// negative digits falls back to two
	assert.Equal(t, "2.00", Format(2_000_000, -1))
}

func TestFormat_RoundsHalfUp(t *testing.T) {
	assert.Equal(t, "0.13", Format(125_000, 2))
}

func TestMulRate(t *testing.T) {
	// 10 coins at 1.98x
	assert.Equal(t, int64(19_800_000), MulRate(10_000_000, 1.98))
}

func TestMulRate_Truncates(t *testing.T) {
	// 1 atomic * 0.5 truncates to zero rather than rounding up.
	assert.Equal(t, int64(0), MulRate(1, 0.5))
}
