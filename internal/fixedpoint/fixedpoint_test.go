package fixedpoint

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fp builds an 8-decimal fixed-point integer from whole units.
func fp(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), unit)
}

func TestToFloat(t *testing.T) {
	assert.Equal(t, 1000.0, ToFloat(fp(1000), UnitDecimals))
	assert.Equal(t, 0.5, ToFloat(big.NewInt(50_000_000), UnitDecimals))
	assert.Equal(t, -12.34, ToFloat(big.NewInt(-1_234_000_000), UnitDecimals))
	assert.Equal(t, 0.0, ToFloat(nil, UnitDecimals))
	assert.Equal(t, 1.5, ToFloat(big.NewInt(15), 1))
}

func TestToFloat_SumConvertedOnce(t *testing.T) {
	// 0.1 + 0.2 summed in fixed point converts to exactly 0.3
	sum := new(big.Int).Add(big.NewInt(10_000_000), big.NewInt(20_000_000))
	assert.Equal(t, 0.3, Units(sum))
}

func TestFromFloat_RoundTrip(t *testing.T) {
	for _, raw := range []int64{0, 1, 29_000_000, 100_000_000_000, 123_456_789_012} {
		v := Units(big.NewInt(raw))
		assert.Equal(t, raw, FromFloat(v, UnitDecimals).Int64(), "raw %d", raw)
	}
}

func TestFromFloat_Truncates(t *testing.T) {
	assert.Equal(t, int64(1), FromFloat(0.000000019, UnitDecimals).Int64())
	assert.Equal(t, int64(-1), FromFloat(-0.000000019, UnitDecimals).Int64())
}

func TestFromFloat_UsesShortestDecimal(t *testing.T) {
	// 0.29*1e8 in binary is 28999999.999999996; the decimal form is exact
	assert.Equal(t, int64(29_000_000), FromFloat(0.29, UnitDecimals).Int64())
	assert.Equal(t, int64(57_000_000), FromFloat(0.57, UnitDecimals).Int64())
}

func TestLeverage(t *testing.T) {
	lev, err := Leverage(fp(1000), fp(100))
	require.NoError(t, err)
	assert.Equal(t, fp(10).String(), lev.String())
	assert.Equal(t, 10.0, Units(lev))

	lev, err = Leverage(fp(500), fp(100))
	require.NoError(t, err)
	assert.Equal(t, 5.0, Units(lev))
}

func TestLeverage_ZeroMargin(t *testing.T) {
	_, err := Leverage(fp(1000), big.NewInt(0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPositionState))
}

func TestLiquidationPrice(t *testing.T) {
	price := fp(50000)

	tests := []struct {
		name   string
		size   int64
		margin int64
		isLong bool
		want   int64
	}{
		// 10x: price * 9000 * 10000 / 10e8 = 9% of price
		{"long 10x", 1000, 100, true, 45500},
		{"short 10x", 1000, 100, false, 54500},
		// 5x: 18% of price
		{"long 5x", 500, 100, true, 41000},
		{"short 5x", 500, 100, false, 59000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lev, err := Leverage(fp(tt.size), fp(tt.margin))
			require.NoError(t, err)

			liq, err := LiquidationPrice(price, lev, tt.isLong)
			require.NoError(t, err)
			assert.Equal(t, fp(tt.want).String(), liq.String())
			assert.Equal(t, float64(tt.want), Units(liq))
		})
	}
}

func TestLiquidationPrice_ZeroLeverage(t *testing.T) {
	// size so small relative to margin that integer leverage is zero
	lev, err := Leverage(big.NewInt(1), fp(1000))
	require.NoError(t, err)
	require.Equal(t, 0, lev.Sign())

	_, err = LiquidationPrice(fp(50000), lev, true)
	assert.ErrorIs(t, err, ErrInvalidPositionState)
}
