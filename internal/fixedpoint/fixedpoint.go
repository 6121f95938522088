// Package fixedpoint converts on-chain fixed-point integers and derives
// leverage and liquidation prices with integer arithmetic.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// UnitDecimals is the scale of every amount emitted by the Trading contract.
const UnitDecimals int32 = 8

// LiquidationThreshold is the maintenance trigger in basis points.
const LiquidationThreshold = 9000

// ErrInvalidPositionState is returned when a derived field is undefined
// for the given position state (zero margin or zero leverage).
var ErrInvalidPositionState = errors.New("invalid position state")

var (
	unit    = big.NewInt(100_000_000) // 10^UnitDecimals
	bpsUnit = big.NewInt(10_000)
	thresh  = big.NewInt(LiquidationThreshold)
)

// ToFloat returns raw / 10^decimals rounded to the nearest float64.
// A nil raw converts to zero.
func ToFloat(raw *big.Int, decimals int32) float64 {
	if raw == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(raw, -decimals).Float64()
	return f
}

// Units is ToFloat at UnitDecimals.
func Units(raw *big.Int) float64 {
	return ToFloat(raw, UnitDecimals)
}

// FromFloat scales v by 10^decimals and truncates toward zero.
func FromFloat(v float64, decimals int32) *big.Int {
	return decimal.NewFromFloat(v).Shift(decimals).Truncate(0).BigInt()
}

// Leverage computes size * 10^8 / margin in integer arithmetic.
// The result is itself scaled by 10^8.
func Leverage(size, margin *big.Int) (*big.Int, error) {
	if margin == nil || margin.Sign() == 0 {
		return nil, fmt.Errorf("leverage with zero margin: %w", ErrInvalidPositionState)
	}
	lev := new(big.Int).Mul(size, unit)
	return lev.Quo(lev, margin), nil
}

// LiquidationPrice computes price -/+ price*threshold*10000/leverage for
// long/short positions. leverage is the scaled value returned by Leverage.
func LiquidationPrice(price, leverage *big.Int, isLong bool) (*big.Int, error) {
	if leverage == nil || leverage.Sign() == 0 {
		return nil, fmt.Errorf("liquidation price with zero leverage: %w", ErrInvalidPositionState)
	}
	move := new(big.Int).Mul(price, thresh)
	move.Mul(move, bpsUnit)
	move.Quo(move, leverage)

	if isLong {
		return new(big.Int).Sub(price, move), nil
	}
	return new(big.Int).Add(price, move), nil
}
