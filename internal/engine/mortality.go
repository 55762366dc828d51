package engine

import "github.com/shopspring/decimal"

// stepPopulation compounds one day of survival:
//
//	new = floor(current * (1 - dailyRate))
//
// The step runs in decimal arithmetic so decimal-specified rates apply
// exactly (floor(50000 * 0.9998) is 49990, never a binary-float hair below).
// Population never increases and never goes below zero.
func stepPopulation(population int64, dailyRate float64) int64 {
	if population <= 0 {
		return 0
	}
	survival := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(dailyRate))
	next := decimal.NewFromInt(population).Mul(survival).Floor()
	if next.Sign() <= 0 {
		return 0
	}
	return next.IntPart()
}
