// Package decimalx provides small decimal helpers shared by the indicator
// and signal-processing packages. Nothing here is broker- or exchange-
// specific; it exists so that decimal arithmetic idioms that recur across
// packages (weighted averages, clamping, Newton's-method sqrt) are written
// once.
package decimalx

import "github.com/shopspring/decimal"

var (
	zero = decimal.Zero
	two  = decimal.NewFromInt(2)
)

// Sqrt approximates the square root of d using Newton's method. d must be
// non-negative; a negative input returns zero rather than panicking, since
// callers in this module only ever feed it variances and squared spreads.
func Sqrt(d decimal.Decimal) decimal.Decimal {
	if d.Sign() <= 0 {
		return zero
	}
	x := d
	if x.LessThan(decimal.NewFromInt(1)) {
		x = decimal.NewFromInt(1)
	}
	for i := 0; i < 20; i++ {
		x = x.Add(d.Div(x)).Div(two)
	}
	return x
}

// Clamp restricts d to the inclusive range [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// WeightedAverage computes (oldQty*oldPrice + addQty*addPrice) / (oldQty+addQty).
// A zero total quantity returns zero.
func WeightedAverage(oldQty, oldPrice, addQty, addPrice decimal.Decimal) decimal.Decimal {
	totalQty := oldQty.Add(addQty)
	if totalQty.IsZero() {
		return zero
	}
	totalCost := oldQty.Mul(oldPrice).Add(addQty.Mul(addPrice))
	return totalCost.Div(totalQty)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// RoundToTick rounds price down to the nearest multiple of tickSize. A zero
// or negative tickSize is a no-op (some instruments have no meaningful tick
// grid in this module's mock feeds).
func RoundToTick(price, tickSize decimal.Decimal) decimal.Decimal {
	if tickSize.Sign() <= 0 {
		return price
	}
	steps := price.Div(tickSize).Floor()
	return steps.Mul(tickSize)
}
