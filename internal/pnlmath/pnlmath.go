// Package pnlmath holds the decimal arithmetic shared by the position ledger:
// weighted-average cost updates, realized PnL, and the negative-risk convert
// blend. Kept separate from state so the formulas are testable in isolation.
package pnlmath

import (
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// WeightedAvgCost returns the new average cost after acquiring fillQty at
// fillPrice on top of heldQty at avgCost. Acquiring onto an empty position
// resets the basis to the fill price.
func WeightedAvgCost(heldQty, avgCost, fillQty, fillPrice decimal.Decimal) decimal.Decimal {
	if heldQty.IsZero() {
		return fillPrice
	}
	total := heldQty.Add(fillQty)
	if total.IsZero() {
		return fillPrice
	}
	// (held*avg + fill*price) / (held + fill)
	return heldQty.Mul(avgCost).Add(fillQty.Mul(fillPrice)).Div(total)
}

// RealizedDelta returns the realized PnL contribution of disposing qty at
// exitPrice against a basis of avgCost.
func RealizedDelta(qty, exitPrice, avgCost decimal.Decimal) decimal.Decimal {
	return qty.Mul(exitPrice.Sub(avgCost))
}

// SetPrice returns the per-outcome price of a full outcome set: 1/outcomes.
// This is the economic price of Split and Merge legs (0.5 for binary).
func SetPrice(outcomes int) decimal.Decimal {
	if outcomes < 2 {
		outcomes = 2
	}
	return one.Div(decimal.NewFromInt(int64(outcomes)))
}

// ConvertBlend computes the two prices of a negative-risk conversion from
// the average costs of the sold-side positions. The blended sell price is
// the mean of the sold costs; the bought-side price is the complement that
// makes the whole operation price out to one full set:
//
//	sell each of k losing positions at s = mean(costs)
//	buy the winning position at b = 1 − k·s, clamped into [0,1]
//
// Selling at the mean of the sold costs makes the sell side PnL-neutral in
// aggregate. clamped reports whether b needed clamping (a data-quality
// signal: sold bases summed past a full set).
func ConvertBlend(soldCosts []decimal.Decimal) (sellPrice, buyPrice decimal.Decimal, clamped bool) {
	k := len(soldCosts)
	if k == 0 {
		return decimal.Zero, one, false
	}
	sum := decimal.Zero
	for _, c := range soldCosts {
		sum = sum.Add(c)
	}
	sellPrice = sum.Div(decimal.NewFromInt(int64(k)))
	buyPrice = one.Sub(sum)
	if buyPrice.IsNegative() {
		return sellPrice, decimal.Zero, true
	}
	if buyPrice.GreaterThan(one) {
		return sellPrice, one, true
	}
	return sellPrice, buyPrice, false
}

// PriceInRange reports whether a price lies in [0,1]. Prices outside the
// band are accepted by replay but flagged.
func PriceInRange(p decimal.Decimal) bool {
	return !p.IsNegative() && !p.GreaterThan(one)
}
