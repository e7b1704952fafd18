// Package state implements the position ledger: one Position per
// (wallet, outcome token), mutated only by the sequential replay of that
// wallet's events.
package state

import (
	"github.com/shopspring/decimal"

	"OutcomeLedger/internal/event"
	"OutcomeLedger/internal/pnlmath"
)

// Position tracks one wallet's inventory in one outcome token.
//
// HeldQuantity never goes negative: disposals are clamped to the quantity
// the ledger has tracked as acquired (the inventory guard). AvgCost is the
// volume-weighted acquisition price of the current holding and is undefined
// while the position is empty. TotalAcquired is monotonic and diagnostic
// only. Positions persist at zero quantity after full liquidation.
type Position struct {
	Wallet string
	Token  event.OutcomeToken

	HeldQuantity  decimal.Decimal
	AvgCost       decimal.Decimal
	RealizedPnL   decimal.Decimal
	TotalAcquired decimal.Decimal
}

// IsEmpty reports whether the position currently holds nothing.
func (p *Position) IsEmpty() bool {
	return p.HeldQuantity.IsZero()
}

// Acquire applies a Buy-shaped transition: quantity qty at price.
// Zero quantities are no-ops.
func (p *Position) Acquire(qty, price decimal.Decimal) {
	if qty.IsZero() {
		return
	}
	p.AvgCost = pnlmath.WeightedAvgCost(p.HeldQuantity, p.AvgCost, qty, price)
	p.HeldQuantity = p.HeldQuantity.Add(qty)
	p.TotalAcquired = p.TotalAcquired.Add(qty)
}

// Dispose applies a Sell-shaped transition: quantity qty at price, clamped
// to the held quantity. Returns the quantity actually disposed and the
// realized PnL delta. AvgCost is unchanged by disposals. This rule applies
// identically to market sells, merges, and redemptions; they differ only in
// what price is.
func (p *Position) Dispose(qty, price decimal.Decimal) (adjusted, realizedDelta decimal.Decimal) {
	if qty.IsZero() || p.HeldQuantity.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	adjusted = qty
	if adjusted.GreaterThan(p.HeldQuantity) {
		adjusted = p.HeldQuantity
	}
	realizedDelta = pnlmath.RealizedDelta(adjusted, price, p.AvgCost)
	p.HeldQuantity = p.HeldQuantity.Sub(adjusted)
	p.RealizedPnL = p.RealizedPnL.Add(realizedDelta)
	return adjusted, realizedDelta
}
