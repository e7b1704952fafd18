package market

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ResolutionCache is the resolution oracle lookup: market id → terminal
// payout vector, one scalar per outcome. A market absent from the cache is
// unresolved for replay purposes. Loaded once per batch, read-only afterwards.
type ResolutionCache struct {
	payouts map[string][]decimal.Decimal
}

func NewResolutionCache() *ResolutionCache {
	return &ResolutionCache{payouts: make(map[string][]decimal.Decimal)}
}

// Set records the payout vector for a market. Rejects empty vectors; payout
// scalars are typically 0 or 1 but fractional values are legal for
// multi-outcome markets.
func (c *ResolutionCache) Set(market string, payouts []decimal.Decimal) error {
	if len(payouts) == 0 {
		return fmt.Errorf("resolution for %s: empty payout vector", market)
	}
	c.payouts[market] = payouts
	return nil
}

// Lookup returns the payout vector for a market, if resolved.
func (c *ResolutionCache) Lookup(market string) ([]decimal.Decimal, bool) {
	p, ok := c.payouts[market]
	return p, ok
}

// Payout returns the payout scalar for one outcome of a resolved market.
// Outcome indexes beyond the recorded vector pay zero (the vector is only as
// long as the outcomes the oracle reported).
func (c *ResolutionCache) Payout(market string, outcome int) (decimal.Decimal, bool) {
	p, ok := c.payouts[market]
	if !ok {
		return decimal.Zero, false
	}
	if outcome < 0 || outcome >= len(p) {
		return decimal.Zero, true
	}
	return p[outcome], true
}

// Resolved reports whether the market has a terminal payout.
func (c *ResolutionCache) Resolved(market string) bool {
	_, ok := c.payouts[market]
	return ok
}

// Len returns the number of resolved markets in the cache.
func (c *ResolutionCache) Len() int { return len(c.payouts) }
