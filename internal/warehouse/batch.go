// Package warehouse is the read boundary against the columnar event store:
// the Postgres-backed Store and the batch preload coordinator that fetches
// events, resolutions, and mark prices for many wallets in a small constant
// number of round-trips.
package warehouse

import (
	"context"

	"github.com/shopspring/decimal"

	"OutcomeLedger/internal/event"
	"OutcomeLedger/internal/market"
)

// TokenMapping is one row of the canonical outcome-token mapping table.
type TokenMapping struct {
	TokenID string
	Market  string
	Outcome int
}

// ResolutionRow is one outcome's terminal payout scalar.
type ResolutionRow struct {
	Market  string
	Outcome int
	Payout  decimal.Decimal
}

// MarkRow is one outcome's current mark price.
type MarkRow struct {
	Market  string
	Outcome int
	Price   decimal.Decimal
}

// Source abstracts the warehouse queries the preloader issues. The Postgres
// Store implements it; tests substitute an in-memory fake.
type Source interface {
	EventsForWallets(ctx context.Context, wallets []string) ([]event.Raw, error)
	TokenMappings(ctx context.Context) ([]TokenMapping, error)
	ResolutionsForMarkets(ctx context.Context, markets []string) ([]ResolutionRow, error)
	MarkPricesForMarkets(ctx context.Context, markets []string) ([]MarkRow, error)
}

// Batch is everything a replay run needs, fully materialized before any
// wallet's replay begins. Replay is a pure function of this value; nothing
// here mutates after Preload returns.
type Batch struct {
	Events      map[string][]event.Raw
	Registry    *market.Registry
	Resolutions *market.ResolutionCache
	Marks       *market.MarkTable
}

// Wallets returns the wallets present in the batch.
func (b *Batch) Wallets() []string {
	wallets := make([]string, 0, len(b.Events))
	for w := range b.Events {
		wallets = append(wallets, w)
	}
	return wallets
}
