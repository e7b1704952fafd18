package state

import (
	"sort"

	"github.com/shopspring/decimal"

	"OutcomeLedger/internal/event"
)

// Book holds every position of a single wallet during replay. Books are
// owned exclusively by the replay goroutine for that wallet; nothing is
// shared across wallets.
type Book struct {
	wallet    string
	positions map[event.OutcomeToken]*Position
}

func NewBook(wallet string) *Book {
	return &Book{
		wallet:    wallet,
		positions: make(map[event.OutcomeToken]*Position),
	}
}

// Wallet returns the owning wallet address.
func (b *Book) Wallet() string { return b.wallet }

// Get returns the position for a token, or nil if the token was never
// touched.
func (b *Book) Get(token event.OutcomeToken) *Position {
	return b.positions[token]
}

// GetOrCreate returns the position for a token, creating an empty one on
// first touch. Positions are never deleted afterwards.
func (b *Book) GetOrCreate(token event.OutcomeToken) *Position {
	pos := b.positions[token]
	if pos == nil {
		pos = &Position{Wallet: b.wallet, Token: token}
		b.positions[token] = pos
	}
	return pos
}

// Acquire applies a Buy-shaped transition to the token's position.
func (b *Book) Acquire(token event.OutcomeToken, qty, price decimal.Decimal) {
	b.GetOrCreate(token).Acquire(qty, price)
}

// Dispose applies a Sell-shaped transition to the token's position, clamped
// by the inventory guard. Touching an unseen token creates its (empty)
// position so the clamp is visible in diagnostics.
func (b *Book) Dispose(token event.OutcomeToken, qty, price decimal.Decimal) (adjusted, realizedDelta decimal.Decimal) {
	return b.GetOrCreate(token).Dispose(qty, price)
}

// Positions returns every position sorted by (market, outcome) so iteration
// order is deterministic across runs.
func (b *Book) Positions() []*Position {
	result := make([]*Position, 0, len(b.positions))
	for _, pos := range b.positions {
		result = append(result, pos)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Token.Market != result[j].Token.Market {
			return result[i].Token.Market < result[j].Token.Market
		}
		return result[i].Token.Outcome < result[j].Token.Outcome
	})
	return result
}

// TouchedMarkets returns the distinct markets this book has positions in,
// sorted for determinism.
func (b *Book) TouchedMarkets() []string {
	seen := make(map[string]bool)
	for token := range b.positions {
		seen[token.Market] = true
	}
	markets := make([]string, 0, len(seen))
	for m := range seen {
		markets = append(markets, m)
	}
	sort.Strings(markets)
	return markets
}
