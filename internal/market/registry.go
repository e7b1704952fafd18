// Package market holds the read-only catalog state shared by all wallet
// replays in a batch: the outcome-token registry, the resolution oracle
// cache, and the mark-price table. All three are populated once per batch
// and never mutated afterwards, so no locking is required during replay.
package market

import (
	"fmt"

	"OutcomeLedger/internal/event"
)

// Registry maps on-chain outcome-token identifiers to (market, outcome index)
// pairs and records how many outcomes each market has.
type Registry struct {
	tokens        map[string]event.OutcomeToken
	outcomeCounts map[string]int
}

func NewRegistry() *Registry {
	return &Registry{
		tokens:        make(map[string]event.OutcomeToken),
		outcomeCounts: make(map[string]int),
	}
}

// Register adds one token mapping. The market's outcome count grows to cover
// the highest registered index.
func (r *Registry) Register(tokenID string, market string, outcome int) error {
	if outcome < 0 {
		return fmt.Errorf("register token %s: negative outcome index %d", tokenID, outcome)
	}
	r.tokens[tokenID] = event.OutcomeToken{Market: market, Outcome: outcome}
	if outcome+1 > r.outcomeCounts[market] {
		r.outcomeCounts[market] = outcome + 1
	}
	return nil
}

// Resolve returns the (market, outcome) pair for a token identifier.
func (r *Registry) Resolve(tokenID string) (event.OutcomeToken, bool) {
	tok, ok := r.tokens[tokenID]
	return tok, ok
}

// OutcomeCount returns how many outcomes a market has. Markets only ever seen
// through Split/Merge rows default to binary.
func (r *Registry) OutcomeCount(market string) int {
	if n, ok := r.outcomeCounts[market]; ok && n >= 2 {
		return n
	}
	return 2
}

// KnownMarket reports whether the registry has seen the market at all.
func (r *Registry) KnownMarket(market string) bool {
	_, ok := r.outcomeCounts[market]
	return ok
}

// Len returns the number of registered tokens.
func (r *Registry) Len() int { return len(r.tokens) }
