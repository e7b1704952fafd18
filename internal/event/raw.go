package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// Raw is the wire/storage form of an event as it arrives from the warehouse
// or the feed: untyped kind, unresolved token identifier, possibly duplicated.
// The normalizer turns a set of Raw rows into an ordered, deduplicated
// sequence of typed Events.
type Raw struct {
	EventID string
	Wallet  string

	// TokenID is the on-chain outcome-token identifier for Buy/Sell/Redeem.
	// Split/Merge/Convert reference the market directly instead.
	TokenID string
	Market  string

	Kind     string
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Role     string

	// Convert payload.
	SoldOutcomes  []int
	BoughtOutcome int

	OccurredAt time.Time

	// IngestedAt orders duplicate payload copies; the latest copy wins when
	// payloads diverge.
	IngestedAt time.Time
}

// PayloadEqual reports whether two raw rows carry the same payload. Duplicate
// deliveries of one logical event are payload-identical by construction;
// divergence is a data-integrity warning.
func (r Raw) PayloadEqual(other Raw) bool {
	if r.Wallet != other.Wallet ||
		r.TokenID != other.TokenID ||
		r.Market != other.Market ||
		r.Kind != other.Kind ||
		r.Role != other.Role ||
		r.BoughtOutcome != other.BoughtOutcome ||
		!r.OccurredAt.Equal(other.OccurredAt) {
		return false
	}
	if !r.Quantity.Equal(other.Quantity) || !r.Price.Equal(other.Price) {
		return false
	}
	if len(r.SoldOutcomes) != len(other.SoldOutcomes) {
		return false
	}
	for i, o := range r.SoldOutcomes {
		if other.SoldOutcomes[i] != o {
			return false
		}
	}
	return true
}
