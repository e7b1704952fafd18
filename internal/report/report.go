package report

import (
	"time"

	"github.com/shopspring/decimal"
)

// Diagnostics is the per-wallet data-quality record accumulated across
// normalization and replay. Per-event problems never abort a wallet; they
// land here and reduce confidence instead.
type Diagnostics struct {
	EventsSeen          int `json:"events_seen"`
	EventsReplayed      int `json:"events_replayed"`
	DuplicatesCollapsed int `json:"duplicates_collapsed"`

	// DivergentDuplicates counts duplicate event ids whose payloads did not
	// match; the latest ingested copy wins.
	DivergentDuplicates int `json:"divergent_duplicates"`

	// UnresolvableTokens counts events dropped because their outcome-token
	// identifier has no known (market, outcome) mapping.
	UnresolvableTokens int `json:"unresolvable_tokens"`

	// MalformedEvents counts events rejected at normalization: negative
	// quantities, unknown kinds, or unusable convert payloads.
	MalformedEvents int `json:"malformed_events"`

	PricesOutOfRange int `json:"prices_out_of_range"`

	// InventoryClamps counts Sell/Merge/Redeem applications whose quantity
	// exceeded tracked holdings; ClampedQuantity totals the excess. A high
	// clamp rate means the event feed is incomplete for this wallet, not
	// that anything went wrong in replay.
	InventoryClamps int             `json:"inventory_clamps"`
	ClampedQuantity decimal.Decimal `json:"clamped_quantity"`

	// RedeemsWithoutResolution counts Redeem events replayed as ordinary
	// sells because the oracle had no payout for the market. The result
	// should be re-validated once resolution data arrives.
	RedeemsWithoutResolution int `json:"redeems_without_resolution"`

	ConvertPriceClamps int `json:"convert_price_clamps"`

	// MissingMarks counts unresolved holdings skipped during Full-policy
	// valuation because the mark-price source had no quote.
	MissingMarks int `json:"missing_marks"`
}

// Dropped returns how many events never reached replay.
func (d Diagnostics) Dropped() int {
	return d.UnresolvableTokens + d.MalformedEvents
}

// Clean reports whether replay saw no data-quality problems at all.
func (d Diagnostics) Clean() bool {
	return d.Dropped() == 0 &&
		d.DivergentDuplicates == 0 &&
		d.InventoryClamps == 0 &&
		d.RedeemsWithoutResolution == 0 &&
		d.ConvertPriceClamps == 0 &&
		d.MissingMarks == 0
}

// Report is the externally observable output of replay for one wallet.
type Report struct {
	Wallet string `json:"wallet"`
	Policy Policy `json:"policy"`

	RealizedPnL             decimal.Decimal `json:"realized_pnl"`
	ResolvedUnredeemedValue decimal.Decimal `json:"resolved_unredeemed_value"`
	UnrealizedValue         decimal.Decimal `json:"unrealized_value"`

	// Total is the policy-selected combination of the three components.
	Total decimal.Decimal `json:"total"`

	// ResolutionCoverage is the fraction of the wallet's distinct touched
	// markets with a known payout vector.
	ResolutionCoverage float64 `json:"resolution_coverage"`

	// Confidence is the resolution coverage discounted by the fraction of
	// events that survived normalization; a wallet with dropped events can
	// never report full confidence.
	Confidence float64 `json:"confidence"`

	TouchedMarkets  int `json:"touched_markets"`
	ResolvedMarkets int `json:"resolved_markets"`

	Diagnostics Diagnostics `json:"diagnostics"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// PolicyLabel is the wire form of the active policy, serialized explicitly
// so consumers can never mistake which convention a total uses.
func (r Report) PolicyLabel() string { return r.Policy.String() }
