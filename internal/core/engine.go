// Package core implements the replay engine: one pass over a wallet's
// normalized event sequence, applying the per-kind transition rules to the
// position book and aggregating the result into a Report.
package core

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"OutcomeLedger/internal/event"
	"OutcomeLedger/internal/market"
	"OutcomeLedger/internal/normalize"
	"OutcomeLedger/internal/observability"
	"OutcomeLedger/internal/pnlmath"
	"OutcomeLedger/internal/report"
	"OutcomeLedger/internal/state"
)

// Config is the explicit engine configuration. There is exactly one engine;
// behavioral variants (reporting policy, price-oracle source, dedup key
// strategy) are fields here, never global flags.
type Config struct {
	// Policy selects the reporting convention stamped on every Report.
	Policy report.Policy

	// Marks is the price-oracle source for unrealized valuation. Only
	// consulted under PolicyFull; may be nil otherwise.
	Marks market.MarkPriceSource

	// FillDedupByRole keys order-fill dedup on (event_id, role) so the two
	// legs of one fill both survive. Disable only for feeds that pre-split
	// legs into distinct event ids.
	FillDedupByRole bool
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		Policy:          report.PolicyRealizedPlusResolved,
		FillDedupByRole: true,
	}
}

// Engine replays wallets against a batch's shared read-only catalog state.
// Replay for one wallet is strictly sequential; engines are safe for
// concurrent use across wallets because all shared state is immutable once
// the batch is loaded.
type Engine struct {
	cfg         Config
	registry    *market.Registry
	resolutions *market.ResolutionCache
	normalizer  *normalize.Normalizer
	metrics     *observability.Metrics
	log         zerolog.Logger
}

func NewEngine(
	cfg Config,
	registry *market.Registry,
	resolutions *market.ResolutionCache,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		cfg:         cfg,
		registry:    registry,
		resolutions: resolutions,
		normalizer:  normalize.New(registry, cfg.FillDedupByRole),
		metrics:     metrics,
		log:         log,
	}
}

// ReplayWallet normalizes and replays one wallet's raw events and returns
// its Report. Per-event problems reduce confidence via diagnostics; the
// replay itself never fails. asOf is the versioned report timestamp.
func (e *Engine) ReplayWallet(wallet string, raws []event.Raw, asOf time.Time) report.Report {
	start := time.Now()

	events, diag := e.normalizer.Normalize(wallet, raws)

	book := state.NewBook(wallet)
	for _, evt := range events {
		e.apply(book, evt, &diag)
	}

	rep := report.Aggregate(book, e.resolutions, e.cfg.Marks, e.cfg.Policy, diag, asOf)

	if e.metrics != nil {
		e.metrics.WalletsReplayed.Inc()
		e.metrics.ReplayDuration.Observe(time.Since(start).Seconds())
		e.metrics.EventsReplayed.Add(float64(diag.EventsReplayed))
		e.metrics.EventsDropped.WithLabelValues("unresolvable_token").Add(float64(diag.UnresolvableTokens))
		e.metrics.EventsDropped.WithLabelValues("malformed").Add(float64(diag.MalformedEvents))
		e.metrics.DuplicatesCollapsed.Add(float64(diag.DuplicatesCollapsed))
		e.metrics.InventoryClamps.Add(float64(diag.InventoryClamps))
		e.metrics.RedeemsWithoutResolution.Add(float64(diag.RedeemsWithoutResolution))
	}

	if !diag.Clean() {
		e.log.Debug().
			Str("wallet", wallet).
			Int("dropped", diag.Dropped()).
			Int("clamps", diag.InventoryClamps).
			Int("divergent_duplicates", diag.DivergentDuplicates).
			Float64("confidence", rep.Confidence).
			Msg("wallet replayed with degraded data quality")
	}

	return rep
}

// ReplayBook is ReplayWallet minus aggregation: it returns the terminal
// position book, which the parity tests digest directly.
func (e *Engine) ReplayBook(wallet string, raws []event.Raw) (*state.Book, report.Diagnostics) {
	events, diag := e.normalizer.Normalize(wallet, raws)
	book := state.NewBook(wallet)
	for _, evt := range events {
		e.apply(book, evt, &diag)
	}
	return book, diag
}

// apply dispatches one event through the position state machine. The switch
// is exhaustive over the closed kind set; a new event kind fails compilation
// here rather than falling through a string comparison.
func (e *Engine) apply(book *state.Book, evt event.Event, diag *report.Diagnostics) {
	switch ev := evt.(type) {
	case *event.Buy:
		book.Acquire(ev.Token, ev.Quantity, ev.Price)

	case *event.Sell:
		e.dispose(book, ev.Token, ev.Quantity, ev.Price, diag)

	case *event.Split:
		// Minting one unit of every outcome for $1 of collateral: a Buy of
		// each outcome at 1/outcomeCount.
		n := e.registry.OutcomeCount(ev.Market)
		price := pnlmath.SetPrice(n)
		for i := 0; i < n; i++ {
			book.Acquire(event.OutcomeToken{Market: ev.Market, Outcome: i}, ev.Quantity, price)
		}

	case *event.Merge:
		n := e.registry.OutcomeCount(ev.Market)
		price := pnlmath.SetPrice(n)
		for i := 0; i < n; i++ {
			e.dispose(book, event.OutcomeToken{Market: ev.Market, Outcome: i}, ev.Quantity, price, diag)
		}

	case *event.Redeem:
		payout, resolved := e.resolutions.Payout(ev.Token.Market, ev.Token.Outcome)
		if resolved {
			// Terminal payout known: liquidate the full remaining holding
			// at the payout scalar, whatever quantity the event claimed.
			pos := book.Get(ev.Token)
			if pos == nil || pos.IsEmpty() {
				return
			}
			book.Dispose(ev.Token, pos.HeldQuantity, payout)
			return
		}
		// The redemption's presence says the market resolved even though
		// the oracle disagrees. Replay it as an ordinary sell at the
		// event-supplied price and surface the disagreement.
		diag.RedeemsWithoutResolution++
		e.dispose(book, ev.Token, ev.Quantity, ev.Price, diag)

	case *event.Convert:
		e.applyConvert(book, ev, diag)
	}
}

// applyConvert handles the negative-risk compound operation: sell every
// losing-side position at the blend of their average costs, buy the
// winning-side position at the complementary price. Selling at the blend
// makes the sell side PnL-neutral in aggregate.
func (e *Engine) applyConvert(book *state.Book, ev *event.Convert, diag *report.Diagnostics) {
	if ev.Quantity.IsZero() {
		return
	}

	soldCosts := make([]decimal.Decimal, 0, len(ev.SoldOutcomes))
	for _, outcome := range ev.SoldOutcomes {
		cost := decimal.Zero
		if pos := book.Get(event.OutcomeToken{Market: ev.Market, Outcome: outcome}); pos != nil && !pos.IsEmpty() {
			cost = pos.AvgCost
		}
		soldCosts = append(soldCosts, cost)
	}

	sellPrice, buyPrice, clamped := pnlmath.ConvertBlend(soldCosts)
	if clamped {
		diag.ConvertPriceClamps++
	}

	for _, outcome := range ev.SoldOutcomes {
		e.dispose(book, event.OutcomeToken{Market: ev.Market, Outcome: outcome}, ev.Quantity, sellPrice, diag)
	}
	book.Acquire(event.OutcomeToken{Market: ev.Market, Outcome: ev.BoughtOutcome}, ev.Quantity, buyPrice)
}

// dispose routes every Sell-shaped transition through one place so the
// inventory guard's clamps are always counted.
func (e *Engine) dispose(book *state.Book, token event.OutcomeToken, qty, price decimal.Decimal, diag *report.Diagnostics) {
	if qty.IsZero() {
		return
	}
	adjusted, _ := book.Dispose(token, qty, price)
	excess := qty.Sub(adjusted)
	if excess.IsPositive() {
		diag.InventoryClamps++
		diag.ClampedQuantity = diag.ClampedQuantity.Add(excess)
	}
}
