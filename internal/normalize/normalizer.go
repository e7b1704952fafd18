// Package normalize turns the raw, possibly duplicated, possibly unordered
// event set of one wallet into the deduplicated, validated, totally ordered
// sequence of typed events the ledger replays.
package normalize

import (
	"sort"

	"OutcomeLedger/internal/event"
	"OutcomeLedger/internal/market"
	"OutcomeLedger/internal/pnlmath"
	"OutcomeLedger/internal/report"
)

// Normalizer canonicalizes raw events against a token registry. The dedup
// key strategy is explicit configuration: order fills dedup on
// (event_id, role) so the two legs of one fill survive while re-ingested
// copies of the same leg collapse; everything else dedups on event_id alone.
type Normalizer struct {
	registry        *market.Registry
	fillDedupByRole bool
}

func New(registry *market.Registry, fillDedupByRole bool) *Normalizer {
	return &Normalizer{
		registry:        registry,
		fillDedupByRole: fillDedupByRole,
	}
}

func (n *Normalizer) dedupKey(r event.Raw) string {
	kind := event.ParseKind(r.Kind)
	if n.fillDedupByRole && (kind == event.KindBuy || kind == event.KindSell) {
		return r.EventID + ":" + r.Role
	}
	return r.EventID
}

// Normalize produces the replay sequence for one wallet. Per-event problems
// never fail the call: malformed and unresolvable events are dropped into
// the diagnostics record, and divergent duplicate payloads are resolved by
// latest ingestion time with a data-integrity warning.
func (n *Normalizer) Normalize(wallet string, raws []event.Raw) ([]event.Event, report.Diagnostics) {
	var diag report.Diagnostics

	// Collapse duplicate deliveries: one canonical row per dedup key.
	canonical := make(map[string]event.Raw, len(raws))
	var order []string
	for _, r := range raws {
		if r.Wallet != wallet {
			continue
		}
		key := n.dedupKey(r)
		prev, seen := canonical[key]
		if !seen {
			canonical[key] = r
			order = append(order, key)
			continue
		}
		diag.DuplicatesCollapsed++
		if !prev.PayloadEqual(r) {
			diag.DivergentDuplicates++
		}
		// Deterministic pick: latest ingestion time wins; ties keep the
		// earlier delivery.
		if r.IngestedAt.After(prev.IngestedAt) {
			canonical[key] = r
		}
	}

	diag.EventsSeen = len(order)

	events := make([]event.Event, 0, len(order))
	for _, key := range order {
		evt, ok := n.convert(canonical[key], &diag)
		if ok {
			events = append(events, evt)
		}
	}
	diag.EventsReplayed = len(events)

	// Total order: (occurred_at, event_id, dedup key). The dedup key
	// breaks the tie between the two legs of one fill.
	sort.SliceStable(events, func(i, j int) bool {
		ti, tj := events[i].OccurredTime(), events[j].OccurredTime()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		if events[i].EventID() != events[j].EventID() {
			return events[i].EventID() < events[j].EventID()
		}
		return events[i].DedupKey() < events[j].DedupKey()
	})

	return events, diag
}

// convert validates one canonical raw row and builds its typed event.
func (n *Normalizer) convert(r event.Raw, diag *report.Diagnostics) (event.Event, bool) {
	kind := event.ParseKind(r.Kind)
	if kind == event.KindUnknown {
		diag.MalformedEvents++
		return nil, false
	}

	// Negative quantities are a data-integrity error: fatal for the event,
	// never for the wallet.
	if r.Quantity.IsNegative() {
		diag.MalformedEvents++
		return nil, false
	}

	switch kind {
	case event.KindBuy, event.KindSell:
		tok, ok := n.registry.Resolve(r.TokenID)
		if !ok {
			diag.UnresolvableTokens++
			return nil, false
		}
		if !priceInRange(r) {
			diag.PricesOutOfRange++
		}
		if kind == event.KindBuy {
			return &event.Buy{
				ID: r.EventID, Wallet: r.Wallet, Token: tok,
				Quantity: r.Quantity, Price: r.Price,
				Role: event.ParseRole(r.Role), OccurredAt: r.OccurredAt,
			}, true
		}
		return &event.Sell{
			ID: r.EventID, Wallet: r.Wallet, Token: tok,
			Quantity: r.Quantity, Price: r.Price,
			Role: event.ParseRole(r.Role), OccurredAt: r.OccurredAt,
		}, true

	case event.KindSplit, event.KindMerge:
		m, ok := n.resolveMarket(r)
		if !ok {
			diag.UnresolvableTokens++
			return nil, false
		}
		if kind == event.KindSplit {
			return &event.Split{
				ID: r.EventID, Wallet: r.Wallet, Market: m,
				Quantity: r.Quantity, OccurredAt: r.OccurredAt,
			}, true
		}
		return &event.Merge{
			ID: r.EventID, Wallet: r.Wallet, Market: m,
			Quantity: r.Quantity, OccurredAt: r.OccurredAt,
		}, true

	case event.KindRedeem:
		tok, ok := n.registry.Resolve(r.TokenID)
		if !ok {
			diag.UnresolvableTokens++
			return nil, false
		}
		if !priceInRange(r) {
			diag.PricesOutOfRange++
		}
		return &event.Redeem{
			ID: r.EventID, Wallet: r.Wallet, Token: tok,
			Quantity: r.Quantity, Price: r.Price, OccurredAt: r.OccurredAt,
		}, true

	case event.KindConvert:
		m, ok := n.resolveMarket(r)
		if !ok {
			diag.UnresolvableTokens++
			return nil, false
		}
		if len(r.SoldOutcomes) == 0 || r.BoughtOutcome < 0 {
			diag.MalformedEvents++
			return nil, false
		}
		sold := make([]int, len(r.SoldOutcomes))
		copy(sold, r.SoldOutcomes)
		sort.Ints(sold)
		return &event.Convert{
			ID: r.EventID, Wallet: r.Wallet, Market: m,
			Quantity: r.Quantity, SoldOutcomes: sold,
			BoughtOutcome: r.BoughtOutcome, OccurredAt: r.OccurredAt,
		}, true
	}

	diag.MalformedEvents++
	return nil, false
}

// resolveMarket returns the market for rows that reference one directly,
// falling back to resolving the token id for feeds that only carry tokens.
func (n *Normalizer) resolveMarket(r event.Raw) (string, bool) {
	if r.Market != "" {
		return r.Market, true
	}
	if tok, ok := n.registry.Resolve(r.TokenID); ok {
		return tok.Market, true
	}
	return "", false
}

func priceInRange(r event.Raw) bool {
	return pnlmath.PriceInRange(r.Price)
}
