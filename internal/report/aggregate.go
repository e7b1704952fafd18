package report

import (
	"time"

	"github.com/shopspring/decimal"

	"OutcomeLedger/internal/market"
	"OutcomeLedger/internal/state"
)

// Aggregate derives a wallet's Report from its terminal position book, the
// resolution oracle cache, and (under the Full policy) a mark-price source.
//
// Resolved-unredeemed and unrealized value use the same formula, quantity
// held times (price minus basis), differing only in whether the price is
// the terminal payout or a live mark. The diagnostics record accumulated
// during normalization and replay is carried through and extended with
// valuation-side findings. asOf is the versioned report timestamp; the
// aggregator never reads the wall clock itself.
func Aggregate(
	book *state.Book,
	resolutions *market.ResolutionCache,
	marks market.MarkPriceSource,
	policy Policy,
	diag Diagnostics,
	asOf time.Time,
) Report {
	realized := decimal.Zero
	resolvedUnredeemed := decimal.Zero
	unrealized := decimal.Zero

	for _, pos := range book.Positions() {
		realized = realized.Add(pos.RealizedPnL)

		if pos.HeldQuantity.IsZero() {
			continue
		}

		payout, resolved := resolutions.Payout(pos.Token.Market, pos.Token.Outcome)
		if resolved {
			resolvedUnredeemed = resolvedUnredeemed.Add(
				pos.HeldQuantity.Mul(payout.Sub(pos.AvgCost)))
			continue
		}

		if policy != PolicyFull || marks == nil {
			continue
		}
		mark, ok := marks.Mark(pos.Token)
		if !ok {
			diag.MissingMarks++
			continue
		}
		unrealized = unrealized.Add(pos.HeldQuantity.Mul(mark.Sub(pos.AvgCost)))
	}

	touched := book.TouchedMarkets()
	resolvedCount := 0
	for _, m := range touched {
		if resolutions.Resolved(m) {
			resolvedCount++
		}
	}

	coverage := 1.0
	if len(touched) > 0 {
		coverage = float64(resolvedCount) / float64(len(touched))
	}

	// Confidence is coverage discounted by survival through normalization:
	// dropped events bias the totals, so they must dent the headline number
	// rather than hide in the diagnostics alone.
	confidence := coverage
	if diag.EventsSeen > 0 {
		confidence *= float64(diag.EventsReplayed) / float64(diag.EventsSeen)
	}

	total := realized
	switch policy {
	case PolicyRealizedPlusResolved:
		total = total.Add(resolvedUnredeemed)
	case PolicyFull:
		total = total.Add(resolvedUnredeemed).Add(unrealized)
	}

	return Report{
		Wallet:                  book.Wallet(),
		Policy:                  policy,
		RealizedPnL:             realized,
		ResolvedUnredeemedValue: resolvedUnredeemed,
		UnrealizedValue:         unrealized,
		Total:                   total,
		ResolutionCoverage:      coverage,
		Confidence:              confidence,
		TouchedMarkets:          len(touched),
		ResolvedMarkets:         resolvedCount,
		Diagnostics:             diag,
		GeneratedAt:             asOf,
	}
}
