// Package reconcile compares engine reports against independently sourced
// PnL figures. It is a stateless adapter: the comparison consumes a
// finished Report plus its policy label, and nothing here feeds back into
// replay.
package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"OutcomeLedger/internal/report"
)

// TruthObservation is one external PnL figure for a wallet. Convention
// names which components the source includes, since truth sources disagree
// on whether resolved-but-unredeemed value counts as realized.
type TruthObservation struct {
	Wallet     string          `json:"wallet"`
	Source     string          `json:"source"`
	Convention report.Policy   `json:"convention"`
	Total      decimal.Decimal `json:"total"`
	ObservedAt time.Time       `json:"observed_at"`
}

// Result is the outcome of one comparison.
type Result struct {
	Wallet string `json:"wallet"`
	Source string `json:"source"`

	Ours   decimal.Decimal `json:"ours"`
	Theirs decimal.Decimal `json:"theirs"`
	Delta  decimal.Decimal `json:"delta"`

	// RelativeDelta is |delta| / max(|ours|, |theirs|), zero when both
	// sides are zero.
	RelativeDelta decimal.Decimal `json:"relative_delta"`

	Match bool `json:"match"`

	// PolicyMismatch flags a comparison whose conventions differ; the
	// delta then measures convention disagreement, not correctness.
	PolicyMismatch bool `json:"policy_mismatch"`

	// LowConfidence carries the report's own warning forward: a mismatch
	// on a wallet with dropped events or clamps is expected, not alarming.
	LowConfidence bool `json:"low_confidence"`
}

// Tolerance bounds an acceptable disagreement. A comparison matches when
// either bound admits the delta, so small books tolerate absolute noise and
// large books tolerate proportional noise.
type Tolerance struct {
	Absolute decimal.Decimal
	Relative decimal.Decimal
}

// DefaultTolerance accepts one cent absolute or 0.5% relative drift.
func DefaultTolerance() Tolerance {
	return Tolerance{
		Absolute: decimal.RequireFromString("0.01"),
		Relative: decimal.RequireFromString("0.005"),
	}
}

const confidenceFloor = 0.95

// Compare checks one report against one external observation. The report's
// policy-selected total is used; the caller is responsible for requesting
// the report under the convention the source claims.
func Compare(rep report.Report, obs TruthObservation, tol Tolerance) Result {
	ours := rep.Total
	theirs := obs.Total
	delta := ours.Sub(theirs)

	res := Result{
		Wallet:         rep.Wallet,
		Source:         obs.Source,
		Ours:           ours,
		Theirs:         theirs,
		Delta:          delta,
		RelativeDelta:  relativeDelta(ours, theirs, delta),
		PolicyMismatch: rep.Policy != obs.Convention,
		LowConfidence:  rep.Confidence < confidenceFloor,
	}

	absDelta := delta.Abs()
	res.Match = absDelta.LessThanOrEqual(tol.Absolute) ||
		res.RelativeDelta.LessThanOrEqual(tol.Relative)
	return res
}

func relativeDelta(ours, theirs, delta decimal.Decimal) decimal.Decimal {
	scale := decimal.Max(ours.Abs(), theirs.Abs())
	if scale.IsZero() {
		return decimal.Zero
	}
	return delta.Abs().Div(scale)
}

// CompareAll matches reports against observations by wallet. Observations
// without a report and reports without an observation are skipped; this is
// spot validation, not an exhaustive audit.
func CompareAll(reports []report.Report, observations []TruthObservation, tol Tolerance) []Result {
	byWallet := make(map[string]report.Report, len(reports))
	for _, rep := range reports {
		byWallet[rep.Wallet] = rep
	}

	var results []Result
	for _, obs := range observations {
		rep, ok := byWallet[obs.Wallet]
		if !ok {
			continue
		}
		results = append(results, Compare(rep, obs, tol))
	}
	return results
}
