// Package report holds the derived, per-wallet output of replay: the Report,
// the selectable reporting policies, and the per-wallet diagnostics record.
// Reports are pure derivations recomputed on demand, never authoritative
// state.
package report

import (
	"encoding/json"
	"fmt"
)

// Policy selects which value components combine into a Report's total.
// External truth sources disagree on whether "PnL" includes resolved-but-
// unredeemed or unrealized value, so the policy is explicit configuration
// and is stamped on every Report; comparing numbers across policies is the
// classic false-discrepancy mistake.
type Policy int32

const (
	// PolicyRealizedOnly sums realized PnL alone.
	PolicyRealizedOnly Policy = iota

	// PolicyRealizedPlusResolved adds the mark-to-payout value of holdings
	// in resolved markets that were never liquidated through a tracked
	// event.
	PolicyRealizedPlusResolved

	// PolicyFull additionally marks unresolved holdings to a supplied
	// price source.
	PolicyFull
)

func (p Policy) String() string {
	switch p {
	case PolicyRealizedOnly:
		return "realized_only"
	case PolicyRealizedPlusResolved:
		return "realized_plus_resolved"
	case PolicyFull:
		return "full"
	default:
		return fmt.Sprintf("policy(%d)", int32(p))
	}
}

// MarshalJSON serializes the policy as its label so a numeric total can
// never travel without its convention.
func (p Policy) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts the label form emitted by MarshalJSON.
func (p *Policy) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	parsed, err := ParsePolicy(label)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePolicy maps the wire string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "realized_only":
		return PolicyRealizedOnly, nil
	case "realized_plus_resolved":
		return PolicyRealizedPlusResolved, nil
	case "full":
		return PolicyFull, nil
	default:
		return PolicyRealizedOnly, fmt.Errorf("unknown reporting policy %q", s)
	}
}
