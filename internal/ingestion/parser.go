package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"OutcomeLedger/internal/event"
	"OutcomeLedger/internal/warehouse"
)

// Payload categories, derived from the message subject.
const (
	CategoryFill       = "fill"
	CategoryLifecycle  = "lifecycle"
	CategoryResolution = "resolution"
	CategoryMark       = "mark"
)

// CategoryFromSubject maps a feed subject to its payload category.
func CategoryFromSubject(subject string) (string, error) {
	switch {
	case strings.HasPrefix(subject, "outcome.fills."):
		return CategoryFill, nil
	case strings.HasPrefix(subject, "outcome.lifecycle."):
		return CategoryLifecycle, nil
	case strings.HasPrefix(subject, "outcome.resolutions."):
		return CategoryResolution, nil
	case strings.HasPrefix(subject, "outcome.marks."):
		return CategoryMark, nil
	default:
		return "", fmt.Errorf("unknown subject: %s", subject)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers. Quantities and
// prices arrive as decimal strings; parsing them through decimal avoids
// float round-trips.

type fillJSON struct {
	EventID     string `json:"event_id"`
	Wallet      string `json:"wallet"`
	TokenID     string `json:"token_id"`
	Side        string `json:"side"` // "buy" or "sell"
	Quantity    string `json:"quantity"`
	Price       string `json:"price"`
	Role        string `json:"role"` // "maker" or "taker"
	TimestampUs int64  `json:"timestamp_us"`
}

// ParseFill converts a fill payload into a storable event row.
func ParseFill(data []byte) (event.Raw, error) {
	var j fillJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return event.Raw{}, fmt.Errorf("parse fill: %w", err)
	}
	if j.EventID == "" || j.Wallet == "" || j.TokenID == "" {
		return event.Raw{}, fmt.Errorf("parse fill: missing event_id, wallet, or token_id")
	}

	var kind event.Kind
	switch j.Side {
	case "buy":
		kind = event.KindBuy
	case "sell":
		kind = event.KindSell
	default:
		return event.Raw{}, fmt.Errorf("parse fill: unknown side %q", j.Side)
	}
	if event.ParseRole(j.Role) == event.RoleNone {
		return event.Raw{}, fmt.Errorf("parse fill: unknown role %q", j.Role)
	}

	qty, err := decimal.NewFromString(j.Quantity)
	if err != nil {
		return event.Raw{}, fmt.Errorf("parse fill quantity: %w", err)
	}
	price, err := decimal.NewFromString(j.Price)
	if err != nil {
		return event.Raw{}, fmt.Errorf("parse fill price: %w", err)
	}

	return event.Raw{
		EventID:       j.EventID,
		Wallet:        j.Wallet,
		TokenID:       j.TokenID,
		Kind:          kind.String(),
		Quantity:      qty,
		Price:         price,
		Role:          j.Role,
		BoughtOutcome: -1,
		OccurredAt:    time.UnixMicro(j.TimestampUs).UTC(),
	}, nil
}

type lifecycleJSON struct {
	EventID       string `json:"event_id"`
	Wallet        string `json:"wallet"`
	Market        string `json:"market"`
	TokenID       string `json:"token_id,omitempty"`
	Action        string `json:"action"` // "split", "merge", "redeem", "convert"
	Quantity      string `json:"quantity"`
	Price         string `json:"price,omitempty"`
	SoldOutcomes  []int  `json:"sold_outcomes,omitempty"`
	BoughtOutcome *int   `json:"bought_outcome,omitempty"`
	TimestampUs   int64  `json:"timestamp_us"`
}

// ParseLifecycle converts a split/merge/redeem/convert payload into a
// storable event row. Structural validation beyond field presence (sold
// outcome sets, price ranges) belongs to the normalizer.
func ParseLifecycle(data []byte) (event.Raw, error) {
	var j lifecycleJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return event.Raw{}, fmt.Errorf("parse lifecycle: %w", err)
	}
	if j.EventID == "" || j.Wallet == "" {
		return event.Raw{}, fmt.Errorf("parse lifecycle: missing event_id or wallet")
	}

	var kind event.Kind
	switch j.Action {
	case "split":
		kind = event.KindSplit
	case "merge":
		kind = event.KindMerge
	case "redeem":
		kind = event.KindRedeem
	case "convert":
		kind = event.KindConvert
	default:
		return event.Raw{}, fmt.Errorf("parse lifecycle: unknown action %q", j.Action)
	}
	if j.Market == "" && j.TokenID == "" {
		return event.Raw{}, fmt.Errorf("parse lifecycle: missing market and token_id")
	}

	qty, err := decimal.NewFromString(j.Quantity)
	if err != nil {
		return event.Raw{}, fmt.Errorf("parse lifecycle quantity: %w", err)
	}
	price := decimal.Zero
	if j.Price != "" {
		price, err = decimal.NewFromString(j.Price)
		if err != nil {
			return event.Raw{}, fmt.Errorf("parse lifecycle price: %w", err)
		}
	}

	bought := -1
	if j.BoughtOutcome != nil {
		bought = *j.BoughtOutcome
	}

	return event.Raw{
		EventID:       j.EventID,
		Wallet:        j.Wallet,
		TokenID:       j.TokenID,
		Market:        j.Market,
		Kind:          kind.String(),
		Quantity:      qty,
		Price:         price,
		SoldOutcomes:  j.SoldOutcomes,
		BoughtOutcome: bought,
		OccurredAt:    time.UnixMicro(j.TimestampUs).UTC(),
	}, nil
}

type resolutionJSON struct {
	Market  string   `json:"market"`
	Payouts []string `json:"payouts"`
}

// ParseResolution converts an oracle resolution payload into per-outcome
// payout rows.
func ParseResolution(data []byte) ([]warehouse.ResolutionRow, error) {
	var j resolutionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse resolution: %w", err)
	}
	if j.Market == "" {
		return nil, fmt.Errorf("parse resolution: missing market")
	}
	if len(j.Payouts) == 0 {
		return nil, fmt.Errorf("parse resolution: empty payout vector for %s", j.Market)
	}

	rows := make([]warehouse.ResolutionRow, 0, len(j.Payouts))
	for i, p := range j.Payouts {
		payout, err := decimal.NewFromString(p)
		if err != nil {
			return nil, fmt.Errorf("parse resolution payout[%d]: %w", i, err)
		}
		rows = append(rows, warehouse.ResolutionRow{
			Market:  j.Market,
			Outcome: i,
			Payout:  payout,
		})
	}
	return rows, nil
}

type markJSON struct {
	Market  string `json:"market"`
	Outcome int    `json:"outcome"`
	Price   string `json:"price"`
}

// ParseMark converts a mark-price payload into a mark row.
func ParseMark(data []byte) (warehouse.MarkRow, error) {
	var j markJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return warehouse.MarkRow{}, fmt.Errorf("parse mark: %w", err)
	}
	if j.Market == "" {
		return warehouse.MarkRow{}, fmt.Errorf("parse mark: missing market")
	}
	if j.Outcome < 0 {
		return warehouse.MarkRow{}, fmt.Errorf("parse mark: negative outcome index")
	}
	price, err := decimal.NewFromString(j.Price)
	if err != nil {
		return warehouse.MarkRow{}, fmt.Errorf("parse mark price: %w", err)
	}
	return warehouse.MarkRow{Market: j.Market, Outcome: j.Outcome, Price: price}, nil
}
