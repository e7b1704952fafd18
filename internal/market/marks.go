package market

import (
	"github.com/shopspring/decimal"

	"OutcomeLedger/internal/event"
)

// MarkPriceSource supplies current prices for unresolved outcomes. Used only
// for unrealized valuation under the Full reporting policy; staleness does
// not affect the other policies.
type MarkPriceSource interface {
	Mark(token event.OutcomeToken) (decimal.Decimal, bool)
}

// MarkTable is the batch-preloaded MarkPriceSource: a plain map filled once
// from the warehouse.
type MarkTable struct {
	marks map[event.OutcomeToken]decimal.Decimal
}

func NewMarkTable() *MarkTable {
	return &MarkTable{marks: make(map[event.OutcomeToken]decimal.Decimal)}
}

func (t *MarkTable) Set(token event.OutcomeToken, price decimal.Decimal) {
	t.marks[token] = price
}

func (t *MarkTable) Mark(token event.OutcomeToken) (decimal.Decimal, bool) {
	p, ok := t.marks[token]
	return p, ok
}

func (t *MarkTable) Len() int { return len(t.marks) }
