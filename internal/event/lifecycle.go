package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// Split mints one unit of every outcome token of a market per unit of
// collateral. Economically a Buy of each outcome at 1/outcomeCount.
type Split struct {
	ID         string
	Wallet     string
	Market     string
	Quantity   decimal.Decimal
	OccurredAt time.Time
}

func (s *Split) EventID() string { return s.ID }

func (s *Split) DedupKey() string { return s.ID }

func (s *Split) EventKind() Kind { return KindSplit }

func (s *Split) WalletAddr() string { return s.Wallet }

func (s *Split) OccurredTime() time.Time { return s.OccurredAt }

// Merge redeems a full set of outcome tokens back into collateral; the
// inverse of Split. Economically a Sell of each outcome at 1/outcomeCount.
type Merge struct {
	ID         string
	Wallet     string
	Market     string
	Quantity   decimal.Decimal
	OccurredAt time.Time
}

func (m *Merge) EventID() string { return m.ID }

func (m *Merge) DedupKey() string { return m.ID }

func (m *Merge) EventKind() Kind { return KindMerge }

func (m *Merge) WalletAddr() string { return m.Wallet }

func (m *Merge) OccurredTime() time.Time { return m.OccurredAt }

// Redeem liquidates the wallet's remaining holding of one outcome token at
// the market's terminal payout. Quantity and Price carry the event-supplied
// values; when the resolution oracle knows the market, replay overrides them
// with the full held quantity and the payout scalar.
type Redeem struct {
	ID         string
	Wallet     string
	Token      OutcomeToken
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	OccurredAt time.Time
}

func (r *Redeem) EventID() string { return r.ID }

func (r *Redeem) DedupKey() string { return r.ID }

func (r *Redeem) EventKind() Kind { return KindRedeem }

func (r *Redeem) WalletAddr() string { return r.Wallet }

func (r *Redeem) OccurredTime() time.Time { return r.OccurredAt }

// Convert is the negative-risk compound operation: sell a set of losing-side
// outcome positions at a blended price and buy an equivalent winning-side
// position at the complementary price derived from the same blend.
type Convert struct {
	ID            string
	Wallet        string
	Market        string
	Quantity      decimal.Decimal
	SoldOutcomes  []int
	BoughtOutcome int
	OccurredAt    time.Time
}

func (c *Convert) EventID() string { return c.ID }

func (c *Convert) DedupKey() string { return c.ID }

func (c *Convert) EventKind() Kind { return KindConvert }

func (c *Convert) WalletAddr() string { return c.Wallet }

func (c *Convert) OccurredTime() time.Time { return c.OccurredAt }
