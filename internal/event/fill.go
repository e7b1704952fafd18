package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// Buy is one leg of an order fill in which the wallet acquired outcome shares.
// Dedup key: (event_id, role); the maker and taker legs of one fill share an
// event id and are both legitimate.
type Buy struct {
	ID         string
	Wallet     string
	Token      OutcomeToken
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Role       Role
	OccurredAt time.Time
}

func (b *Buy) EventID() string { return b.ID }

func (b *Buy) DedupKey() string { return b.ID + ":" + b.Role.String() }

func (b *Buy) EventKind() Kind { return KindBuy }

func (b *Buy) WalletAddr() string { return b.Wallet }

func (b *Buy) OccurredTime() time.Time { return b.OccurredAt }

// Sell is one leg of an order fill in which the wallet disposed of outcome
// shares. Same dedup semantics as Buy.
type Sell struct {
	ID         string
	Wallet     string
	Token      OutcomeToken
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Role       Role
	OccurredAt time.Time
}

func (s *Sell) EventID() string { return s.ID }

func (s *Sell) DedupKey() string { return s.ID + ":" + s.Role.String() }

func (s *Sell) EventKind() Kind { return KindSell }

func (s *Sell) WalletAddr() string { return s.Wallet }

func (s *Sell) OccurredTime() time.Time { return s.OccurredAt }
