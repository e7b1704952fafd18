package event

import (
	"time"
)

// Kind discriminates the closed set of event types the ledger replays.
type Kind int32

const (
	KindUnknown Kind = iota
	KindBuy
	KindSell
	KindSplit
	KindMerge
	KindRedeem
	KindConvert
)

func (k Kind) String() string {
	switch k {
	case KindBuy:
		return "Buy"
	case KindSell:
		return "Sell"
	case KindSplit:
		return "Split"
	case KindMerge:
		return "Merge"
	case KindRedeem:
		return "Redeem"
	case KindConvert:
		return "Convert"
	default:
		return "Unknown"
	}
}

// ParseKind maps the wire string to a Kind. Unknown strings return KindUnknown.
func ParseKind(s string) Kind {
	switch s {
	case "Buy":
		return KindBuy
	case "Sell":
		return KindSell
	case "Split":
		return KindSplit
	case "Merge":
		return KindMerge
	case "Redeem":
		return KindRedeem
	case "Convert":
		return KindConvert
	default:
		return KindUnknown
	}
}

// Role distinguishes the two legs of a single order fill. A fill produces one
// maker leg and one taker leg; the two legs share an event id but must not
// collapse into each other during dedup.
type Role int32

const (
	RoleNone Role = iota
	RoleMaker
	RoleTaker
)

func (r Role) String() string {
	switch r {
	case RoleMaker:
		return "maker"
	case RoleTaker:
		return "taker"
	default:
		return ""
	}
}

// ParseRole maps the wire string to a Role.
func ParseRole(s string) Role {
	switch s {
	case "maker":
		return RoleMaker
	case "taker":
		return RoleTaker
	default:
		return RoleNone
	}
}

// OutcomeToken identifies one tradable outcome share: a market (condition id)
// plus the outcome index within that market.
type OutcomeToken struct {
	Market  string
	Outcome int
}

// Event is the interface all replayable event payloads implement.
type Event interface {
	// EventID returns the stable identity of the logical occurrence.
	EventID() string

	// DedupKey returns the key under which duplicate deliveries collapse.
	// For order fills this includes the role leg; for everything else it
	// is the event id alone.
	DedupKey() string

	// EventKind returns the type discriminator.
	EventKind() Kind

	// WalletAddr returns the wallet this event belongs to.
	WalletAddr() string

	// OccurredTime returns the ordering timestamp (versioned input, never
	// wall-clock).
	OccurredTime() time.Time
}
