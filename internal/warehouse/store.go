package warehouse

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"OutcomeLedger/internal/event"
)

// Store reads warehouse tables through database/sql. It is a pure read
// adapter: rows come back as they are stored, and all interpretation
// (dedup, ordering, validation) belongs to the normalizer.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EventsForWallets returns every stored event row for the given wallets.
// Duplicate deliveries are returned as-is; rows are ordered by ingestion
// time so the normalizer's latest-wins rule is stable.
func (s *Store) EventsForWallets(ctx context.Context, wallets []string) ([]event.Raw, error) {
	const q = `
		SELECT event_id, wallet, token_id, market, kind, quantity, price, role,
		       sold_outcomes, bought_outcome, occurred_at, ingested_at
		FROM events
		WHERE wallet = ANY($1)
		ORDER BY ingested_at, event_id`

	rows, err := s.db.QueryContext(ctx, q, pq.Array(wallets))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []event.Raw
	for rows.Next() {
		var (
			r       event.Raw
			tokenID sql.NullString
			market  sql.NullString
			role    sql.NullString
			sold    pq.Int64Array
			bought  sql.NullInt64
		)
		if err := rows.Scan(
			&r.EventID, &r.Wallet, &tokenID, &market, &r.Kind,
			&r.Quantity, &r.Price, &role, &sold, &bought,
			&r.OccurredAt, &r.IngestedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		r.TokenID = tokenID.String
		r.Market = market.String
		r.Role = role.String
		if bought.Valid {
			r.BoughtOutcome = int(bought.Int64)
		} else {
			r.BoughtOutcome = -1
		}
		if len(sold) > 0 {
			r.SoldOutcomes = make([]int, len(sold))
			for i, o := range sold {
				r.SoldOutcomes[i] = int(o)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TokenMappings returns the full token-to-(market, outcome) mapping.
func (s *Store) TokenMappings(ctx context.Context) ([]TokenMapping, error) {
	const q = `
		SELECT token_id, market, outcome
		FROM market_tokens
		ORDER BY market, outcome`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query token mappings: %w", err)
	}
	defer rows.Close()

	var out []TokenMapping
	for rows.Next() {
		var m TokenMapping
		if err := rows.Scan(&m.TokenID, &m.Market, &m.Outcome); err != nil {
			return nil, fmt.Errorf("scan token mapping: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ResolutionsForMarkets returns per-outcome payout rows for the markets the
// oracle has resolved. Unresolved markets simply produce no rows.
func (s *Store) ResolutionsForMarkets(ctx context.Context, markets []string) ([]ResolutionRow, error) {
	const q = `
		SELECT market, outcome, payout
		FROM resolutions
		WHERE market = ANY($1)
		ORDER BY market, outcome`

	rows, err := s.db.QueryContext(ctx, q, pq.Array(markets))
	if err != nil {
		return nil, fmt.Errorf("query resolutions: %w", err)
	}
	defer rows.Close()

	var out []ResolutionRow
	for rows.Next() {
		var r ResolutionRow
		if err := rows.Scan(&r.Market, &r.Outcome, &r.Payout); err != nil {
			return nil, fmt.Errorf("scan resolution row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkPricesForMarkets returns the latest mark price per outcome token for
// the given markets.
func (s *Store) MarkPricesForMarkets(ctx context.Context, markets []string) ([]MarkRow, error) {
	const q = `
		SELECT DISTINCT ON (market, outcome) market, outcome, price
		FROM mark_prices
		WHERE market = ANY($1)
		ORDER BY market, outcome, observed_at DESC`

	rows, err := s.db.QueryContext(ctx, q, pq.Array(markets))
	if err != nil {
		return nil, fmt.Errorf("query mark prices: %w", err)
	}
	defer rows.Close()

	var out []MarkRow
	for rows.Next() {
		var m MarkRow
		if err := rows.Scan(&m.Market, &m.Outcome, &m.Price); err != nil {
			return nil, fmt.Errorf("scan mark price row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ActiveWallets returns the distinct wallets with at least one stored event,
// for batch runs over the whole warehouse.
func (s *Store) ActiveWallets(ctx context.Context) ([]string, error) {
	const q = `SELECT DISTINCT wallet FROM events ORDER BY wallet`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query active wallets: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
