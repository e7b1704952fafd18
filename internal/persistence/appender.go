// Package persistence owns the Postgres write path: appending feed rows to
// the warehouse tables, persisting wallet reports, and running schema
// migrations.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"OutcomeLedger/internal/event"
	"OutcomeLedger/internal/observability"
	"OutcomeLedger/internal/warehouse"
)

// Appender writes feed rows using multi-row INSERT with conflict clauses,
// so every write is idempotent per key. COPY would be faster at bulk-load
// volumes; the feed's per-message rate does not need it.
type Appender struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func NewAppender(db *sql.DB, metrics *observability.Metrics) *Appender {
	return &Appender{db: db, metrics: metrics}
}

// AppendEvents inserts event rows. Rows whose (event_id, role) already
// exists are left untouched; redeliveries never overwrite.
func (a *Appender) AppendEvents(ctx context.Context, rows []event.Raw) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO events
		(event_id, role, wallet, token_id, market, kind, quantity, price,
		 sold_outcomes, bought_outcome, occurred_at, ingested_at)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*12)

	for i, r := range rows {
		base := i * 12
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
			base+7, base+8, base+9, base+10, base+11, base+12,
		))

		sold := make(pq.Int64Array, len(r.SoldOutcomes))
		for j, o := range r.SoldOutcomes {
			sold[j] = int64(o)
		}
		args = append(args,
			r.EventID, r.Role, r.Wallet, r.TokenID, r.Market, r.Kind,
			r.Quantity, r.Price, sold, r.BoughtOutcome, r.OccurredAt, r.IngestedAt,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (event_id, role) DO NOTHING"

	_, err := a.db.ExecContext(ctx, query, args...)
	return err
}

// AppendResolutions inserts payout rows. Resolutions are terminal; the
// first stored payout for a (market, outcome) wins.
func (a *Appender) AppendResolutions(ctx context.Context, rows []warehouse.ResolutionRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO resolutions (market, outcome, payout, resolved_at) VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*4)
	now := time.Now().UTC()

	for i, r := range rows {
		base := i * 4
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4,
		))
		args = append(args, r.Market, r.Outcome, r.Payout, now)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (market, outcome) DO NOTHING"

	_, err := a.db.ExecContext(ctx, query, args...)
	return err
}

// AppendMarks inserts mark-price observations. Marks are time-series rows,
// not upserts; the read side takes the latest per token.
func (a *Appender) AppendMarks(ctx context.Context, rows []warehouse.MarkRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO mark_prices (market, outcome, price, observed_at) VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*4)
	now := time.Now().UTC()

	for i, r := range rows {
		base := i * 4
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4,
		))
		args = append(args, r.Market, r.Outcome, r.Price, now)
	}

	query += strings.Join(values, ", ")

	_, err := a.db.ExecContext(ctx, query, args...)
	return err
}

// IsStored is the feed dedup cold path. The key carries the role suffix the
// dedup layer uses, so the comparison recomposes it in SQL.
func (a *Appender) IsStored(_ string, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	const q = `SELECT 1 FROM events WHERE event_id || ':' || role = $1 LIMIT 1`

	var one int
	err := a.db.QueryRowContext(ctx, q, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecentEventKeys returns the newest composite keys for warming the feed
// dedup cache on restart, grouped by feed category. Categories match the
// ingest subjects: order fills versus lifecycle operations.
func (a *Appender) RecentEventKeys(ctx context.Context, limit int) (map[string][]string, error) {
	const q = `
		SELECT CASE WHEN kind IN ('Buy', 'Sell') THEN 'fill' ELSE 'lifecycle' END,
		       event_id || ':' || role
		FROM events
		ORDER BY ingested_at DESC
		LIMIT $1`

	rows, err := a.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent event keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string][]string)
	for rows.Next() {
		var category, k string
		if err := rows.Scan(&category, &k); err != nil {
			return nil, fmt.Errorf("scan event key: %w", err)
		}
		keys[category] = append(keys[category], k)
	}
	return keys, rows.Err()
}
