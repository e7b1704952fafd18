package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"OutcomeLedger/internal/observability"
	"OutcomeLedger/internal/report"
)

// ReportStore persists replay outputs. Reports are append-only and keyed by
// a generated id; every batch run leaves a new versioned row per wallet, and
// the read side takes the latest per (wallet, policy).
type ReportStore struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func NewReportStore(db *sql.DB, metrics *observability.Metrics) *ReportStore {
	return &ReportStore{db: db, metrics: metrics}
}

// Write persists one batch of wallet reports under a shared run id.
func (s *ReportStore) Write(ctx context.Context, runID uuid.UUID, reports []report.Report) error {
	if len(reports) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin report tx: %w", err)
	}
	defer tx.Rollback()

	const q = `INSERT INTO reports
		(report_id, run_id, wallet, policy, realized_pnl, resolved_unredeemed_value,
		 unrealized_value, total, resolution_coverage, confidence,
		 touched_markets, resolved_markets, diagnostics, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	for _, rep := range reports {
		diag, err := json.Marshal(rep.Diagnostics)
		if err != nil {
			return fmt.Errorf("marshal diagnostics for %s: %w", rep.Wallet, err)
		}
		if _, err := tx.ExecContext(ctx, q,
			uuid.New(), runID, rep.Wallet, rep.PolicyLabel(),
			rep.RealizedPnL, rep.ResolvedUnredeemedValue, rep.UnrealizedValue, rep.Total,
			rep.ResolutionCoverage, rep.Confidence,
			rep.TouchedMarkets, rep.ResolvedMarkets, diag, rep.GeneratedAt,
		); err != nil {
			return fmt.Errorf("insert report for %s: %w", rep.Wallet, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reports: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ReportsWritten.Add(float64(len(reports)))
		s.metrics.WriteDuration.Observe(time.Since(start).Seconds())
	}
	return nil
}

// Latest returns the most recently generated report for a wallet under the
// given policy.
func (s *ReportStore) Latest(ctx context.Context, wallet string, policy report.Policy) (report.Report, bool, error) {
	const q = `
		SELECT wallet, policy, realized_pnl, resolved_unredeemed_value,
		       unrealized_value, total, resolution_coverage, confidence,
		       touched_markets, resolved_markets, diagnostics, generated_at
		FROM reports
		WHERE wallet = $1 AND policy = $2
		ORDER BY generated_at DESC
		LIMIT 1`

	rep, err := scanReport(s.db.QueryRowContext(ctx, q, wallet, policy.String()))
	if err == sql.ErrNoRows {
		return report.Report{}, false, nil
	}
	if err != nil {
		return report.Report{}, false, fmt.Errorf("query latest report: %w", err)
	}
	return rep, true, nil
}

// LeaderboardEntry is one leaderboard row.
type LeaderboardEntry struct {
	Rank       int             `json:"rank"`
	Wallet     string          `json:"wallet"`
	Total      decimal.Decimal `json:"total"`
	Confidence float64         `json:"confidence"`
}

// Leaderboard returns the top wallets by total PnL under one policy, using
// each wallet's latest report.
func (s *ReportStore) Leaderboard(ctx context.Context, policy report.Policy, limit int) ([]LeaderboardEntry, error) {
	const q = `
		SELECT DISTINCT ON (wallet) wallet, total, confidence
		FROM reports
		WHERE policy = $1
		ORDER BY wallet, generated_at DESC`

	rows, err := s.db.QueryContext(ctx, q, policy.String())
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Wallet, &e.Total, &e.Confidence); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortLeaderboard(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// Highest total first; ties break on wallet for a stable order.
func sortLeaderboard(entries []LeaderboardEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Total.Equal(entries[j].Total) {
			return entries[i].Total.GreaterThan(entries[j].Total)
		}
		return entries[i].Wallet < entries[j].Wallet
	})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (report.Report, error) {
	var (
		rep         report.Report
		policyLabel string
		diagJSON    []byte
	)
	err := row.Scan(
		&rep.Wallet, &policyLabel, &rep.RealizedPnL, &rep.ResolvedUnredeemedValue,
		&rep.UnrealizedValue, &rep.Total, &rep.ResolutionCoverage, &rep.Confidence,
		&rep.TouchedMarkets, &rep.ResolvedMarkets, &diagJSON, &rep.GeneratedAt,
	)
	if err != nil {
		return report.Report{}, err
	}

	policy, perr := report.ParsePolicy(policyLabel)
	if perr != nil {
		return report.Report{}, fmt.Errorf("stored report policy: %w", perr)
	}
	rep.Policy = policy

	if err := json.Unmarshal(diagJSON, &rep.Diagnostics); err != nil {
		return report.Report{}, fmt.Errorf("unmarshal diagnostics: %w", err)
	}
	return rep, nil
}
