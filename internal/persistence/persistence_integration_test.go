package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"OutcomeLedger/internal/event"
	"OutcomeLedger/internal/observability"
	"OutcomeLedger/internal/persistence"
	"OutcomeLedger/internal/report"
	"OutcomeLedger/internal/testutil"
	"OutcomeLedger/internal/warehouse"
)

// These tests need a real Postgres (docker compose up). They run the
// migrator first, so a fresh database works.

func setup(t *testing.T) (*persistence.Appender, *persistence.ReportStore, *warehouse.Store, func()) {
	t.Helper()
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	migrator := persistence.NewMigrator(db, "../../migrations", observability.NewLogger("migrate-test"))
	if err := migrator.Up(ctx); err != nil {
		cleanup()
		t.Fatalf("migrate up: %v", err)
	}

	return persistence.NewAppender(db, nil), persistence.NewReportStore(db, nil), warehouse.NewStore(db), cleanup
}

func TestAppendEventsIsIdempotentPerKey(t *testing.T) {
	appender, _, store, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	row := event.Raw{
		EventID:       "evt-1",
		Role:          "taker",
		Wallet:        "0xw1",
		TokenID:       "tok-yes",
		Market:        "mkt-1",
		Kind:          "Buy",
		Quantity:      decimal.NewFromInt(10),
		Price:         decimal.RequireFromString("0.40"),
		BoughtOutcome: -1,
		OccurredAt:    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		IngestedAt:    time.Now().UTC(),
	}
	if err := appender.AppendEvents(ctx, []event.Raw{row}); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Redelivery with a mutated payload must not overwrite.
	mutated := row
	mutated.Quantity = decimal.NewFromInt(999)
	if err := appender.AppendEvents(ctx, []event.Raw{mutated}); err != nil {
		t.Fatalf("append redelivery: %v", err)
	}

	got, err := store.EventsForWallets(ctx, []string{"0xw1"})
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1", len(got))
	}
	if !got[0].Quantity.Equal(decimal.NewFromInt(10)) {
		t.Errorf("quantity = %s, want the first stored value 10", got[0].Quantity)
	}

	// The two legs of one fill are distinct rows.
	makerLeg := row
	makerLeg.Role = "maker"
	makerLeg.Wallet = "0xw2"
	if err := appender.AppendEvents(ctx, []event.Raw{makerLeg}); err != nil {
		t.Fatalf("append maker leg: %v", err)
	}
	stored, err := appender.IsStored("fill", "evt-1:maker")
	if err != nil {
		t.Fatalf("IsStored: %v", err)
	}
	if !stored {
		t.Error("maker leg not found by composite key")
	}
}

func TestRecentEventKeysGroupsByCategory(t *testing.T) {
	appender, _, _, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	rows := []event.Raw{
		{
			EventID: "evt-f1", Role: "taker", Wallet: "0xw1", TokenID: "tok-yes",
			Kind: "Buy", Quantity: decimal.NewFromInt(1), Price: decimal.RequireFromString("0.5"),
			BoughtOutcome: -1, OccurredAt: now, IngestedAt: now,
		},
		{
			EventID: "evt-l1", Wallet: "0xw1", Market: "mkt-1",
			Kind: "Split", Quantity: decimal.NewFromInt(5),
			BoughtOutcome: -1, OccurredAt: now, IngestedAt: now,
		},
	}
	if err := appender.AppendEvents(ctx, rows); err != nil {
		t.Fatalf("append: %v", err)
	}

	keys, err := appender.RecentEventKeys(ctx, 100)
	if err != nil {
		t.Fatalf("RecentEventKeys: %v", err)
	}
	if want := []string{"evt-f1:taker"}; len(keys["fill"]) != 1 || keys["fill"][0] != want[0] {
		t.Errorf("fill keys = %v, want %v", keys["fill"], want)
	}
	if want := []string{"evt-l1:"}; len(keys["lifecycle"]) != 1 || keys["lifecycle"][0] != want[0] {
		t.Errorf("lifecycle keys = %v, want %v", keys["lifecycle"], want)
	}
}

func TestResolutionsFirstPayoutWins(t *testing.T) {
	appender, _, store, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	first := warehouse.ResolutionRow{Market: "mkt-1", Outcome: 0, Payout: decimal.NewFromInt(1)}
	if err := appender.AppendResolutions(ctx, []warehouse.ResolutionRow{first}); err != nil {
		t.Fatalf("append resolution: %v", err)
	}
	contradiction := warehouse.ResolutionRow{Market: "mkt-1", Outcome: 0, Payout: decimal.Zero}
	if err := appender.AppendResolutions(ctx, []warehouse.ResolutionRow{contradiction}); err != nil {
		t.Fatalf("append contradiction: %v", err)
	}

	got, err := store.ResolutionsForMarkets(ctx, []string{"mkt-1"})
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1", len(got))
	}
	if !got[0].Payout.Equal(decimal.NewFromInt(1)) {
		t.Errorf("payout = %s, want the first stored value 1", got[0].Payout)
	}
}

func TestReportRoundTripAndLeaderboard(t *testing.T) {
	_, reports, _, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	mkReport := func(wallet string, total int64, confidence float64) report.Report {
		return report.Report{
			Wallet:      wallet,
			Policy:      report.PolicyRealizedPlusResolved,
			RealizedPnL: decimal.NewFromInt(total),
			Total:       decimal.NewFromInt(total),
			Confidence:  confidence,
			Diagnostics: report.Diagnostics{EventsSeen: 3, EventsReplayed: 3},
			GeneratedAt: time.Now().UTC(),
		}
	}

	run1 := uuid.New()
	if err := reports.Write(ctx, run1, []report.Report{
		mkReport("0xw1", 10, 1.0),
		mkReport("0xw2", 50, 0.8),
	}); err != nil {
		t.Fatalf("write run1: %v", err)
	}

	// A later run supersedes the first for Latest and the leaderboard.
	run2 := uuid.New()
	if err := reports.Write(ctx, run2, []report.Report{
		mkReport("0xw1", 70, 1.0),
	}); err != nil {
		t.Fatalf("write run2: %v", err)
	}

	got, found, err := reports.Latest(ctx, "0xw1", report.PolicyRealizedPlusResolved)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !found {
		t.Fatal("report not found")
	}
	if !got.Total.Equal(decimal.NewFromInt(70)) {
		t.Errorf("latest total = %s, want 70", got.Total)
	}
	if got.Diagnostics.EventsSeen != 3 {
		t.Errorf("diagnostics did not round trip: %+v", got.Diagnostics)
	}

	board, err := reports.Leaderboard(ctx, report.PolicyRealizedPlusResolved, 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 2 {
		t.Fatalf("leaderboard has %d entries, want 2", len(board))
	}
	if board[0].Wallet != "0xw1" || !board[0].Total.Equal(decimal.NewFromInt(70)) {
		t.Errorf("rank 1 = %+v, want 0xw1 at 70", board[0])
	}
	if board[1].Wallet != "0xw2" {
		t.Errorf("rank 2 = %+v, want 0xw2", board[1])
	}
}
