package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"OutcomeLedger/internal/core"
	"OutcomeLedger/internal/event"
	"OutcomeLedger/internal/observability"
	"OutcomeLedger/internal/persistence"
	"OutcomeLedger/internal/report"
	"OutcomeLedger/internal/server"
	"OutcomeLedger/internal/warehouse"
)

type staticSource struct {
	events      map[string][]event.Raw
	mappings    []warehouse.TokenMapping
	resolutions []warehouse.ResolutionRow
}

func (s *staticSource) EventsForWallets(_ context.Context, wallets []string) ([]event.Raw, error) {
	var out []event.Raw
	for _, w := range wallets {
		out = append(out, s.events[w]...)
	}
	return out, nil
}

func (s *staticSource) TokenMappings(context.Context) ([]warehouse.TokenMapping, error) {
	return s.mappings, nil
}

func (s *staticSource) ResolutionsForMarkets(_ context.Context, markets []string) ([]warehouse.ResolutionRow, error) {
	var out []warehouse.ResolutionRow
	for _, row := range s.resolutions {
		for _, m := range markets {
			if row.Market == m {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func (s *staticSource) MarkPricesForMarkets(context.Context, []string) ([]warehouse.MarkRow, error) {
	return nil, nil
}

type fakeReports struct {
	latest  map[string]report.Report
	entries []persistence.LeaderboardEntry
	err     error
}

func (f *fakeReports) Latest(_ context.Context, wallet string, _ report.Policy) (report.Report, bool, error) {
	if f.err != nil {
		return report.Report{}, false, f.err
	}
	rep, ok := f.latest[wallet]
	return rep, ok, nil
}

func (f *fakeReports) Leaderboard(context.Context, report.Policy, int) ([]persistence.LeaderboardEntry, error) {
	return f.entries, f.err
}

func newTestServer(src warehouse.Source, reports server.ReportReader) *server.Server {
	health := observability.NewHealthChecker()
	health.SetReady(true)
	return server.New("127.0.0.1:0", server.Deps{
		Preloader: warehouse.NewPreloader(src, nil, zerolog.Nop()),
		Reports:   reports,
		Engine:    core.DefaultConfig(),
		Health:    health,
		Log:       zerolog.Nop(),
	})
}

func get(t *testing.T, srv *server.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func tradingSource() *staticSource {
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return &staticSource{
		events: map[string][]event.Raw{
			"0xw1": {
				{
					EventID: "e1", Wallet: "0xw1", TokenID: "tok-yes", Kind: "Buy",
					Quantity: decimal.RequireFromString("10"), Price: decimal.RequireFromString("0.40"),
					Role: "taker", BoughtOutcome: -1, OccurredAt: at, IngestedAt: at,
				},
				{
					EventID: "e2", Wallet: "0xw1", TokenID: "tok-yes", Kind: "Sell",
					Quantity: decimal.RequireFromString("4"), Price: decimal.RequireFromString("0.55"),
					Role: "taker", BoughtOutcome: -1, OccurredAt: at.Add(time.Hour), IngestedAt: at.Add(time.Hour),
				},
			},
		},
		mappings: []warehouse.TokenMapping{
			{TokenID: "tok-yes", Market: "0xmkt1", Outcome: 0},
			{TokenID: "tok-no", Market: "0xmkt1", Outcome: 1},
		},
	}
}

func TestLivePnLComputesReport(t *testing.T) {
	srv := newTestServer(tradingSource(), &fakeReports{})

	rec := get(t, srv, "/v1/wallets/0xw1/pnl?policy=realized_only")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body)
	}

	var rep report.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Wallet != "0xw1" {
		t.Errorf("wallet: got %s", rep.Wallet)
	}
	// 4 sold at 0.55 against a 0.40 average cost.
	if rep.RealizedPnL.String() != "0.6" {
		t.Errorf("realized: got %s, want 0.6", rep.RealizedPnL)
	}
	if !rep.Total.Equal(rep.RealizedPnL) {
		t.Errorf("realized_only total: got %s, want %s", rep.Total, rep.RealizedPnL)
	}
}

func TestLivePnLRejectsUnknownPolicy(t *testing.T) {
	srv := newTestServer(tradingSource(), &fakeReports{})

	rec := get(t, srv, "/v1/wallets/0xw1/pnl?policy=imaginary")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestLivePnLUnknownWalletIsEmptyReport(t *testing.T) {
	srv := newTestServer(tradingSource(), &fakeReports{})

	rec := get(t, srv, "/v1/wallets/0xnobody/pnl")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var rep report.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !rep.RealizedPnL.IsZero() || !rep.Total.IsZero() {
		t.Errorf("empty wallet produced nonzero pnl: %s", rec.Body)
	}
}

func TestStoredReport(t *testing.T) {
	stored := report.Report{
		Wallet:      "0xw1",
		Policy:      report.PolicyRealizedPlusResolved,
		RealizedPnL: decimal.RequireFromString("1.25"),
		Total:       decimal.RequireFromString("1.25"),
		GeneratedAt: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
	}
	srv := newTestServer(tradingSource(), &fakeReports{
		latest: map[string]report.Report{"0xw1": stored},
	})

	rec := get(t, srv, "/v1/wallets/0xw1/report")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var rep report.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !rep.Total.Equal(stored.Total) {
		t.Errorf("total: got %s, want %s", rep.Total, stored.Total)
	}

	rec = get(t, srv, "/v1/wallets/0xmissing/report")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing wallet status: got %d, want 404", rec.Code)
	}
}

func TestLeaderboard(t *testing.T) {
	srv := newTestServer(tradingSource(), &fakeReports{
		entries: []persistence.LeaderboardEntry{
			{Rank: 1, Wallet: "0xw1", Total: decimal.RequireFromString("10"), Confidence: 1},
			{Rank: 2, Wallet: "0xw2", Total: decimal.RequireFromString("3"), Confidence: 0.8},
		},
	})

	rec := get(t, srv, "/v1/leaderboard?policy=realized_plus_resolved&limit=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}

	var body struct {
		Policy  string                         `json:"policy"`
		Entries []persistence.LeaderboardEntry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Policy != "realized_plus_resolved" {
		t.Errorf("policy: got %s", body.Policy)
	}
	if len(body.Entries) != 2 || body.Entries[0].Wallet != "0xw1" {
		t.Errorf("entries: got %+v", body.Entries)
	}
}

func TestLeaderboardRejectsBadLimit(t *testing.T) {
	srv := newTestServer(tradingSource(), &fakeReports{})
	rec := get(t, srv, "/v1/leaderboard?limit=-1")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestLeaderboardPropagatesStoreFailure(t *testing.T) {
	srv := newTestServer(tradingSource(), &fakeReports{err: errors.New("db down")})
	rec := get(t, srv, "/v1/leaderboard")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(tradingSource(), &fakeReports{})

	if rec := get(t, srv, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz: got %d", rec.Code)
	}
	if rec := get(t, srv, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("readyz: got %d", rec.Code)
	}
}
