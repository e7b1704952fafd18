package warehouse_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"OutcomeLedger/internal/core"
	"OutcomeLedger/internal/event"
	"OutcomeLedger/internal/warehouse"
)

// fakeSource is an in-memory Source with injectable failures.
type fakeSource struct {
	mu sync.Mutex

	events      map[string][]event.Raw
	mappings    []warehouse.TokenMapping
	resolutions []warehouse.ResolutionRow
	marks       []warehouse.MarkRow

	// maxEventChunk fails EventsForWallets calls whose wallet slice is
	// larger, simulating the warehouse rejecting oversized lookups.
	maxEventChunk int

	// failEventCalls fails that many EventsForWallets calls before
	// letting them through.
	failEventCalls int

	eventChunkSizes []int
}

func (f *fakeSource) EventsForWallets(_ context.Context, wallets []string) ([]event.Raw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.eventChunkSizes = append(f.eventChunkSizes, len(wallets))
	if f.maxEventChunk > 0 && len(wallets) > f.maxEventChunk {
		return nil, errors.New("batched lookup too large")
	}
	if f.failEventCalls > 0 {
		f.failEventCalls--
		return nil, errors.New("transient warehouse error")
	}

	var out []event.Raw
	for _, w := range wallets {
		out = append(out, f.events[w]...)
	}
	return out, nil
}

func (f *fakeSource) TokenMappings(context.Context) ([]warehouse.TokenMapping, error) {
	return f.mappings, nil
}

func (f *fakeSource) ResolutionsForMarkets(_ context.Context, markets []string) ([]warehouse.ResolutionRow, error) {
	var out []warehouse.ResolutionRow
	for _, row := range f.resolutions {
		for _, m := range markets {
			if row.Market == m {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func (f *fakeSource) MarkPricesForMarkets(_ context.Context, markets []string) ([]warehouse.MarkRow, error) {
	var out []warehouse.MarkRow
	for _, row := range f.marks {
		for _, m := range markets {
			if row.Market == m {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fillRow(id, wallet, tokenID, kind, qty, price string, at time.Time) event.Raw {
	return event.Raw{
		EventID:    id,
		Wallet:     wallet,
		TokenID:    tokenID,
		Kind:       kind,
		Quantity:   dec(qty),
		Price:      dec(price),
		Role:       "taker",
		OccurredAt: at,
		IngestedAt: at,
	}
}

func newFakeSource(wallets ...string) *fakeSource {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	f := &fakeSource{
		events: make(map[string][]event.Raw),
		mappings: []warehouse.TokenMapping{
			{TokenID: "tok-yes", Market: "mkt-a", Outcome: 0},
			{TokenID: "tok-no", Market: "mkt-a", Outcome: 1},
			{TokenID: "tok-b0", Market: "mkt-b", Outcome: 0},
			{TokenID: "tok-b1", Market: "mkt-b", Outcome: 1},
		},
		resolutions: []warehouse.ResolutionRow{
			{Market: "mkt-a", Outcome: 0, Payout: dec("1")},
			{Market: "mkt-a", Outcome: 1, Payout: dec("0")},
		},
		marks: []warehouse.MarkRow{
			{Market: "mkt-b", Outcome: 0, Price: dec("0.62")},
		},
	}
	for i, w := range wallets {
		at := base.Add(time.Duration(i) * time.Minute)
		f.events[w] = []event.Raw{
			fillRow("buy-"+w, w, "tok-yes", "Buy", "10", "0.40", at),
			fillRow("sell-"+w, w, "tok-yes", "Sell", "4", "0.55", at.Add(time.Hour)),
			fillRow("buyb-"+w, w, "tok-b0", "Buy", "5", "0.30", at.Add(2*time.Hour)),
		}
	}
	return f
}

func newTestPreloader(src warehouse.Source) *warehouse.Preloader {
	return warehouse.NewPreloader(src, nil, zerolog.Nop())
}

func TestPreloadAssemblesBatch(t *testing.T) {
	src := newFakeSource("w1", "w2")
	batch, err := newTestPreloader(src).Preload(context.Background(), []string{"w1", "w2"}, true)
	if err != nil {
		t.Fatalf("Preload: %v", err)
	}

	if got := len(batch.Events["w1"]); got != 3 {
		t.Errorf("w1 events = %d, want 3", got)
	}
	if got := len(batch.Events["w2"]); got != 3 {
		t.Errorf("w2 events = %d, want 3", got)
	}
	if _, ok := batch.Registry.Resolve("tok-no"); !ok {
		t.Error("registry missing tok-no")
	}
	if !batch.Resolutions.Resolved("mkt-a") {
		t.Error("mkt-a resolution missing")
	}
	if batch.Resolutions.Resolved("mkt-b") {
		t.Error("mkt-b unexpectedly resolved")
	}
	if _, ok := batch.Marks.Mark(event.OutcomeToken{Market: "mkt-b", Outcome: 0}); !ok {
		t.Error("mkt-b mark price missing")
	}
}

func TestPreloadSkipsMarksWhenNotRequested(t *testing.T) {
	src := newFakeSource("w1")
	batch, err := newTestPreloader(src).Preload(context.Background(), []string{"w1"}, false)
	if err != nil {
		t.Fatalf("Preload: %v", err)
	}
	if _, ok := batch.Marks.Mark(event.OutcomeToken{Market: "mkt-b", Outcome: 0}); ok {
		t.Error("mark price loaded despite includeMarks=false")
	}
}

func TestPreloadHalvesChunkOnFailure(t *testing.T) {
	wallets := []string{"w1", "w2", "w3", "w4", "w5", "w6", "w7", "w8"}
	src := newFakeSource(wallets...)
	src.maxEventChunk = 2

	batch, err := newTestPreloader(src).WithChunkSize(8).Preload(context.Background(), wallets, false)
	if err != nil {
		t.Fatalf("Preload: %v", err)
	}

	total := 0
	for _, w := range wallets {
		total += len(batch.Events[w])
	}
	if total != 3*len(wallets) {
		t.Errorf("total events = %d, want %d", total, 3*len(wallets))
	}

	sawOversized := false
	for _, n := range src.eventChunkSizes {
		if n > 2 {
			sawOversized = true
		}
	}
	if !sawOversized {
		t.Error("expected at least one oversized chunk attempt before shrinking")
	}
	// Shrinking must not duplicate rows across the halves.
	for _, w := range wallets {
		if got := len(batch.Events[w]); got != 3 {
			t.Errorf("%s events = %d, want 3", w, got)
		}
	}
}

func TestPreloadRetriesSingleItemChunk(t *testing.T) {
	src := newFakeSource("w1")
	src.failEventCalls = 1

	batch, err := newTestPreloader(src).WithChunkSize(1).Preload(context.Background(), []string{"w1"}, false)
	if err != nil {
		t.Fatalf("Preload: %v", err)
	}
	if got := len(batch.Events["w1"]); got != 3 {
		t.Errorf("w1 events = %d, want 3", got)
	}
}

// Batch preload must produce byte-identical replay state to the naive
// per-wallet path.
func TestPreloadParityWithNaivePath(t *testing.T) {
	wallets := []string{"w1", "w2", "w3", "w4", "w5"}
	src := newFakeSource(wallets...)
	src.maxEventChunk = 2

	batched, err := newTestPreloader(src).WithChunkSize(5).Preload(context.Background(), wallets, true)
	if err != nil {
		t.Fatalf("batched Preload: %v", err)
	}

	naive := newTestPreloader(newFakeSource(wallets...))
	for _, w := range wallets {
		single, err := naive.PreloadWallet(context.Background(), w, true)
		if err != nil {
			t.Fatalf("PreloadWallet(%s): %v", w, err)
		}

		batchedEngine := core.NewEngine(core.DefaultConfig(), batched.Registry, batched.Resolutions, nil, zerolog.Nop())
		naiveEngine := core.NewEngine(core.DefaultConfig(), single.Registry, single.Resolutions, nil, zerolog.Nop())

		batchedBook, _ := batchedEngine.ReplayBook(w, batched.Events[w])
		naiveBook, _ := naiveEngine.ReplayBook(w, single.Events[w])

		if batchedBook.Digest() != naiveBook.Digest() {
			t.Errorf("wallet %s: batched and naive replay digests differ", w)
		}
	}
}
