package warehouse

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"OutcomeLedger/internal/event"
	"OutcomeLedger/internal/market"
	"OutcomeLedger/internal/observability"
)

const (
	// defaultChunkSize bounds how many wallets (or markets) one query
	// covers. Oversized batched lookups have been seen to fail outright;
	// failed chunks are retried at half size down to single items.
	defaultChunkSize = 500

	minChunkSize = 1

	maxChunkAttempts = 6
)

// Preloader is the batch preload coordinator. It has no accounting
// semantics: its only job is producing a Batch identical to what a naive
// per-wallet fetch path would produce, in far fewer round-trips.
type Preloader struct {
	src       Source
	chunkSize int
	metrics   *observability.Metrics
	log       zerolog.Logger
}

func NewPreloader(src Source, metrics *observability.Metrics, log zerolog.Logger) *Preloader {
	return &Preloader{
		src:       src,
		chunkSize: defaultChunkSize,
		metrics:   metrics,
		log:       log,
	}
}

// WithChunkSize overrides the fetch chunk size (tests use small values).
func (p *Preloader) WithChunkSize(n int) *Preloader {
	if n >= minChunkSize {
		p.chunkSize = n
	}
	return p
}

// Preload fetches everything the batch needs: the wallets' events and the
// token mapping concurrently, then the referenced markets' resolutions and
// (when includeMarks) mark prices concurrently. All fetches complete before
// the Batch is returned; replay never sees partial state.
func (p *Preloader) Preload(ctx context.Context, wallets []string, includeMarks bool) (*Batch, error) {
	var (
		rawEvents []event.Raw
		mappings  []TokenMapping
	)

	phase1 := pool.New().WithErrors().WithContext(ctx)
	phase1.Go(func(ctx context.Context) error {
		rows, err := fetchChunked(ctx, p, "events", wallets, p.src.EventsForWallets)
		if err != nil {
			return fmt.Errorf("preload events: %w", err)
		}
		rawEvents = rows
		return nil
	})
	phase1.Go(func(ctx context.Context) error {
		start := time.Now()
		rows, err := p.src.TokenMappings(ctx)
		if err != nil {
			return fmt.Errorf("preload token mappings: %w", err)
		}
		mappings = rows
		p.observe("tokens", start, len(rows))
		return nil
	})
	if err := phase1.Wait(); err != nil {
		return nil, err
	}

	registry := market.NewRegistry()
	for _, m := range mappings {
		if err := registry.Register(m.TokenID, m.Market, m.Outcome); err != nil {
			return nil, fmt.Errorf("preload: %w", err)
		}
	}

	events := groupByWallet(wallets, rawEvents)
	markets := referencedMarkets(rawEvents, registry)

	var (
		resolutionRows []ResolutionRow
		markRows       []MarkRow
	)

	phase2 := pool.New().WithErrors().WithContext(ctx)
	phase2.Go(func(ctx context.Context) error {
		rows, err := fetchChunked(ctx, p, "resolutions", markets, p.src.ResolutionsForMarkets)
		if err != nil {
			return fmt.Errorf("preload resolutions: %w", err)
		}
		resolutionRows = rows
		return nil
	})
	if includeMarks {
		phase2.Go(func(ctx context.Context) error {
			rows, err := fetchChunked(ctx, p, "marks", markets, p.src.MarkPricesForMarkets)
			if err != nil {
				return fmt.Errorf("preload mark prices: %w", err)
			}
			markRows = rows
			return nil
		})
	}
	if err := phase2.Wait(); err != nil {
		return nil, err
	}

	resolutions, err := buildResolutions(resolutionRows)
	if err != nil {
		return nil, err
	}

	marks := market.NewMarkTable()
	for _, row := range markRows {
		marks.Set(event.OutcomeToken{Market: row.Market, Outcome: row.Outcome}, row.Price)
	}

	return &Batch{
		Events:      events,
		Registry:    registry,
		Resolutions: resolutions,
		Marks:       marks,
	}, nil
}

// PreloadWallet is the naive single-wallet path. It exists for on-demand
// queries and as the parity reference for Preload.
func (p *Preloader) PreloadWallet(ctx context.Context, wallet string, includeMarks bool) (*Batch, error) {
	return p.Preload(ctx, []string{wallet}, includeMarks)
}

// fetchChunked runs fn over items in chunks of the preloader's configured
// size. A failed chunk is retried at half size; only a chunk that keeps
// failing at minimum size fails the batch.
func fetchChunked[R any](
	ctx context.Context,
	p *Preloader,
	dataset string,
	items []string,
	fn func(context.Context, []string) ([]R, error),
) ([]R, error) {
	var out []R
	start := time.Now()

	for begin := 0; begin < len(items); {
		end := begin + p.chunkSize
		if end > len(items) {
			end = len(items)
		}

		rows, err := fetchWithShrink(ctx, p, dataset, items[begin:end], fn)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
		begin = end
	}

	p.observe(dataset, start, len(out))
	return out, nil
}

func fetchWithShrink[R any](
	ctx context.Context,
	p *Preloader,
	dataset string,
	chunk []string,
	fn func(context.Context, []string) ([]R, error),
) ([]R, error) {
	if len(chunk) == 0 {
		return nil, nil
	}

	rows, err := fn(ctx, chunk)
	if err == nil {
		return rows, nil
	}

	if len(chunk) <= minChunkSize {
		return retrySingle(ctx, p, dataset, chunk, fn, err)
	}

	if p.metrics != nil {
		p.metrics.PreloadChunkRetry.Inc()
	}
	p.log.Warn().
		Str("dataset", dataset).
		Int("chunk", len(chunk)).
		Err(err).
		Msg("chunked fetch failed, halving chunk size")

	mid := len(chunk) / 2
	left, err := fetchWithShrink(ctx, p, dataset, chunk[:mid], fn)
	if err != nil {
		return nil, err
	}
	right, err := fetchWithShrink(ctx, p, dataset, chunk[mid:], fn)
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}

// retrySingle retries a minimum-size chunk with exponential backoff before
// giving up and failing the batch. The caller retries batch-level failures;
// nothing here retries silently with partial state.
func retrySingle[R any](
	ctx context.Context,
	p *Preloader,
	dataset string,
	chunk []string,
	fn func(context.Context, []string) ([]R, error),
	firstErr error,
) ([]R, error) {
	bo := backoff.NewExponentialBackOff()
	lastErr := firstErr

	for attempt := 1; attempt < maxChunkAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}

		if p.metrics != nil {
			p.metrics.PreloadChunkRetry.Inc()
		}
		rows, err := fn(ctx, chunk)
		if err == nil {
			return rows, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%s fetch failed after %d attempts: %w", dataset, maxChunkAttempts, lastErr)
}

func (p *Preloader) observe(dataset string, start time.Time, rows int) {
	if p.metrics == nil {
		return
	}
	p.metrics.PreloadDuration.WithLabelValues(dataset).Observe(time.Since(start).Seconds())
	p.metrics.PreloadRows.WithLabelValues(dataset).Add(float64(rows))
}

func groupByWallet(wallets []string, rows []event.Raw) map[string][]event.Raw {
	events := make(map[string][]event.Raw, len(wallets))
	for _, w := range wallets {
		events[w] = nil
	}
	for _, r := range rows {
		if _, ok := events[r.Wallet]; ok {
			events[r.Wallet] = append(events[r.Wallet], r)
		}
	}
	return events
}

// referencedMarkets returns the distinct markets the events touch, sorted.
func referencedMarkets(rows []event.Raw, registry *market.Registry) []string {
	seen := make(map[string]bool)
	for _, r := range rows {
		if r.Market != "" {
			seen[r.Market] = true
			continue
		}
		if tok, ok := registry.Resolve(r.TokenID); ok {
			seen[tok.Market] = true
		}
	}
	markets := make([]string, 0, len(seen))
	for m := range seen {
		markets = append(markets, m)
	}
	sort.Strings(markets)
	return markets
}

// buildResolutions assembles per-outcome payout rows into payout vectors.
// Outcomes the oracle never reported pay zero.
func buildResolutions(rows []ResolutionRow) (*market.ResolutionCache, error) {
	byMarket := make(map[string][]ResolutionRow)
	for _, row := range rows {
		if row.Outcome < 0 {
			return nil, fmt.Errorf("build resolutions: negative outcome index for market %s", row.Market)
		}
		byMarket[row.Market] = append(byMarket[row.Market], row)
	}

	cache := market.NewResolutionCache()
	for m, marketRows := range byMarket {
		maxOutcome := 0
		for _, row := range marketRows {
			if row.Outcome > maxOutcome {
				maxOutcome = row.Outcome
			}
		}
		payouts := make([]decimal.Decimal, maxOutcome+1)
		for i := range payouts {
			payouts[i] = decimal.Zero
		}
		for _, row := range marketRows {
			payouts[row.Outcome] = row.Payout
		}
		if err := cache.Set(m, payouts); err != nil {
			return nil, fmt.Errorf("build resolutions: %w", err)
		}
	}
	return cache, nil
}
