package core

import (
	"context"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"

	"OutcomeLedger/internal/event"
	"OutcomeLedger/internal/report"
)

// ReplayAll fans replay out across wallets. Wallets share no mutable state
// (the catalog is read-only once the batch is loaded), so this is a plain
// bounded fan-out with no locking and no merge step. Results come back
// sorted by wallet for deterministic output.
func ReplayAll(
	ctx context.Context,
	engine *Engine,
	eventsByWallet map[string][]event.Raw,
	workers int,
	asOf time.Time,
) ([]report.Report, error) {
	wallets := make([]string, 0, len(eventsByWallet))
	for w := range eventsByWallet {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)

	if workers <= 0 {
		workers = 1
	}

	p := pool.NewWithResults[report.Report]().
		WithMaxGoroutines(workers).
		WithContext(ctx)

	for _, wallet := range wallets {
		wallet := wallet
		p.Go(func(ctx context.Context) (report.Report, error) {
			if err := ctx.Err(); err != nil {
				return report.Report{}, err
			}
			return engine.ReplayWallet(wallet, eventsByWallet[wallet], asOf), nil
		})
	}

	reports, err := p.Wait()
	if err != nil {
		return nil, err
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Wallet < reports[j].Wallet
	})
	return reports, nil
}
