package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"hotel_pricing/internal/domain"
)

// RepriceSummary counts the outcome of one sheet run.
type RepriceSummary struct {
	Rows       int
	Applied    int
	Failed     int
	Partial    int // DependentWriteFailure: price kept, some dependents pending
	Duplicates int
	Dependents int
	Failures   map[int]error // keyed by sheet line
}

// Repricer applies a parsed price sheet with bounded concurrency.
type Repricer struct {
	up      domain.PriceUpdater
	workers int
}

func NewRepricer(up domain.PriceUpdater, workers int) *Repricer {
	if workers < 1 {
		workers = 1
	}
	return &Repricer{up: up, workers: workers}
}

// dedupe keeps the last row for each entity so two workers never race on one price.
func dedupe(rows []PriceSheetRow) ([]PriceSheetRow, int) {
	last := make(map[domain.EntityRef]int, len(rows))
	for i, r := range rows {
		last[r.Ref] = i
	}
	out := make([]PriceSheetRow, 0, len(last))
	for i, r := range rows {
		if last[r.Ref] == i {
			out = append(out, r)
		}
	}
	return out, len(rows) - len(out)
}

func (rp *Repricer) Run(ctx context.Context, rows []PriceSheetRow) RepriceSummary {
	start := time.Now()
	rows, dups := dedupe(rows)
	sum := RepriceSummary{Rows: len(rows), Duplicates: dups, Failures: map[int]error{}}

	sem := semaphore.NewWeighted(int64(rp.workers))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, row := range rows {
		// acquire before launching the goroutine; release inside it
		err := ctx.Err()
		if err == nil {
			err = sem.Acquire(ctx, 1)
		}
		if err != nil {
			mu.Lock()
			sum.Failed++
			sum.Failures[row.Line] = err
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(row PriceSheetRow) {
			defer wg.Done()
			defer sem.Release(1)

			change, err := rp.up.UpdatePrice(ctx, row.Ref, row.Price)
			l := log.With().Int("line", row.Line).Str("kind", string(row.Ref.Kind)).Str("entity_id", row.Ref.ID).Logger()

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sum.Applied++
				sum.Dependents += change.UpdatedCount
				l.Info().Float64("price", row.Price).Int("updated", change.UpdatedCount).Msg("reprice ok")
			case errors.Is(err, domain.ErrDependentWriteFailure):
				sum.Partial++
				sum.Failures[row.Line] = err
				l.Warn().Err(err).Msg("reprice incomplete")
			default:
				sum.Failed++
				sum.Failures[row.Line] = err
				l.Warn().Err(err).Msg("reprice failed")
			}
		}(row)
	}
	wg.Wait()

	log.Info().
		Int("rows", sum.Rows).
		Int("applied", sum.Applied).
		Int("partial", sum.Partial).
		Int("failed", sum.Failed).
		Int("duplicates", sum.Duplicates).
		Int("dependents", sum.Dependents).
		Dur("duration", time.Since(start)).
		Msg("reprice completed")
	return sum
}
