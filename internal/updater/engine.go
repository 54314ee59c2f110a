// Package updater implements the staleness-driven update engine: it
// resolves the minimal date range to recompute, pulls raw bars, invokes the
// calculation function per calendar day, and writes cache partitions,
// fanning out over symbols under a bounded worker pool.
//
// Failure semantics: per-symbol and per-timeframe failures are logged into
// the shared statistics object and converted into a false result for that
// unit of work. No error ever propagates out of a batch call; callers
// inspect the returned per-key maps and the statistics afterward.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/quantfold/indicache/internal/calc"
	"github.com/quantfold/indicache/internal/executor"
	"github.com/quantfold/indicache/internal/logging"
	"github.com/quantfold/indicache/internal/partition"
	"github.com/quantfold/indicache/internal/rawstore"
	"github.com/quantfold/indicache/internal/staleness"
	"github.com/quantfold/indicache/internal/types"
)

// DefaultLookbackDays bounds the initial backfill when a symbol has no
// cached partitions at all.
const DefaultLookbackDays = 730

// Config tunes the engine.
type Config struct {
	// LookbackDays is the backfill window for symbols with an empty cache.
	LookbackDays int

	// Workers bounds batch fan-out when the caller passes zero.
	Workers int
}

// Engine orchestrates updates. It is safe for concurrent use; the shared
// statistics object is the only mutable state and is internally locked.
type Engine struct {
	store    *partition.Store
	raw      rawstore.Store
	compute  calc.Func
	detector *staleness.Detector

	lookbackDays int
	workers      int

	stats *Stats
	log   *slog.Logger
}

// New creates an update engine.
func New(store *partition.Store, raw rawstore.Store, compute calc.Func, detector *staleness.Detector, cfg Config) *Engine {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = DefaultLookbackDays
	}
	if cfg.Workers <= 0 {
		cfg.Workers = executor.DefaultWorkers
	}

	return &Engine{
		store:        store,
		raw:          raw,
		compute:      compute,
		detector:     detector,
		lookbackDays: cfg.LookbackDays,
		workers:      cfg.Workers,
		stats:        NewStats(),
		log:          logging.Component("updater"),
	}
}

// Stats returns the shared statistics object.
func (e *Engine) Stats() *Stats {
	return e.stats
}

// UpdateSymbol updates every requested timeframe for one symbol and
// returns true when at least one timeframe had at least one day written.
//
// A zero end resolves to today. A zero start resolves to the minimum
// across requested timeframes of latest-cached-date + 1 day; a timeframe
// with nothing cached contributes end minus the lookback window. A single
// pass therefore covers every timeframe's true gap without recomputing any
// timeframe's already-covered days.
//
// Timeframes are processed sequentially in the caller-supplied order; days
// within one timeframe chronologically. Days with an existing partition
// are skipped unless force is set.
func (e *Engine) UpdateSymbol(ctx context.Context, symbol string, tfs []types.Timeframe, start, end time.Time, force bool) bool {
	e.stats.addProcessed()

	if len(tfs) == 0 {
		e.recordFailure(symbol, "no timeframes requested")
		e.stats.addFailed()
		return false
	}

	if end.IsZero() {
		end = types.DateOnly(time.Now().UTC())
	} else {
		end = types.DateOnly(end)
	}
	if start.IsZero() {
		start = e.resolveStart(symbol, tfs, end)
	} else {
		start = types.DateOnly(start)
	}
	if end.Before(start) {
		e.recordFailure(symbol, fmt.Sprintf("empty range %s..%s", start.Format(types.DateLayout), end.Format(types.DateLayout)))
		e.stats.addFailed()
		return false
	}

	var anySuccess bool
	var totalRows int64

	for _, tf := range tfs {
		rows, ok := e.updateTimeframe(ctx, symbol, tf, start, end, force)
		totalRows += rows
		if ok {
			anySuccess = true
		}
	}

	e.stats.addRows(totalRows)
	if anySuccess {
		e.stats.addUpdated()
	} else {
		e.stats.addFailed()
	}

	e.log.Info("symbol update complete",
		"symbol", symbol,
		"start", start.Format(types.DateLayout),
		"end", end.Format(types.DateLayout),
		"rows", totalRows,
		"ok", anySuccess)

	return anySuccess
}

// resolveStart computes the minimal start date covering every timeframe's
// gap: latest cached date + 1 day per timeframe, or end minus the lookback
// window for timeframes with an empty cache; the minimum wins.
func (e *Engine) resolveStart(symbol string, tfs []types.Timeframe, end time.Time) time.Time {
	var start time.Time

	for _, tf := range tfs {
		var candidate time.Time
		if cached, found := e.store.LatestDate(symbol, tf); found {
			candidate = cached.AddDate(0, 0, 1)
		} else {
			candidate = end.AddDate(0, 0, -e.lookbackDays)
		}
		if start.IsZero() || candidate.Before(start) {
			start = candidate
		}
	}

	return start
}

// updateTimeframe processes one timeframe's day loop and returns the rows
// written and whether at least one day was written.
func (e *Engine) updateTimeframe(ctx context.Context, symbol string, tf types.Timeframe, start, end time.Time, force bool) (int64, bool) {
	bars, err := e.raw.Bars(ctx, symbol, tf, start, end)
	if err != nil {
		e.recordFailure(symbol, fmt.Sprintf("%s: fetch bars: %v", tf.String(), err))
		return 0, false
	}
	if len(bars) == 0 {
		e.log.Debug("no raw bars", "symbol", symbol, "timeframe", tf.String())
		return 0, false
	}

	groups := types.GroupBarsByDay(bars)

	days := make([]time.Time, 0, len(groups))
	for day := range groups {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	var rowsWritten int64
	var daysWritten int

	for _, day := range days {
		if !force && e.store.Exists(symbol, tf, day) {
			continue
		}

		rows, err := e.compute(groups[day], symbol, tf)
		if err != nil {
			e.recordFailure(symbol, fmt.Sprintf("%s %s: compute: %v", tf.String(), day.Format(types.DateLayout), err))
			continue
		}

		if !e.store.Write(rows, symbol, tf, day, true) {
			e.recordFailure(symbol, fmt.Sprintf("%s %s: write failed", tf.String(), day.Format(types.DateLayout)))
			continue
		}

		rowsWritten += int64(len(rows))
		daysWritten++
	}

	return rowsWritten, daysWritten > 0
}

// UpdateMany fans UpdateSymbol out over symbols under a bounded worker
// pool. The result map has exactly one entry per requested symbol; one
// symbol's failure never affects another's.
func (e *Engine) UpdateMany(ctx context.Context, symbols []string, tfs []types.Timeframe, start, end time.Time, force bool, maxWorkers int) map[string]bool {
	if maxWorkers <= 0 {
		maxWorkers = e.workers
	}

	results := executor.Map(symbols, maxWorkers, func(symbol string) bool {
		return e.UpdateSymbol(ctx, symbol, tfs, start, end, force)
	})

	ok, total := executor.CountSuccess(results)
	e.log.Info("batch update complete", "succeeded", ok, "total", total)

	return results
}

// UpdateStale runs a staleness scan and updates every flagged symbol,
// restricted to its flagged timeframes and bounded by the flagged raw
// date, so the detector's output is the update's scope and no second full
// gap resolution happens. Pairs the detector force-flagged (a cached day
// that is current but implausibly small) are recomputed in place with an
// explicit range, since gap resolution would start after the day that
// needs rewriting. Returns the per-symbol result map; an error is
// returned only when the scan itself fails.
func (e *Engine) UpdateStale(ctx context.Context, maxAge time.Duration, maxWorkers int) (map[string]bool, error) {
	stale, err := e.detector.DetectStale(ctx, maxAge)
	if err != nil {
		return nil, err
	}
	if len(stale) == 0 {
		e.log.Info("nothing stale")
		return map[string]bool{}, nil
	}
	if maxWorkers <= 0 {
		maxWorkers = e.workers
	}

	symbols := make([]string, 0, len(stale))
	for sym := range stale {
		symbols = append(symbols, sym)
	}

	results := executor.Map(symbols, maxWorkers, func(symbol string) bool {
		var gapTfs, forceTfs []types.Timeframe
		var gapEnd, forceStart, forceEnd time.Time

		for _, r := range stale[symbol] {
			if r.Force {
				forceTfs = append(forceTfs, r.Timeframe)
				if forceStart.IsZero() || r.LatestRawDate.Before(forceStart) {
					forceStart = r.LatestRawDate
				}
				if r.LatestRawDate.After(forceEnd) {
					forceEnd = r.LatestRawDate
				}
				continue
			}
			gapTfs = append(gapTfs, r.Timeframe)
			if r.LatestRawDate.After(gapEnd) {
				gapEnd = r.LatestRawDate
			}
		}

		var ok bool
		if len(gapTfs) > 0 {
			if e.UpdateSymbol(ctx, symbol, gapTfs, time.Time{}, gapEnd, false) {
				ok = true
			}
		}
		if len(forceTfs) > 0 {
			if e.UpdateSymbol(ctx, symbol, forceTfs, forceStart, forceEnd, true) {
				ok = true
			}
		}
		return ok
	})

	ok, total := executor.CountSuccess(results)
	e.log.Info("stale update complete", "succeeded", ok, "total", total)

	return results, nil
}

// recordFailure logs and accumulates one unit-of-work failure.
func (e *Engine) recordFailure(symbol, msg string) {
	e.log.Error("update failure", "symbol", symbol, "reason", msg)
	e.stats.addError(fmt.Sprintf("%s: %s", symbol, msg))
}
