// Package staleness implements cache-invalidation detection: comparing,
// per symbol and timeframe, the latest date the raw store has data for
// against the latest date the cache has a partition for. It inspects only
// directory presence and the raw store's maximum date, never row content,
// so a full scan is cheap relative to recomputation.
package staleness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/quantfold/indicache/internal/logging"
	"github.com/quantfold/indicache/internal/partition"
	"github.com/quantfold/indicache/internal/rawstore"
	"github.com/quantfold/indicache/internal/types"
)

// Record flags one stale (timeframe, latest raw date) pair for a symbol.
// The date is where raw data currently ends; the cache must catch up to it.
//
// Force marks a pair whose latest cached day exists but is implausibly
// small: the day must be recomputed in place rather than gap-filled, since
// gap resolution would start after it.
type Record struct {
	Timeframe     types.Timeframe
	LatestRawDate time.Time
	Force         bool
}

// Detector computes staleness reports. Concurrent scans with the same
// parameters are coalesced through singleflight.
type Detector struct {
	store      *partition.Store
	raw        rawstore.Store
	timeframes []types.Timeframe

	// minIntradayRows is an advisory completeness threshold: a cached
	// intraday day with fewer rows is re-flagged even when its date is
	// current. Zero disables the heuristic.
	minIntradayRows int64

	group singleflight.Group
	log   *slog.Logger
}

// New creates a detector over the given cache store and raw store,
// checking the supplied timeframes.
func New(store *partition.Store, raw rawstore.Store, timeframes []types.Timeframe) *Detector {
	return &Detector{
		store:      store,
		raw:        raw,
		timeframes: timeframes,
		log:        logging.Component("staleness"),
	}
}

// SetMinIntradayRows enables the intraday completeness heuristic.
func (d *Detector) SetMinIntradayRows(n int64) {
	d.minIntradayRows = n
}

// DetectStale scans every symbol the raw store knows and returns a map from
// symbol to its stale (timeframe, latest raw date) pairs. Symbols with
// nothing stale are absent from the map.
//
// A pair is stale when no cached partition exists at all, or the latest
// cached date is behind the latest raw date. maxAge bounds how old raw data
// may be and still be flagged; symbols whose raw data ended more than
// maxAge ago are skipped entirely, so delisted symbols are not recomputed
// forever. maxAge <= 0 disables the bound.
//
// Per-symbol raw-store failures are logged and skipped; only a failure to
// list the symbol universe is returned as an error.
func (d *Detector) DetectStale(ctx context.Context, maxAge time.Duration) (map[string][]Record, error) {
	key := fmt.Sprintf("detect/%d", maxAge)

	v, err, _ := d.group.Do(key, func() (interface{}, error) {
		return d.detect(ctx, maxAge)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string][]Record), nil
}

func (d *Detector) detect(ctx context.Context, maxAge time.Duration) (map[string][]Record, error) {
	symbols, err := d.raw.Symbols(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stale := make(map[string][]Record)

	for _, symbol := range symbols {
		latestRaw, found, err := d.raw.LatestDate(ctx, symbol)
		if err != nil {
			d.log.Warn("latest raw date failed, skipping symbol", "symbol", symbol, "error", err)
			continue
		}
		if !found {
			continue
		}
		if maxAge > 0 && now.Sub(latestRaw) > maxAge {
			d.log.Debug("raw data too old, skipping", "symbol", symbol, "latest_raw", latestRaw.Format(types.DateLayout))
			continue
		}

		records := d.checkSymbol(symbol, latestRaw)
		if len(records) > 0 {
			stale[symbol] = records
		}
	}

	d.log.Info("staleness scan complete", "symbols", len(symbols), "stale", len(stale))
	return stale, nil
}

// checkSymbol evaluates every timeframe for one symbol.
func (d *Detector) checkSymbol(symbol string, latestRaw time.Time) []Record {
	var records []Record

	for _, tf := range d.timeframes {
		cached, found := d.store.LatestDate(symbol, tf)

		switch {
		case !found:
			records = append(records, Record{Timeframe: tf, LatestRawDate: latestRaw})
		case cached.Before(latestRaw):
			records = append(records, Record{Timeframe: tf, LatestRawDate: latestRaw})
		case tf.IsIntraday() && d.minIntradayRows > 0 && d.store.RowCount(symbol, tf, cached) < d.minIntradayRows:
			// Current but implausibly small; the day needs a forced
			// recompute, not a gap fill.
			records = append(records, Record{Timeframe: tf, LatestRawDate: latestRaw, Force: true})
		}
	}

	return records
}
