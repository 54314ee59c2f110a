// Package rawstore defines the contract to the authoritative raw price-bar
// store and provides a DuckDB-backed implementation plus an in-memory
// double for tests.
package rawstore

import (
	"context"
	"time"

	"github.com/quantfold/indicache/internal/types"
)

// Store is the consumed contract of the external raw-data store. The cache
// only ever asks three questions of it: the bars for a range, the latest
// date a symbol has data for, and the symbol universe.
type Store interface {
	// Bars returns raw bars for [start, end] inclusive, ordered by
	// timestamp ascending.
	Bars(ctx context.Context, symbol string, tf types.Timeframe, start, end time.Time) ([]types.Bar, error)

	// LatestDate returns the most recent calendar date for which the
	// symbol has raw data. found is false when the symbol has none.
	LatestDate(ctx context.Context, symbol string) (latest time.Time, found bool, err error)

	// Symbols returns every symbol known to the store.
	Symbols(ctx context.Context) ([]string, error)
}
