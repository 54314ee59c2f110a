package staleness

import (
	"context"
	"testing"
	"time"

	"github.com/quantfold/indicache/internal/errors"
	"github.com/quantfold/indicache/internal/partition"
	"github.com/quantfold/indicache/internal/rawstore"
	"github.com/quantfold/indicache/internal/schema"
	"github.com/quantfold/indicache/internal/types"
)

func newTestStore(t *testing.T) *partition.Store {
	t.Helper()
	s, err := partition.NewStore(t.TempDir(), schema.New([]string{"sma_20"}), partition.DefaultOptions())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func addDay(raw *rawstore.Memory, symbol string, tf types.Timeframe, date time.Time, n int) {
	bars := make([]types.Bar, n)
	for i := range bars {
		bars[i] = types.Bar{
			Symbol:      symbol,
			TimestampMs: date.Add(time.Duration(14*60+30+5*i) * time.Minute).UnixMilli(),
			Close:       100,
			Volume:      100,
		}
	}
	raw.Add(symbol, tf, bars...)
}

func writeCached(t *testing.T, store *partition.Store, symbol string, tf types.Timeframe, date time.Time, n int) {
	t.Helper()
	rows := make([]types.IndicatorRow, n)
	for i := range rows {
		rows[i] = types.IndicatorRow{
			Symbol:      symbol,
			TimestampMs: date.Add(time.Duration(14*60+30+5*i) * time.Minute).UnixMilli(),
			Values:      map[string]float64{"sma_20": 100},
		}
	}
	if !store.Write(rows, symbol, tf, date, true) {
		t.Fatalf("write cached partition for %s", symbol)
	}
}

func TestDetectStale_NoCache(t *testing.T) {
	store := newTestStore(t)
	raw := rawstore.NewMemory()
	day := time.Now().UTC().Truncate(24 * time.Hour)
	addDay(raw, "AAPL", types.Timeframe5Min, day, 10)

	d := New(store, raw, []types.Timeframe{types.Timeframe5Min})
	stale, err := d.DetectStale(context.Background(), 0)
	if err != nil {
		t.Fatalf("DetectStale: %v", err)
	}

	records := stale["AAPL"]
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Timeframe != types.Timeframe5Min {
		t.Errorf("timeframe = %v", records[0].Timeframe)
	}
	if !records[0].LatestRawDate.Equal(day) {
		t.Errorf("latest raw = %v, want %v", records[0].LatestRawDate, day)
	}
	if records[0].Force {
		t.Error("a plain gap must not demand a forced recompute")
	}
}

func TestDetectStale_UpToDate(t *testing.T) {
	store := newTestStore(t)
	raw := rawstore.NewMemory()
	day := time.Now().UTC().Truncate(24 * time.Hour)

	addDay(raw, "AAPL", types.Timeframe5Min, day, 10)
	writeCached(t, store, "AAPL", types.Timeframe5Min, day, 10)

	d := New(store, raw, []types.Timeframe{types.Timeframe5Min})
	stale, err := d.DetectStale(context.Background(), 0)
	if err != nil {
		t.Fatalf("DetectStale: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("stale = %v, want empty", stale)
	}
}

func TestDetectStale_CacheBehind(t *testing.T) {
	store := newTestStore(t)
	raw := rawstore.NewMemory()
	day := time.Now().UTC().Truncate(24 * time.Hour)
	older := day.AddDate(0, 0, -2)

	addDay(raw, "AAPL", types.Timeframe5Min, day, 10)
	writeCached(t, store, "AAPL", types.Timeframe5Min, older, 10)

	d := New(store, raw, []types.Timeframe{types.Timeframe5Min})
	stale, err := d.DetectStale(context.Background(), 0)
	if err != nil {
		t.Fatalf("DetectStale: %v", err)
	}
	if len(stale["AAPL"]) != 1 {
		t.Fatalf("stale = %v, want AAPL flagged", stale)
	}
}

func TestDetectStale_PerTimeframe(t *testing.T) {
	store := newTestStore(t)
	raw := rawstore.NewMemory()
	day := time.Now().UTC().Truncate(24 * time.Hour)

	addDay(raw, "AAPL", types.Timeframe5Min, day, 10)
	addDay(raw, "AAPL", types.TimeframeDaily, day, 1)
	// Only the daily cache is current.
	writeCached(t, store, "AAPL", types.TimeframeDaily, day, 1)

	d := New(store, raw, []types.Timeframe{types.Timeframe5Min, types.TimeframeDaily})
	stale, err := d.DetectStale(context.Background(), 0)
	if err != nil {
		t.Fatalf("DetectStale: %v", err)
	}

	records := stale["AAPL"]
	if len(records) != 1 || records[0].Timeframe != types.Timeframe5Min {
		t.Errorf("records = %v, want only 5min flagged", records)
	}
}

func TestDetectStale_MaxAge(t *testing.T) {
	store := newTestStore(t)
	raw := rawstore.NewMemory()
	delistedDay := time.Now().UTC().AddDate(0, 0, -30).Truncate(24 * time.Hour)
	addDay(raw, "OLDCO", types.Timeframe5Min, delistedDay, 10)

	d := New(store, raw, []types.Timeframe{types.Timeframe5Min})

	// Without the bound the symbol is flagged.
	stale, err := d.DetectStale(context.Background(), 0)
	if err != nil {
		t.Fatalf("DetectStale: %v", err)
	}
	if len(stale["OLDCO"]) != 1 {
		t.Fatalf("stale = %v, want OLDCO flagged without maxAge", stale)
	}

	// With a 7-day bound the delisted symbol drops out.
	stale, err = d.DetectStale(context.Background(), 7*24*time.Hour)
	if err != nil {
		t.Fatalf("DetectStale: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("stale = %v, want empty under maxAge", stale)
	}
}

func TestDetectStale_MinIntradayRows(t *testing.T) {
	store := newTestStore(t)
	raw := rawstore.NewMemory()
	day := time.Now().UTC().Truncate(24 * time.Hour)

	addDay(raw, "AAPL", types.Timeframe5Min, day, 10)
	// Cached and date-current, but implausibly small.
	writeCached(t, store, "AAPL", types.Timeframe5Min, day, 2)

	d := New(store, raw, []types.Timeframe{types.Timeframe5Min})
	stale, err := d.DetectStale(context.Background(), 0)
	if err != nil {
		t.Fatalf("DetectStale: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("stale = %v, heuristic disabled should accept the day", stale)
	}

	d.SetMinIntradayRows(5)
	stale, err = d.DetectStale(context.Background(), 0)
	if err != nil {
		t.Fatalf("DetectStale: %v", err)
	}
	records := stale["AAPL"]
	if len(records) != 1 {
		t.Fatalf("stale = %v, want short day re-flagged", stale)
	}
	if !records[0].Force {
		t.Error("a short cached day must be flagged for forced recompute")
	}
}

func TestDetectStale_SymbolFailureIsSkipped(t *testing.T) {
	store := newTestStore(t)
	raw := rawstore.NewMemory()
	day := time.Now().UTC().Truncate(24 * time.Hour)

	addDay(raw, "AAPL", types.Timeframe5Min, day, 10)
	addDay(raw, "FLAKY", types.Timeframe5Min, day, 10)
	raw.FailSymbol("FLAKY", errors.ErrRawStore)

	d := New(store, raw, []types.Timeframe{types.Timeframe5Min})
	stale, err := d.DetectStale(context.Background(), 0)
	if err != nil {
		t.Fatalf("DetectStale: %v", err)
	}
	if len(stale["AAPL"]) != 1 {
		t.Errorf("healthy symbol should still be flagged: %v", stale)
	}
	if _, ok := stale["FLAKY"]; ok {
		t.Error("failing symbol should be skipped, not flagged")
	}
}
