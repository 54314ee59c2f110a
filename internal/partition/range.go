package partition

import (
	"os"
	"sort"
	"time"

	"github.com/quantfold/indicache/internal/executor"
	"github.com/quantfold/indicache/internal/schema"
	"github.com/quantfold/indicache/internal/types"
)

// LoadRange reads every partition for the symbol and timeframe whose date
// falls in [start, end] inclusive and returns the concatenated rows sorted
// by timestamp. Missing partitions are silently skipped; if nothing was
// read, the canonical empty result is returned, never nil.
//
// Rows are re-filtered by the partition-date column in case a file carries
// rows outside its nominal date; rows without a date column fall back to
// timestamp bounds covering the full end date.
//
// columns restricts which indicator value columns are kept on each row; the
// core columns are always materialized. Projection is applied after decode
// (the values live in a single map column), so it trims the result, not the
// scan. A nil columns keeps everything.
func (s *Store) LoadRange(symbol string, tf types.Timeframe, start, end time.Time, columns []string) []types.IndicatorRow {
	if end.Before(start) {
		s.log.Warn("empty range", "symbol", symbol, "start", start.Format(types.DateLayout), "end", end.Format(types.DateLayout))
		return schema.Empty()
	}

	var rows []types.IndicatorRow

	for d := types.DateOnly(start); !d.After(types.DateOnly(end)); d = d.AddDate(0, 0, 1) {
		path := s.PathFor(symbol, tf, d)
		if _, err := os.Stat(path); err != nil {
			continue
		}

		part, err := readFile(path)
		if err != nil {
			s.log.Error("read failed, skipping partition", "path", path, "error", err)
			continue
		}
		rows = append(rows, part...)
	}

	if len(rows) == 0 {
		return schema.Empty()
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].TimestampMs < rows[j].TimestampMs
	})

	rows = filterRange(rows, start, end)

	if columns != nil {
		rows = project(rows, columns)
	}

	return rows
}

// filterRange keeps rows whose partition date lies in [start, end]. Rows
// lacking a date column are filtered by timestamp bounds covering all of
// the end date instead.
func filterRange(rows []types.IndicatorRow, start, end time.Time) []types.IndicatorRow {
	startDay := types.DateOnly(start)
	endDay := types.DateOnly(end)
	tsMin := startDay.UnixMilli()
	tsMax := endDay.AddDate(0, 0, 1).UnixMilli()

	out := rows[:0]
	for _, r := range rows {
		if r.Date != "" {
			day := r.Day()
			if day.Before(startDay) || day.After(endDay) {
				continue
			}
		} else if r.TimestampMs < tsMin || r.TimestampMs >= tsMax {
			continue
		}
		out = append(out, r)
	}
	return out
}

// project drops indicator values not named in columns.
func project(rows []types.IndicatorRow, columns []string) []types.IndicatorRow {
	keep := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		keep[c] = struct{}{}
	}

	for i := range rows {
		vals := make(map[string]float64, len(keep))
		for name, v := range rows[i].Values {
			if _, ok := keep[name]; ok {
				vals[name] = v
			}
		}
		rows[i].Values = vals
	}
	return rows
}

// LoadMany fans LoadRange out over symbols under a bounded worker pool. The
// result always contains exactly one entry per requested symbol; a symbol
// whose load fails gets the empty result and never aborts its siblings.
func (s *Store) LoadMany(symbols []string, tf types.Timeframe, start, end time.Time, columns []string, maxWorkers int) map[string][]types.IndicatorRow {
	results := executor.Map(symbols, maxWorkers, func(symbol string) []types.IndicatorRow {
		rows := s.LoadRange(symbol, tf, start, end, columns)
		if rows == nil {
			return schema.Empty()
		}
		return rows
	})

	// A panicking task leaves a nil slice behind; keep the contract.
	for sym, rows := range results {
		if rows == nil {
			results[sym] = schema.Empty()
		}
	}

	s.log.Debug("bulk load complete", "symbols", len(symbols), "timeframe", tf.String())
	return results
}

// StoreMany fans Write out over symbol-keyed row sets under a bounded
// worker pool, returning a per-symbol success map. One symbol's failure is
// isolated to its own entry.
func (s *Store) StoreMany(perSymbol map[string][]types.IndicatorRow, tf types.Timeframe, date time.Time, overwrite bool, maxWorkers int) map[string]bool {
	symbols := make([]string, 0, len(perSymbol))
	for sym := range perSymbol {
		symbols = append(symbols, sym)
	}

	results := executor.Map(symbols, maxWorkers, func(symbol string) bool {
		return s.Write(perSymbol[symbol], symbol, tf, date, overwrite)
	})

	ok, total := executor.CountSuccess(results)
	s.log.Info("bulk store complete", "succeeded", ok, "total", total, "timeframe", tf.String(), "date", date.Format(types.DateLayout))

	return results
}
