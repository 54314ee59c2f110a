// Package schema defines the partition schema for the indicator cache: the
// canonical column set, the mapping from (symbol, timeframe, date) to a
// partition path, and the filename grammar used to recover the key from a
// directory listing.
package schema

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/quantfold/indicache/internal/errors"
	"github.com/quantfold/indicache/internal/types"
)

// Ext is the partition file extension.
const Ext = ".parquet"

// filenameToken separates the symbol from the timeframe/date suffix in a
// partition filename. The symbol is everything before the first occurrence
// of this token.
const filenameToken = "_indicators_"

// Core column names present in every partition regardless of configured
// indicators.
const (
	ColSymbol     = "symbol"
	ColTimestamp  = "timestamp_ms"
	ColComputedAt = "computed_at_ms"
	ColDate       = "date"
)

// Schema is the canonical partition layout: the fixed core columns plus a
// configured set of indicator value columns.
type Schema struct {
	indicators []string
}

// New creates a schema with the given indicator column names. The names are
// stored in sorted order so ColumnNames is deterministic.
func New(indicators []string) *Schema {
	cols := make([]string, len(indicators))
	copy(cols, indicators)
	sort.Strings(cols)
	return &Schema{indicators: cols}
}

// ColumnNames returns the canonical column order: core columns first, then
// indicator columns sorted by name.
func (s *Schema) ColumnNames() []string {
	names := []string{ColSymbol, ColTimestamp, ColComputedAt, ColDate}
	return append(names, s.indicators...)
}

// IndicatorNames returns the configured indicator column names.
func (s *Schema) IndicatorNames() []string {
	out := make([]string, len(s.indicators))
	copy(out, s.indicators)
	return out
}

// Empty returns the canonical empty result shape: a non-nil, zero-length
// row slice. Readers return this instead of nil when nothing matched.
func Empty() []types.IndicatorRow {
	return []types.IndicatorRow{}
}

// Filename returns the partition filename for a key:
// <symbol>_indicators_<timeframe>_<YYYY-MM-DD>.parquet
func Filename(symbol string, tf types.Timeframe, date time.Time) string {
	return fmt.Sprintf("%s%s%s_%s%s", symbol, filenameToken, tf.String(), date.Format(types.DateLayout), Ext)
}

// PathFor derives the full partition path under base:
// <base>/<year>/<month>/<day>/<timeframe>/<filename>
// The directory levels double as a coarse index, so available symbols and
// dates are recoverable from directory enumeration without opening files.
func (s *Schema) PathFor(base, symbol string, tf types.Timeframe, date time.Time) string {
	return filepath.Join(
		base,
		fmt.Sprintf("%04d", date.Year()),
		fmt.Sprintf("%02d", int(date.Month())),
		fmt.Sprintf("%02d", date.Day()),
		tf.String(),
		Filename(symbol, tf, date),
	)
}

// ParseFilename recovers (symbol, timeframe, date) from a partition
// filename.
//
// Grammar:
//
//	filename  = symbol "_indicators_" timeframe "_" date ".parquet"
//	symbol    = any run of characters not containing "_indicators_"
//	timeframe = "1min" | "5min" | "15min" | "1hour" | "daily"
//	date      = YYYY "-" MM "-" DD
//
// The date is the final "_"-delimited segment after the token; the symbol is
// everything before the token, so symbols themselves may contain
// underscores. Unparsable names yield ErrMalformedFilename and callers skip
// them.
func ParseFilename(name string) (string, types.Timeframe, time.Time, error) {
	base := strings.TrimSuffix(name, Ext)
	if base == name {
		return "", 0, time.Time{}, errors.Wrapf(errors.ErrMalformedFilename, "missing %s extension in %q", Ext, name)
	}

	symbol, rest, found := strings.Cut(base, filenameToken)
	if !found || symbol == "" {
		return "", 0, time.Time{}, errors.Wrapf(errors.ErrMalformedFilename, "missing indicators token in %q", name)
	}

	sep := strings.LastIndex(rest, "_")
	if sep < 0 {
		return "", 0, time.Time{}, errors.Wrapf(errors.ErrMalformedFilename, "missing date segment in %q", name)
	}

	tf, err := types.ParseTimeframe(rest[:sep])
	if err != nil {
		return "", 0, time.Time{}, errors.Wrapf(errors.ErrMalformedFilename, "bad timeframe in %q: %v", name, err)
	}

	date, err := time.Parse(types.DateLayout, rest[sep+1:])
	if err != nil {
		return "", 0, time.Time{}, errors.Wrapf(errors.ErrMalformedFilename, "bad date in %q: %v", name, err)
	}

	return symbol, tf, date, nil
}

// Validate checks a row set against the schema and its partition key. A
// failing row set must never be written.
func (s *Schema) Validate(rows []types.IndicatorRow, symbol string, date time.Time) error {
	day := date.Format(types.DateLayout)

	for i, r := range rows {
		if r.Symbol == "" {
			return errors.Wrapf(errors.ErrMissingColumn, "row %d: empty %s", i, ColSymbol)
		}
		if r.Symbol != symbol {
			return errors.Wrapf(errors.ErrSymbolMismatch, "row %d: %q != %q", i, r.Symbol, symbol)
		}
		if r.TimestampMs == 0 {
			return errors.Wrapf(errors.ErrMissingColumn, "row %d: empty %s", i, ColTimestamp)
		}
		if r.Date != "" && r.Date != day {
			return errors.Wrapf(errors.ErrDateMismatch, "row %d: %q != %q", i, r.Date, day)
		}
	}

	return nil
}

// Normalize fills in schema columns the calculation function may omit: the
// partition-date column, the computed-at stamp, and null placeholders (NaN)
// for configured indicator columns absent from a row. The input rows and
// their value maps are left untouched; a normalized copy is returned, so
// callers handing the same row set to several writers never observe it
// mutated.
func (s *Schema) Normalize(rows []types.IndicatorRow, date time.Time, computedAt time.Time) []types.IndicatorRow {
	day := date.Format(types.DateLayout)
	stamp := computedAt.UnixMilli()

	out := make([]types.IndicatorRow, len(rows))
	copy(out, rows)

	for i := range out {
		if out[i].Date == "" {
			out[i].Date = day
		}
		if out[i].ComputedAtMs == 0 {
			out[i].ComputedAtMs = stamp
		}

		vals := make(map[string]float64, len(out[i].Values)+len(s.indicators))
		for k, v := range out[i].Values {
			vals[k] = v
		}
		for _, col := range s.indicators {
			if _, ok := vals[col]; !ok {
				vals[col] = math.NaN()
			}
		}
		out[i].Values = vals
	}

	return out
}
