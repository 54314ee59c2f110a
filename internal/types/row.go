package types

import "time"

// DateLayout is the canonical form of the partition-date column and of the
// date segment in partition filenames.
const DateLayout = "2006-01-02"

// IndicatorRow is one row of a cache partition in Parquet layout. Symbol and
// Date are low-cardinality within a partition (constant, in fact) and are
// dictionary encoded. Indicator values are an open-ended set of named
// columns carried as a map so new indicators need no schema migration.
type IndicatorRow struct {
	Symbol       string             `parquet:"symbol,dict,zstd"`
	TimestampMs  int64              `parquet:"timestamp_ms"`
	ComputedAtMs int64              `parquet:"computed_at_ms"`
	Date         string             `parquet:"date,dict,zstd"`
	Values       map[string]float64 `parquet:"values"`
}

// Time returns the row timestamp as UTC time.
func (r IndicatorRow) Time() time.Time {
	return time.UnixMilli(r.TimestampMs).UTC()
}

// Day parses the partition-date column. The zero time is returned for a
// missing or malformed date.
func (r IndicatorRow) Day() time.Time {
	d, err := time.Parse(DateLayout, r.Date)
	if err != nil {
		return time.Time{}
	}
	return d
}

// Value returns the named indicator value, or false if the row does not
// carry it.
func (r IndicatorRow) Value(name string) (float64, bool) {
	v, ok := r.Values[name]
	return v, ok
}
