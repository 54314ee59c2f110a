package types

import (
	"fmt"
	"time"
)

// Timeframe represents a bar aggregation granularity. It governs both the
// raw bars pulled from the upstream store and the derived indicator
// partitions written to the cache.
type Timeframe int

const (
	// Timeframe1Min is one-minute intraday bars.
	Timeframe1Min Timeframe = iota

	// Timeframe5Min is five-minute intraday bars.
	Timeframe5Min

	// Timeframe15Min is fifteen-minute intraday bars.
	Timeframe15Min

	// Timeframe1Hour is hourly intraday bars.
	Timeframe1Hour

	// TimeframeDaily is one bar per trading day.
	TimeframeDaily
)

// String returns the string representation of the timeframe. This form is
// also the token used in partition directory names and filenames.
func (t Timeframe) String() string {
	switch t {
	case Timeframe1Min:
		return "1min"
	case Timeframe5Min:
		return "5min"
	case Timeframe15Min:
		return "15min"
	case Timeframe1Hour:
		return "1hour"
	case TimeframeDaily:
		return "daily"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// Duration returns the bar duration for this timeframe.
func (t Timeframe) Duration() time.Duration {
	switch t {
	case Timeframe1Min:
		return time.Minute
	case Timeframe5Min:
		return 5 * time.Minute
	case Timeframe15Min:
		return 15 * time.Minute
	case Timeframe1Hour:
		return time.Hour
	case TimeframeDaily:
		return 24 * time.Hour
	default:
		return 0
	}
}

// IsIntraday returns true for sub-daily timeframes.
func (t Timeframe) IsIntraday() bool {
	return t != TimeframeDaily
}

// BarsPerDay returns the maximum number of bars in a 6.5 hour trading day
// for this timeframe. Used only by the intraday completeness heuristic.
func (t Timeframe) BarsPerDay() int {
	switch t {
	case Timeframe1Min:
		return 390
	case Timeframe5Min:
		return 78
	case Timeframe15Min:
		return 26
	case Timeframe1Hour:
		return 7
	case TimeframeDaily:
		return 1
	default:
		return 0
	}
}

// ParseTimeframe parses a string into a Timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	switch s {
	case "1min":
		return Timeframe1Min, nil
	case "5min":
		return Timeframe5Min, nil
	case "15min":
		return Timeframe15Min, nil
	case "1hour":
		return Timeframe1Hour, nil
	case "daily":
		return TimeframeDaily, nil
	default:
		return Timeframe1Min, fmt.Errorf("unknown timeframe: %s", s)
	}
}

// AllTimeframes returns all supported timeframes in ascending granularity.
func AllTimeframes() []Timeframe {
	return []Timeframe{Timeframe1Min, Timeframe5Min, Timeframe15Min, Timeframe1Hour, TimeframeDaily}
}
