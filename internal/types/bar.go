package types

import "time"

// Bar is one raw OHLCV price bar as served by the upstream raw-data store.
type Bar struct {
	Symbol      string
	TimestampMs int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      int64
}

// DateOnly truncates t to its calendar date at midnight UTC.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Time returns the bar timestamp as UTC time.
func (b Bar) Time() time.Time {
	return time.UnixMilli(b.TimestampMs).UTC()
}

// Day returns the bar's calendar date truncated to midnight UTC.
func (b Bar) Day() time.Time {
	return DateOnly(b.Time())
}

// GroupBarsByDay partitions bars into per-calendar-day groups, preserving
// the input order within each day.
func GroupBarsByDay(bars []Bar) map[time.Time][]Bar {
	groups := make(map[time.Time][]Bar)
	for _, b := range bars {
		day := b.Day()
		groups[day] = append(groups[day], b)
	}
	return groups
}
