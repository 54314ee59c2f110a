// Package calc defines the calculation-function contract consumed by the
// update engine and provides a reference calculator covering common
// indicators. The engine accepts any Func; the default exists so the cache
// is usable out of the box and so tests have deterministic content.
package calc

import (
	"fmt"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/quantfold/indicache/internal/errors"
	"github.com/quantfold/indicache/internal/types"
)

// Func computes the indicator rows for one calendar day of bars. It must be
// pure: no side effects, and an empty result is a valid outcome. The
// returned rows carry the symbol and bar timestamps; the store fills in the
// partition-date and computed-at columns.
type Func func(dayBars []types.Bar, symbol string, tf types.Timeframe) ([]types.IndicatorRow, error)

// Config tunes the default calculator.
type Config struct {
	// SMAWindows are the simple moving average window sizes.
	SMAWindows []int

	// EMAWindows are the exponential moving average window sizes.
	EMAWindows []int

	// RSIPeriod is the relative strength index lookback. Zero disables RSI.
	RSIPeriod int

	// PercentileAccuracy is the DDSketch relative accuracy for the rolling
	// close-price percentile columns. Zero disables them.
	PercentileAccuracy float64
}

// DefaultConfig returns the default calculator configuration.
func DefaultConfig() Config {
	return Config{
		SMAWindows:         []int{20},
		EMAWindows:         []int{20},
		RSIPeriod:          14,
		PercentileAccuracy: 0.01,
	}
}

// ColumnNames returns the indicator column names this configuration
// produces, for wiring into the partition schema.
func (c Config) ColumnNames() []string {
	var names []string
	for _, w := range c.SMAWindows {
		names = append(names, fmt.Sprintf("sma_%d", w))
	}
	for _, w := range c.EMAWindows {
		names = append(names, fmt.Sprintf("ema_%d", w))
	}
	if c.RSIPeriod > 0 {
		names = append(names, fmt.Sprintf("rsi_%d", c.RSIPeriod))
	}
	if c.PercentileAccuracy > 0 {
		names = append(names, "close_p50", "close_p95")
	}
	return names
}

// New returns the default calculation function for the configuration.
//
// Windows reset at day boundaries: each invocation sees one day of bars and
// computes from scratch, which keeps the function pure and the cache
// day-partitionable. Values that need more bars than the day has seen so
// far are omitted from the row (the schema fills the null placeholder).
func New(cfg Config) Func {
	return func(dayBars []types.Bar, symbol string, tf types.Timeframe) ([]types.IndicatorRow, error) {
		if len(dayBars) == 0 {
			return nil, nil
		}

		closes := make([]float64, len(dayBars))
		for i, b := range dayBars {
			closes[i] = b.Close
		}

		var sketch *ddsketch.DDSketch
		if cfg.PercentileAccuracy > 0 {
			var err error
			sketch, err = ddsketch.NewDefaultDDSketch(cfg.PercentileAccuracy)
			if err != nil {
				return nil, errors.NewUpstream("calc", err)
			}
		}

		rows := make([]types.IndicatorRow, 0, len(dayBars))

		for i, b := range dayBars {
			vals := make(map[string]float64)

			for _, w := range cfg.SMAWindows {
				if v, ok := sma(closes[:i+1], w); ok {
					vals[fmt.Sprintf("sma_%d", w)] = v
				}
			}
			for _, w := range cfg.EMAWindows {
				if v, ok := ema(closes[:i+1], w); ok {
					vals[fmt.Sprintf("ema_%d", w)] = v
				}
			}
			if cfg.RSIPeriod > 0 {
				if v, ok := rsi(closes[:i+1], cfg.RSIPeriod); ok {
					vals[fmt.Sprintf("rsi_%d", cfg.RSIPeriod)] = v
				}
			}

			if sketch != nil {
				if err := sketch.Add(b.Close); err == nil {
					if p50, err := sketch.GetValueAtQuantile(0.50); err == nil {
						vals["close_p50"] = p50
					}
					if p95, err := sketch.GetValueAtQuantile(0.95); err == nil {
						vals["close_p95"] = p95
					}
				}
			}

			rows = append(rows, types.IndicatorRow{
				Symbol:      symbol,
				TimestampMs: b.TimestampMs,
				Values:      vals,
			})
		}

		return rows, nil
	}
}

// sma returns the simple moving average of the trailing window, or false if
// fewer than window values are available.
func sma(closes []float64, window int) (float64, bool) {
	if window <= 0 || len(closes) < window {
		return 0, false
	}
	var sum float64
	for _, v := range closes[len(closes)-window:] {
		sum += v
	}
	return sum / float64(window), true
}

// ema returns the exponential moving average seeded with the first close.
func ema(closes []float64, window int) (float64, bool) {
	if window <= 0 || len(closes) < window {
		return 0, false
	}
	k := 2.0 / (float64(window) + 1.0)
	v := closes[0]
	for _, c := range closes[1:] {
		v = c*k + v*(1-k)
	}
	return v, true
}

// rsi returns Wilder's relative strength index over the trailing period.
func rsi(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}

	var gains, losses float64
	start := len(closes) - period
	for i := start; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	if losses == 0 {
		return 100, true
	}

	rs := (gains / float64(period)) / (losses / float64(period))
	return 100 - 100/(1+rs), true
}
