// Package config holds the yaml configuration for the indicator cache.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quantfold/indicache/internal/errors"
	"github.com/quantfold/indicache/internal/types"
)

// Config represents the complete cache configuration.
type Config struct {
	// DataDir is the root directory for cache partitions.
	DataDir string `yaml:"data_dir"`

	// Timeframes are the bar granularities the cache maintains.
	Timeframes []string `yaml:"timeframes"`

	// Compression configures Parquet compression.
	Compression CompressionConfig `yaml:"compression"`

	// RowGroupSize is the target number of rows per Parquet row group.
	RowGroupSize int `yaml:"row_group_size"`

	// Raw configures the upstream raw-data store.
	Raw RawConfig `yaml:"raw"`

	// Calculator configures the default indicator calculator.
	Calculator CalculatorConfig `yaml:"calculator"`

	// Update configures the update engine.
	Update UpdateConfig `yaml:"update"`

	// Retention defines per-timeframe partition retention. Zero keeps
	// everything.
	Retention map[string]time.Duration `yaml:"retention"`
}

// CompressionConfig configures Parquet compression.
type CompressionConfig struct {
	// Algorithm is the compression algorithm: snappy, zstd, lz4, none.
	Algorithm string `yaml:"algorithm"`

	// Level is the compression level (for zstd: 1-22).
	Level int `yaml:"level"`
}

// RawConfig configures the upstream raw-data store.
type RawConfig struct {
	// DuckDBPath is the DuckDB database file. Empty means in-memory.
	DuckDBPath string `yaml:"duckdb_path"`

	// Table is the bars table name.
	Table string `yaml:"table"`
}

// CalculatorConfig configures the default calculator.
type CalculatorConfig struct {
	SMAWindows         []int   `yaml:"sma_windows"`
	EMAWindows         []int   `yaml:"ema_windows"`
	RSIPeriod          int     `yaml:"rsi_period"`
	PercentileAccuracy float64 `yaml:"percentile_accuracy"`
}

// UpdateConfig configures the update engine.
type UpdateConfig struct {
	// Workers bounds batch fan-out.
	Workers int `yaml:"workers"`

	// LookbackDays is the backfill window for empty caches.
	LookbackDays int `yaml:"lookback_days"`

	// MaxAge bounds staleness detection; symbols whose raw data ended
	// longer ago are never flagged.
	MaxAge time.Duration `yaml:"max_age"`

	// Interval is the daemon's update-stale cadence.
	Interval time.Duration `yaml:"interval"`

	// MinIntradayRows flags cached intraday days smaller than this for
	// recompute. Advisory heuristic; zero disables it.
	MinIntradayRows int64 `yaml:"min_intraday_rows"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:    "/var/lib/indicache/partitions",
		Timeframes: []string{"1min", "daily"},
		Compression: CompressionConfig{
			Algorithm: "zstd",
			Level:     3,
		},
		RowGroupSize: 10000,
		Raw: RawConfig{
			Table: "bars",
		},
		Calculator: CalculatorConfig{
			SMAWindows:         []int{20},
			EMAWindows:         []int{20},
			RSIPeriod:          14,
			PercentileAccuracy: 0.01,
		},
		Update: UpdateConfig{
			Workers:      4,
			LookbackDays: 730,
			MaxAge:       30 * 24 * time.Hour,
			Interval:     15 * time.Minute,
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.NewValidation("data_dir", "must not be empty")
	}
	if len(c.Timeframes) == 0 {
		return errors.NewValidation("timeframes", "at least one required")
	}
	for _, s := range c.Timeframes {
		if _, err := types.ParseTimeframe(s); err != nil {
			return errors.NewValidation("timeframes", err.Error())
		}
	}
	if c.RowGroupSize < 0 {
		return errors.NewValidation("row_group_size", "must not be negative")
	}
	if c.Update.Workers < 0 {
		return errors.NewValidation("update.workers", "must not be negative")
	}
	if c.Update.LookbackDays < 0 {
		return errors.NewValidation("update.lookback_days", "must not be negative")
	}
	for tf := range c.Retention {
		if _, err := types.ParseTimeframe(tf); err != nil {
			return errors.NewValidation("retention", err.Error())
		}
	}
	return nil
}

// ParsedTimeframes returns the configured timeframes as typed values.
// Validate has already checked them.
func (c *Config) ParsedTimeframes() []types.Timeframe {
	out := make([]types.Timeframe, 0, len(c.Timeframes))
	for _, s := range c.Timeframes {
		tf, err := types.ParseTimeframe(s)
		if err != nil {
			continue
		}
		out = append(out, tf)
	}
	return out
}
