// indicached maintains the derived indicator cache: it periodically scans
// for stale (symbol, timeframe) pairs against the raw bar store and
// recomputes only the missing days.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantfold/indicache/internal/calc"
	"github.com/quantfold/indicache/internal/config"
	"github.com/quantfold/indicache/internal/logging"
	"github.com/quantfold/indicache/internal/partition"
	"github.com/quantfold/indicache/internal/rawstore"
	"github.com/quantfold/indicache/internal/retention"
	"github.com/quantfold/indicache/internal/schema"
	"github.com/quantfold/indicache/internal/staleness"
	"github.com/quantfold/indicache/internal/types"
	"github.com/quantfold/indicache/internal/updater"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "config.yaml", "config file path")
	dataDir := flag.String("data-dir", "", "partition base directory (overrides config)")
	duckdbPath := flag.String("duckdb", "", "raw bar DuckDB path (overrides config)")
	once := flag.Bool("once", false, "run one update-stale pass and exit")
	jsonLog := flag.Bool("json", false, "JSON log output")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logging.Init(level, *jsonLog)
	log.SetFlags(log.Ldate | log.Ltime)
	logging.Info("indicached starting", "version", Version)

	// Load config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Warn("no config file found, using defaults", "path", *cfgPath)
			cfg = config.DefaultConfig()
		} else {
			log.Fatalf("Load config: %v", err)
		}
	}

	// CLI overrides
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *duckdbPath != "" {
		cfg.Raw.DuckDBPath = *duckdbPath
	}

	// =========================================================================
	// Wire components
	// =========================================================================

	calcCfg := calc.Config{
		SMAWindows:         cfg.Calculator.SMAWindows,
		EMAWindows:         cfg.Calculator.EMAWindows,
		RSIPeriod:          cfg.Calculator.RSIPeriod,
		PercentileAccuracy: cfg.Calculator.PercentileAccuracy,
	}

	sch := schema.New(calcCfg.ColumnNames())

	opts := partition.DefaultOptions()
	opts.Compression = partition.ParseCompressionType(cfg.Compression.Algorithm)
	opts.CompressionLevel = cfg.Compression.Level
	if cfg.RowGroupSize > 0 {
		opts.RowGroupSize = cfg.RowGroupSize
	}

	store, err := partition.NewStore(cfg.DataDir, sch, opts)
	if err != nil {
		log.Fatalf("Create partition store: %v", err)
	}

	raw, err := rawstore.OpenDuckDB(cfg.Raw.DuckDBPath, cfg.Raw.Table)
	if err != nil {
		log.Fatalf("Open raw store: %v", err)
	}
	defer raw.Close()

	timeframes := cfg.ParsedTimeframes()

	detector := staleness.New(store, raw, timeframes)
	if cfg.Update.MinIntradayRows > 0 {
		detector.SetMinIntradayRows(cfg.Update.MinIntradayRows)
	}

	engine := updater.New(store, raw, calc.New(calcCfg), detector, updater.Config{
		LookbackDays: cfg.Update.LookbackDays,
		Workers:      cfg.Update.Workers,
	})

	var pruner *retention.Manager
	if len(cfg.Retention) > 0 {
		keep := make(map[types.Timeframe]time.Duration, len(cfg.Retention))
		for s, d := range cfg.Retention {
			tf, err := types.ParseTimeframe(s)
			if err != nil {
				continue
			}
			keep[tf] = d
		}
		pruner = retention.New(store, keep)
	}

	// =========================================================================
	// Run
	// =========================================================================

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logging.Info("shutting down")
		cancel()
	}()

	runPass := func() {
		engine.Stats().Reset()
		results, err := engine.UpdateStale(ctx, cfg.Update.MaxAge, cfg.Update.Workers)
		if err != nil {
			logging.Error("staleness scan failed", "error", err)
			return
		}

		snap := engine.Stats().Snapshot()
		logging.Info("pass complete",
			"stale_symbols", len(results),
			"processed", snap.SymbolsProcessed,
			"updated", snap.SymbolsUpdated,
			"failed", snap.SymbolsFailed,
			"rows", snap.RowsWritten)
		for _, msg := range snap.Errors {
			logging.Warn("update error", "detail", msg)
		}

		if pruner != nil {
			pruner.RunCleanup()
			pruner.PruneEmptyDirs()
		}
	}

	runPass()
	if *once {
		return
	}

	interval := cfg.Update.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runPass()
		}
	}
}
