// Package retention handles automatic cleanup of expired cache partitions.
package retention

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/quantfold/indicache/internal/logging"
	"github.com/quantfold/indicache/internal/partition"
	"github.com/quantfold/indicache/internal/types"
)

// Manager deletes partitions older than a per-timeframe retention horizon.
type Manager struct {
	mu        sync.Mutex
	store     *partition.Store
	retention map[types.Timeframe]time.Duration
	stats     Stats
	log       *slog.Logger
}

// Stats holds retention statistics.
type Stats struct {
	LastRunTime  time.Time
	FilesDeleted int64
	FilesSkipped int64
	Errors       int64
}

// CleanupResult holds the result of one cleanup run.
type CleanupResult struct {
	FilesDeleted int
	FilesSkipped int
	Errors       []error
}

// New creates a retention manager. Timeframes absent from the retention map
// are never pruned.
func New(store *partition.Store, retention map[types.Timeframe]time.Duration) *Manager {
	return &Manager{
		store:     store,
		retention: retention,
		log:       logging.Component("retention"),
	}
}

// RunCleanup deletes every partition whose date is past its timeframe's
// retention horizon.
func (m *Manager) RunCleanup() CleanupResult {
	return m.run(false)
}

// DryRun reports what RunCleanup would delete without deleting anything.
func (m *Manager) DryRun() CleanupResult {
	return m.run(true)
}

func (m *Manager) run(dryRun bool) CleanupResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result CleanupResult
	now := time.Now().UTC()

	for tf, keep := range m.retention {
		if keep <= 0 {
			continue
		}
		cutoff := now.Add(-keep)

		for _, symbol := range m.store.AvailableSymbols() {
			for _, date := range m.store.AvailableDates(symbol, tf) {
				if date.After(cutoff) {
					result.FilesSkipped++
					continue
				}

				if !dryRun {
					if err := m.store.Delete(symbol, tf, date); err != nil {
						result.Errors = append(result.Errors, err)
						continue
					}
				}
				result.FilesDeleted++
			}
		}
	}

	if !dryRun {
		m.stats.LastRunTime = now
		m.stats.FilesDeleted += int64(result.FilesDeleted)
		m.stats.FilesSkipped += int64(result.FilesSkipped)
		m.stats.Errors += int64(len(result.Errors))
	}

	m.log.Info("cleanup complete", "deleted", result.FilesDeleted, "skipped", result.FilesSkipped, "errors", len(result.Errors), "dry_run", dryRun)
	return result
}

// Stats returns accumulated statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// PruneEmptyDirs removes directory levels left empty by cleanup. Best
// effort; failures are ignored.
func (m *Manager) PruneEmptyDirs() {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Walk bottom-up: tf dirs, then day, month, year.
	base := m.store.Base()
	for i := 0; i < 4; i++ {
		removeEmptyDirs(base, 4-i)
	}
}

// removeEmptyDirs removes empty directories exactly depth levels below
// base.
func removeEmptyDirs(base string, depth int) {
	if depth == 0 {
		return
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub := base + string(os.PathSeparator) + e.Name()
		if depth == 1 {
			os.Remove(sub) // fails if non-empty, which is fine
			continue
		}
		removeEmptyDirs(sub, depth-1)
	}
}
