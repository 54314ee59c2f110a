// Package executor implements the bounded fan-out/fan-in idiom shared by
// bulk reads, writes, and updates: one task per key, at most maxWorkers
// in flight, and a per-key result map that always contains exactly one
// entry per submitted key. Tasks are responsible for catching their own
// failures; a task's panic or error never affects sibling keys.
package executor

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/quantfold/indicache/internal/logging"
)

var log = logging.Component("executor")

// DefaultWorkers bounds concurrency when the caller passes zero.
const DefaultWorkers = 4

// Map applies fn to every key under a bounded worker pool and returns the
// per-key results. fn must not panic for expected failures; it converts
// them into its result value (false, empty slice, ...). A panicking task is
// recovered, logged, and its key keeps the zero value of V so the result
// map stays complete.
func Map[K comparable, V any](keys []K, maxWorkers int, fn func(K) V) map[K]V {
	if maxWorkers <= 0 {
		maxWorkers = DefaultWorkers
	}

	var mu sync.Mutex
	out := make(map[K]V, len(keys))

	var g errgroup.Group
	g.SetLimit(maxWorkers)

	for _, k := range keys {
		k := k
		g.Go(func() error {
			v := runTask(k, fn)
			mu.Lock()
			out[k] = v
			mu.Unlock()
			return nil
		})
	}

	// Tasks never return errors; Wait only fans in.
	_ = g.Wait()

	return out
}

// runTask invokes fn with panic isolation.
func runTask[K comparable, V any](k K, fn func(K) V) (v V) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panic", "key", k, "panic", r)
		}
	}()
	return fn(k)
}

// CountSuccess tallies a boolean result map for "N of M" reporting.
func CountSuccess[K comparable](results map[K]bool) (succeeded, total int) {
	for _, ok := range results {
		if ok {
			succeeded++
		}
	}
	return succeeded, len(results)
}
