package executor

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestMap_Completeness(t *testing.T) {
	keys := []string{"a", "b", "c", "d", "e"}
	results := Map(keys, 2, func(k string) string {
		return k + k
	})

	if len(results) != len(keys) {
		t.Fatalf("got %d results, want %d", len(results), len(keys))
	}
	for _, k := range keys {
		if results[k] != k+k {
			t.Errorf("results[%q] = %q", k, results[k])
		}
	}
}

func TestMap_BoundedConcurrency(t *testing.T) {
	const workers = 3

	var current, peak int64
	keys := make([]int, 20)
	for i := range keys {
		keys[i] = i
	}

	Map(keys, workers, func(int) bool {
		n := atomic.AddInt64(&current, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&current, -1)
		return true
	})

	if p := atomic.LoadInt64(&peak); p > workers {
		t.Errorf("observed %d concurrent tasks, limit is %d", p, workers)
	}
}

func TestMap_PanicIsolation(t *testing.T) {
	keys := []string{"ok1", "boom", "ok2"}
	results := Map(keys, 2, func(k string) bool {
		if k == "boom" {
			panic("task failure")
		}
		return true
	})

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if !results["ok1"] || !results["ok2"] {
		t.Error("healthy tasks should succeed despite a sibling panic")
	}
	if results["boom"] {
		t.Error("panicking task should yield the zero value")
	}
}

func TestMap_Empty(t *testing.T) {
	results := Map([]string{}, 4, func(string) int { return 1 })
	if len(results) != 0 {
		t.Errorf("got %d results for empty input", len(results))
	}
}

func TestMap_ZeroWorkers(t *testing.T) {
	// Non-positive limits fall back to the default pool size.
	results := Map([]int{1, 2, 3}, 0, func(k int) int { return k * 2 })
	if len(results) != 3 || results[2] != 4 {
		t.Errorf("results = %v", results)
	}
}

func TestCountSuccess(t *testing.T) {
	ok, total := CountSuccess(map[string]bool{"a": true, "b": false, "c": true})
	if ok != 2 || total != 3 {
		t.Errorf("CountSuccess = %d/%d, want 2/3", ok, total)
	}
}
