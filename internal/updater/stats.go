package updater

import "sync"

// Stats accumulates counters across one batch run. Worker goroutines for
// many symbols mutate it concurrently, so every increment happens under the
// mutex. Callers read a snapshot and reset between runs.
type Stats struct {
	mu sync.Mutex

	symbolsProcessed int
	symbolsUpdated   int
	symbolsFailed    int
	rowsWritten      int64
	errors           []string
}

// NewStats creates an empty stats accumulator.
func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) addProcessed() {
	s.mu.Lock()
	s.symbolsProcessed++
	s.mu.Unlock()
}

func (s *Stats) addUpdated() {
	s.mu.Lock()
	s.symbolsUpdated++
	s.mu.Unlock()
}

func (s *Stats) addFailed() {
	s.mu.Lock()
	s.symbolsFailed++
	s.mu.Unlock()
}

func (s *Stats) addRows(n int64) {
	s.mu.Lock()
	s.rowsWritten += n
	s.mu.Unlock()
}

func (s *Stats) addError(msg string) {
	s.mu.Lock()
	s.errors = append(s.errors, msg)
	s.mu.Unlock()
}

// Reset clears all counters and the error list.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.symbolsProcessed = 0
	s.symbolsUpdated = 0
	s.symbolsFailed = 0
	s.rowsWritten = 0
	s.errors = nil
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	SymbolsProcessed int
	SymbolsUpdated   int
	SymbolsFailed    int
	RowsWritten      int64
	Errors           []string
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	errs := make([]string, len(s.errors))
	copy(errs, s.errors)

	return Snapshot{
		SymbolsProcessed: s.symbolsProcessed,
		SymbolsUpdated:   s.symbolsUpdated,
		SymbolsFailed:    s.symbolsFailed,
		RowsWritten:      s.rowsWritten,
		Errors:           errs,
	}
}
