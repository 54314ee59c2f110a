package partition

import "sync"

// pathLock serializes writers per partition path. Distinct
// (symbol, timeframe, date) triples map to distinct paths and may write in
// parallel; two writers for the same path never overlap.
type pathLock struct {
	mu    sync.Mutex
	locks map[string]*pathEntry
}

type pathEntry struct {
	mu   sync.Mutex
	refs int
}

func newPathLock() *pathLock {
	return &pathLock{locks: make(map[string]*pathEntry)}
}

// Lock acquires the lock for path and returns the release function. Entries
// are reference counted so the map does not grow with every path ever
// written.
func (p *pathLock) Lock(path string) func() {
	p.mu.Lock()
	e, ok := p.locks[path]
	if !ok {
		e = &pathEntry{}
		p.locks[path] = e
	}
	e.refs++
	p.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		p.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(p.locks, path)
		}
		p.mu.Unlock()
	}
}
