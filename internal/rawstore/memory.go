package rawstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quantfold/indicache/internal/errors"
	"github.com/quantfold/indicache/internal/types"
)

// Memory is an in-memory Store used by tests and local experiments. It
// supports deterministic failure injection per symbol.
type Memory struct {
	mu   sync.RWMutex
	bars map[string]map[types.Timeframe][]types.Bar
	fail map[string]error
}

// NewMemory creates an empty in-memory raw store.
func NewMemory() *Memory {
	return &Memory{
		bars: make(map[string]map[types.Timeframe][]types.Bar),
		fail: make(map[string]error),
	}
}

// Add appends bars for a symbol and timeframe.
func (m *Memory) Add(symbol string, tf types.Timeframe, bars ...types.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.bars[symbol] == nil {
		m.bars[symbol] = make(map[types.Timeframe][]types.Bar)
	}
	m.bars[symbol][tf] = append(m.bars[symbol][tf], bars...)
	sort.Slice(m.bars[symbol][tf], func(i, j int) bool {
		return m.bars[symbol][tf][i].TimestampMs < m.bars[symbol][tf][j].TimestampMs
	})
}

// FailSymbol makes every call for symbol return err.
func (m *Memory) FailSymbol(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		err = errors.ErrRawStore
	}
	m.fail[symbol] = err
}

// Bars implements Store.
func (m *Memory) Bars(_ context.Context, symbol string, tf types.Timeframe, start, end time.Time) ([]types.Bar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err, ok := m.fail[symbol]; ok {
		return nil, err
	}

	startMs := types.DateOnly(start).UnixMilli()
	endMs := types.DateOnly(end).AddDate(0, 0, 1).UnixMilli()

	var out []types.Bar
	for _, b := range m.bars[symbol][tf] {
		if b.TimestampMs >= startMs && b.TimestampMs < endMs {
			out = append(out, b)
		}
	}
	return out, nil
}

// LatestDate implements Store.
func (m *Memory) LatestDate(_ context.Context, symbol string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err, ok := m.fail[symbol]; ok {
		return time.Time{}, false, err
	}

	var latest int64
	var found bool
	for _, tfBars := range m.bars[symbol] {
		for _, b := range tfBars {
			if b.TimestampMs > latest {
				latest = b.TimestampMs
				found = true
			}
		}
	}
	if !found {
		return time.Time{}, false, nil
	}
	return types.DateOnly(time.UnixMilli(latest).UTC()), true, nil
}

// Symbols implements Store.
func (m *Memory) Symbols(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	symbols := make([]string, 0, len(m.bars))
	for s := range m.bars {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols, nil
}
