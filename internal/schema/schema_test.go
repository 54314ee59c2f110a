package schema

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/quantfold/indicache/internal/errors"
	"github.com/quantfold/indicache/internal/types"
)

var testDate = time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

func TestPathFor(t *testing.T) {
	s := New([]string{"sma_20"})
	got := s.PathFor("/data", "AAPL", types.Timeframe5Min, testDate)
	want := filepath.Join("/data", "2025", "01", "15", "5min", "AAPL_indicators_5min_2025-01-15.parquet")
	if got != want {
		t.Errorf("PathFor = %q, want %q", got, want)
	}
}

func TestParseFilename_RoundTrip(t *testing.T) {
	symbols := []string{"AAPL", "BRK_B", "A_B_C"}
	for _, sym := range symbols {
		for _, tf := range types.AllTimeframes() {
			name := Filename(sym, tf, testDate)
			gotSym, gotTf, gotDate, err := ParseFilename(name)
			if err != nil {
				t.Fatalf("ParseFilename(%q): %v", name, err)
			}
			if gotSym != sym || gotTf != tf || !gotDate.Equal(testDate) {
				t.Errorf("ParseFilename(%q) = %q, %v, %v", name, gotSym, gotTf, gotDate)
			}
		}
	}
}

func TestParseFilename_Malformed(t *testing.T) {
	tests := []struct {
		name string
		file string
	}{
		{"missing extension", "AAPL_indicators_5min_2025-01-15"},
		{"missing token", "AAPL_5min_2025-01-15.parquet"},
		{"empty symbol", "_indicators_5min_2025-01-15.parquet"},
		{"missing date", "AAPL_indicators_5min.parquet"},
		{"bad timeframe", "AAPL_indicators_2min_2025-01-15.parquet"},
		{"bad date", "AAPL_indicators_5min_20250115.parquet"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := ParseFilename(tt.file)
			if err == nil {
				t.Fatalf("ParseFilename(%q) should fail", tt.file)
			}
			if !errors.Is(err, errors.ErrMalformedFilename) {
				t.Errorf("ParseFilename(%q) error = %v, want ErrMalformedFilename", tt.file, err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	s := New([]string{"sma_20"})
	ts := testDate.Add(15 * time.Hour).UnixMilli()

	tests := []struct {
		name    string
		rows    []types.IndicatorRow
		symbol  string
		wantErr error
	}{
		{
			"valid",
			[]types.IndicatorRow{{Symbol: "AAPL", TimestampMs: ts}},
			"AAPL",
			nil,
		},
		{
			"empty symbol column",
			[]types.IndicatorRow{{TimestampMs: ts}},
			"AAPL",
			errors.ErrMissingColumn,
		},
		{
			"symbol mismatch",
			[]types.IndicatorRow{{Symbol: "MSFT", TimestampMs: ts}},
			"AAPL",
			errors.ErrSymbolMismatch,
		},
		{
			"zero timestamp",
			[]types.IndicatorRow{{Symbol: "AAPL"}},
			"AAPL",
			errors.ErrMissingColumn,
		},
		{
			"date mismatch",
			[]types.IndicatorRow{{Symbol: "AAPL", TimestampMs: ts, Date: "2025-01-16"}},
			"AAPL",
			errors.ErrDateMismatch,
		},
		{
			"empty set",
			nil,
			"AAPL",
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(tt.rows, tt.symbol, testDate)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	s := New([]string{"sma_20", "rsi_14"})
	computedAt := time.Date(2025, 1, 15, 22, 0, 0, 0, time.UTC)

	rows := []types.IndicatorRow{
		{
			Symbol:      "AAPL",
			TimestampMs: testDate.Add(15 * time.Hour).UnixMilli(),
			Values:      map[string]float64{"sma_20": 101.5},
		},
	}

	out := s.Normalize(rows, testDate, computedAt)
	r := out[0]

	if r.Date != "2025-01-15" {
		t.Errorf("Date = %q", r.Date)
	}
	if r.ComputedAtMs != computedAt.UnixMilli() {
		t.Errorf("ComputedAtMs = %d", r.ComputedAtMs)
	}
	if v := r.Values["sma_20"]; v != 101.5 {
		t.Errorf("sma_20 = %v, should be untouched", v)
	}
	v, ok := r.Values["rsi_14"]
	if !ok || !math.IsNaN(v) {
		t.Errorf("rsi_14 = %v, %v; want NaN placeholder", v, ok)
	}

	// The caller's rows and value maps stay untouched.
	if rows[0].Date != "" || rows[0].ComputedAtMs != 0 {
		t.Errorf("input row mutated: %+v", rows[0])
	}
	if _, ok := rows[0].Values["rsi_14"]; ok {
		t.Error("placeholder leaked into the input value map")
	}
}

func TestNormalize_PreservesExistingStamps(t *testing.T) {
	s := New(nil)
	rows := []types.IndicatorRow{
		{Symbol: "AAPL", TimestampMs: 1, Date: "2025-01-15", ComputedAtMs: 42},
	}
	out := s.Normalize(rows, testDate, time.Now())
	if out[0].ComputedAtMs != 42 {
		t.Errorf("ComputedAtMs = %d, want 42", out[0].ComputedAtMs)
	}
}

func TestEmpty(t *testing.T) {
	e := Empty()
	if e == nil {
		t.Fatal("Empty() returned nil")
	}
	if len(e) != 0 {
		t.Errorf("Empty() has %d rows", len(e))
	}
}

func TestSchemaColumnNames(t *testing.T) {
	s := New([]string{"zeta", "alpha"})
	names := s.IndicatorNames()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("IndicatorNames = %v, want sorted", names)
	}
}
