// Package partition implements the indicator cache's partition store: one
// Parquet file per (symbol, timeframe, date), written atomically and read
// back by date range. Availability queries are answered from directory and
// filename enumeration alone, without opening files.
package partition

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/quantfold/indicache/internal/errors"
	"github.com/quantfold/indicache/internal/logging"
	"github.com/quantfold/indicache/internal/schema"
	"github.com/quantfold/indicache/internal/types"
)

// Options configures the partition writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// CompressionLevel for algorithms that support it (zstd: 1-22)
	CompressionLevel int

	// RowGroupSize is the target number of rows per row group
	RowGroupSize int
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default partition options.
func DefaultOptions() Options {
	return Options{
		Compression:      CompressionZstd,
		CompressionLevel: 3,
		RowGroupSize:     10000,
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// codec returns the parquet-go compression codec.
func codec(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// Store reads and writes single partitions under a base directory. It is
// safe for concurrent use; writes to the same partition path are serialized
// by a per-path lock.
type Store struct {
	base   string
	schema *schema.Schema
	opts   Options
	locks  *pathLock
	log    *slog.Logger
}

// NewStore creates a partition store rooted at base.
func NewStore(base string, sch *schema.Schema, opts Options) (*Store, error) {
	if base == "" {
		return nil, errors.NewValidation("base", "empty path")
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, errors.NewIO("create", base, err)
	}

	return &Store{
		base:   base,
		schema: sch,
		opts:   opts,
		locks:  newPathLock(),
		log:    logging.Component("partition"),
	}, nil
}

// Base returns the base directory.
func (s *Store) Base() string {
	return s.base
}

// Schema returns the partition schema.
func (s *Store) Schema() *schema.Schema {
	return s.schema
}

// PathFor derives the partition path for a key.
func (s *Store) PathFor(symbol string, tf types.Timeframe, date time.Time) string {
	return s.schema.PathFor(s.base, symbol, tf, date)
}

// Exists reports whether a partition file is present for the key.
func (s *Store) Exists(symbol string, tf types.Timeframe, date time.Time) bool {
	_, err := os.Stat(s.PathFor(symbol, tf, date))
	return err == nil
}

// Write stores one partition. The row set is validated against the schema
// first; a failing set performs no I/O. If the partition already exists and
// overwrite is false the call succeeds trivially. The file is written to a
// temporary path and renamed into place, so readers never observe a partial
// partition.
//
// All failures are logged and converted to false; Write never panics or
// returns an error to the caller.
func (s *Store) Write(rows []types.IndicatorRow, symbol string, tf types.Timeframe, date time.Time, overwrite bool) bool {
	if err := s.schema.Validate(rows, symbol, date); err != nil {
		s.log.Error("validation failed", "symbol", symbol, "timeframe", tf.String(), "date", date.Format(types.DateLayout), "error", err)
		return false
	}

	path := s.PathFor(symbol, tf, date)

	unlock := s.locks.Lock(path)
	defer unlock()

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			s.log.Debug("partition exists, skipping", "path", path)
			return true
		}
	}

	rows = s.schema.Normalize(rows, date, time.Now().UTC())

	if err := s.writeFile(path, rows); err != nil {
		s.log.Error("write failed", "path", path, "error", err)
		return false
	}

	s.log.Debug("partition written", "path", path, "rows", len(rows))
	return true
}

// writeFile writes rows to a temporary file and publishes it at path with a
// rename.
func (s *Store) writeFile(path string, rows []types.IndicatorRow) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewIO("create", dir, err)
	}

	tmp := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())

	f, err := os.Create(tmp)
	if err != nil {
		return errors.NewIO("create", tmp, err)
	}

	writerOpts := []parquet.WriterOption{
		parquet.Compression(codec(s.opts.Compression)),
	}
	if s.opts.RowGroupSize > 0 {
		writerOpts = append(writerOpts, parquet.MaxRowsPerRowGroup(int64(s.opts.RowGroupSize)))
	}

	w := parquet.NewGenericWriter[types.IndicatorRow](f, writerOpts...)

	if _, err := w.Write(rows); err != nil {
		w.Close()
		f.Close()
		os.Remove(tmp)
		return errors.NewIO("write", tmp, err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.NewIO("close", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.NewIO("close", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.NewIO("rename", path, err)
	}

	return nil
}

// Delete removes a partition file. Missing files are not an error.
func (s *Store) Delete(symbol string, tf types.Timeframe, date time.Time) error {
	path := s.PathFor(symbol, tf, date)

	unlock := s.locks.Lock(path)
	defer unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.NewIO("delete", path, err)
	}
	return nil
}

// readFile reads all rows of one partition file.
func readFile(path string) ([]types.IndicatorRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	defer f.Close()

	r := parquet.NewGenericReader[types.IndicatorRow](f)
	defer r.Close()

	rows := make([]types.IndicatorRow, r.NumRows())
	if len(rows) == 0 {
		return schema.Empty(), nil
	}

	n, err := r.Read(rows)
	if err != nil && n < len(rows) {
		return nil, errors.NewIO("read", path, err)
	}

	return rows[:n], nil
}

// partitionKey is one parsed directory entry.
type partitionKey struct {
	symbol string
	tf     types.Timeframe
	date   time.Time
}

// walkKeys enumerates every parsable partition key under the base directory.
// Malformed filenames are logged and skipped, never fatal.
func (s *Store) walkKeys(fn func(partitionKey)) {
	years, err := os.ReadDir(s.base)
	if err != nil {
		return
	}

	for _, year := range years {
		if !year.IsDir() {
			continue
		}
		months, err := os.ReadDir(filepath.Join(s.base, year.Name()))
		if err != nil {
			continue
		}
		for _, month := range months {
			if !month.IsDir() {
				continue
			}
			days, err := os.ReadDir(filepath.Join(s.base, year.Name(), month.Name()))
			if err != nil {
				continue
			}
			for _, day := range days {
				if !day.IsDir() {
					continue
				}
				tfs, err := os.ReadDir(filepath.Join(s.base, year.Name(), month.Name(), day.Name()))
				if err != nil {
					continue
				}
				for _, tfDir := range tfs {
					if !tfDir.IsDir() {
						continue
					}
					files, err := os.ReadDir(filepath.Join(s.base, year.Name(), month.Name(), day.Name(), tfDir.Name()))
					if err != nil {
						continue
					}
					for _, file := range files {
						if file.IsDir() || filepath.Ext(file.Name()) != schema.Ext {
							continue
						}
						symbol, tf, date, err := schema.ParseFilename(file.Name())
						if err != nil {
							s.log.Warn("skipping malformed filename", "name", file.Name(), "error", err)
							continue
						}
						fn(partitionKey{symbol: symbol, tf: tf, date: date})
					}
				}
			}
		}
	}
}

// AvailableSymbols returns every symbol with at least one partition, sorted.
func (s *Store) AvailableSymbols() []string {
	seen := make(map[string]struct{})
	s.walkKeys(func(k partitionKey) {
		seen[k.symbol] = struct{}{}
	})

	symbols := make([]string, 0, len(seen))
	for sym := range seen {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

// AvailableDates returns every date with a partition for the symbol and
// timeframe, sorted ascending.
func (s *Store) AvailableDates(symbol string, tf types.Timeframe) []time.Time {
	var dates []time.Time
	s.walkKeys(func(k partitionKey) {
		if k.symbol == symbol && k.tf == tf {
			dates = append(dates, k.date)
		}
	})

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// LatestDate returns the most recent partition date for the symbol and
// timeframe, or false if no partition exists.
func (s *Store) LatestDate(symbol string, tf types.Timeframe) (time.Time, bool) {
	var latest time.Time
	var found bool
	s.walkKeys(func(k partitionKey) {
		if k.symbol == symbol && k.tf == tf && (!found || k.date.After(latest)) {
			latest = k.date
			found = true
		}
	})
	return latest, found
}

// RowCount returns the number of rows in one partition without decoding
// them, or 0 if the partition is absent or unreadable.
func (s *Store) RowCount(symbol string, tf types.Timeframe, date time.Time) int64 {
	path := s.PathFor(symbol, tf, date)

	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	r := parquet.NewGenericReader[types.IndicatorRow](f)
	defer r.Close()

	return r.NumRows()
}
