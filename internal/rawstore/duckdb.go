package rawstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/quantfold/indicache/internal/errors"
	"github.com/quantfold/indicache/internal/types"
)

// DuckDB is a raw bar store backed by a DuckDB database holding one bars
// table. It satisfies Store.
type DuckDB struct {
	db    *sql.DB
	table string
}

// OpenDuckDB opens (or creates) a DuckDB database at path. An empty path
// opens an in-memory database. The bars table is created if absent.
func OpenDuckDB(path, table string) (*DuckDB, error) {
	if table == "" {
		table = "bars"
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			symbol    VARCHAR NOT NULL,
			timeframe VARCHAR NOT NULL,
			ts_ms     BIGINT  NOT NULL,
			open      DOUBLE,
			high      DOUBLE,
			low       DOUBLE,
			close     DOUBLE,
			volume    BIGINT
		)`, table)

	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bars table: %w", err)
	}

	return &DuckDB{db: db, table: table}, nil
}

// Close closes the database.
func (d *DuckDB) Close() error {
	return d.db.Close()
}

// Bars returns raw bars for [start, end] inclusive, ordered by timestamp.
func (d *DuckDB) Bars(ctx context.Context, symbol string, tf types.Timeframe, start, end time.Time) ([]types.Bar, error) {
	query := fmt.Sprintf(`
		SELECT symbol, ts_ms, open, high, low, close, volume
		FROM %s
		WHERE symbol = $1
		  AND timeframe = $2
		  AND ts_ms >= $3
		  AND ts_ms < $4
		ORDER BY ts_ms
	`, d.table)

	startMs := types.DateOnly(start).UnixMilli()
	endMs := types.DateOnly(end).AddDate(0, 0, 1).UnixMilli()

	rows, err := d.db.QueryContext(ctx, query, symbol, tf.String(), startMs, endMs)
	if err != nil {
		return nil, errors.NewUpstream("duckdb", err)
	}
	defer rows.Close()

	var bars []types.Bar
	for rows.Next() {
		var b types.Bar
		if err := rows.Scan(&b.Symbol, &b.TimestampMs, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, errors.NewUpstream("duckdb", fmt.Errorf("scan row: %w", err))
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewUpstream("duckdb", err)
	}

	return bars, nil
}

// LatestDate returns the calendar date of the symbol's newest bar across
// all timeframes.
func (d *DuckDB) LatestDate(ctx context.Context, symbol string) (time.Time, bool, error) {
	query := fmt.Sprintf(`SELECT max(ts_ms) FROM %s WHERE symbol = $1`, d.table)

	var maxMs sql.NullInt64
	if err := d.db.QueryRowContext(ctx, query, symbol).Scan(&maxMs); err != nil {
		return time.Time{}, false, errors.NewUpstream("duckdb", err)
	}
	if !maxMs.Valid {
		return time.Time{}, false, nil
	}

	return types.DateOnly(time.UnixMilli(maxMs.Int64).UTC()), true, nil
}

// Symbols returns the distinct symbol universe, sorted.
func (d *DuckDB) Symbols(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT symbol FROM %s ORDER BY symbol`, d.table)

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.NewUpstream("duckdb", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, errors.NewUpstream("duckdb", fmt.Errorf("scan row: %w", err))
		}
		symbols = append(symbols, s)
	}

	return symbols, rows.Err()
}

// InsertBars appends bars to the table. Intended for ingestion tooling and
// tests; the cache itself never writes raw data.
func (d *DuckDB) InsertBars(ctx context.Context, tf types.Timeframe, bars []types.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewUpstream("duckdb", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (symbol, timeframe, ts_ms, open, high, low, close, volume) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, d.table))
	if err != nil {
		tx.Rollback()
		return errors.NewUpstream("duckdb", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Symbol, tf.String(), b.TimestampMs, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return errors.NewUpstream("duckdb", err)
		}
	}

	return tx.Commit()
}
