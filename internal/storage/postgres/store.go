// Package postgres provides Postgres-backed persistence for the ledger and
// run records, for deployments that outgrow the embedded SQLite file.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/texapp/opinion-harvester/internal/harvest"
	"github.com/texapp/opinion-harvester/internal/store"
)

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements store.Ledger and store.Runs on a pgx pool.
type Store struct {
	pool dbPool
}

// New connects to Postgres, migrates the schema, and returns the store.
func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
// It does not migrate.
func NewWithPool(pool dbPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate creates the ledger and runs tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS ledger (
		key TEXT PRIMARY KEY,
		court INTEGER NOT NULL,
		date DATE NOT NULL,
		status TEXT NOT NULL,
		cases INTEGER NOT NULL DEFAULT 0,
		files INTEGER NOT NULL DEFAULT 0,
		recorded_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ledger_date ON ledger(date);
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		period DATE NOT NULL,
		phase TEXT NOT NULL,
		sources_checked INTEGER NOT NULL DEFAULT 0,
		cases_found INTEGER NOT NULL DEFAULT 0,
		files_produced INTEGER NOT NULL DEFAULT 0,
		report_path TEXT NOT NULL DEFAULT '',
		error_detail TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_runs_period ON runs(period);`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("migrate postgres schema: %w", err)
	}
	return nil
}

// IsDone reports whether a non-error entry exists for the unit.
func (s *Store) IsDone(ctx context.Context, unit harvest.WorkUnit) (bool, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM ledger WHERE key = $1`, unit.Key()).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query ledger %s: %w", unit.Key(), err)
	}
	return !store.IsErrorStatus(status), nil
}

// RecordResult upserts the unit's entry; recorded_at tracks the latest write.
func (s *Store) RecordResult(ctx context.Context, unit harvest.WorkUnit, cases, files int, status string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger (key, court, date, status, cases, files, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE SET
			status = EXCLUDED.status,
			cases = EXCLUDED.cases,
			files = EXCLUDED.files,
			recorded_at = EXCLUDED.recorded_at`,
		unit.Key(), unit.Court, unit.Date, status, cases, files, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record ledger %s: %w", unit.Key(), err)
	}
	return nil
}

// Entry loads one entry or returns store.ErrNotFound.
func (s *Store) Entry(ctx context.Context, unit harvest.WorkUnit) (store.Entry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT key, court, date, status, cases, files, recorded_at
		FROM ledger WHERE key = $1`, unit.Key())
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Entry{}, store.ErrNotFound
	}
	if err != nil {
		return store.Entry{}, fmt.Errorf("load ledger %s: %w", unit.Key(), err)
	}
	return entry, nil
}

// EntriesByDate lists entries for one docket date in court order.
func (s *Store) EntriesByDate(ctx context.Context, date time.Time) ([]store.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT key, court, date, status, cases, files, recorded_at
		FROM ledger WHERE date = $1 ORDER BY court`, harvest.Day(date))
	if err != nil {
		return nil, fmt.Errorf("query ledger by date: %w", err)
	}
	defer rows.Close()

	var entries []store.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return entries, nil
}

// LastCompleted returns the most recently recorded non-error unit.
func (s *Store) LastCompleted(ctx context.Context) (harvest.WorkUnit, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT court, date FROM ledger
		WHERE status NOT LIKE 'error:%'
		ORDER BY recorded_at DESC LIMIT 1`)
	var (
		court int
		date  time.Time
	)
	err := row.Scan(&court, &date)
	if errors.Is(err, pgx.ErrNoRows) {
		return harvest.WorkUnit{}, false, nil
	}
	if err != nil {
		return harvest.WorkUnit{}, false, fmt.Errorf("query last completed: %w", err)
	}
	return harvest.NewWorkUnit(court, date), true, nil
}

func scanEntry(row pgx.Row) (store.Entry, error) {
	var entry store.Entry
	err := row.Scan(&entry.Key, &entry.Court, &entry.Date, &entry.Status, &entry.Cases, &entry.Files, &entry.RecordedAt)
	if err != nil {
		return store.Entry{}, err
	}
	entry.Date = harvest.Day(entry.Date)
	return entry, nil
}

var (
	_ store.Ledger = (*Store)(nil)
	_ store.Runs   = (*Store)(nil)
)
