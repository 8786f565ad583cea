// Package sqlite persists the ledger and run records in an embedded SQLite
// database. It is the default backend: durable, single-file, no server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/texapp/opinion-harvester/internal/harvest"
	"github.com/texapp/opinion-harvester/internal/store"
)

const (
	dateFormat = "2006-01-02"
	timeFormat = time.RFC3339Nano
)

// Store implements store.Ledger and store.Runs on one database file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates the
// schema. SQLite commits synchronously, so every write is durable before the
// call returns.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// The driver serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS ledger (
		key TEXT PRIMARY KEY,
		court INTEGER NOT NULL,
		date TEXT NOT NULL,
		status TEXT NOT NULL,
		cases INTEGER NOT NULL DEFAULT 0,
		files INTEGER NOT NULL DEFAULT 0,
		recorded_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ledger_date ON ledger(date);
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		period TEXT NOT NULL,
		phase TEXT NOT NULL,
		sources_checked INTEGER NOT NULL DEFAULT 0,
		cases_found INTEGER NOT NULL DEFAULT 0,
		files_produced INTEGER NOT NULL DEFAULT 0,
		report_path TEXT NOT NULL DEFAULT '',
		error_detail TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_runs_period ON runs(period);`
	if _, err := s.db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return nil
}

// IsDone reports whether a non-error entry exists for the unit.
func (s *Store) IsDone(ctx context.Context, unit harvest.WorkUnit) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM ledger WHERE key = ?`, unit.Key()).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query ledger %s: %w", unit.Key(), err)
	}
	return !store.IsErrorStatus(status), nil
}

// RecordResult inserts or overwrites the unit's entry. INSERT OR REPLACE
// re-inserts the row, so rowid order tracks recording order.
func (s *Store) RecordResult(ctx context.Context, unit harvest.WorkUnit, cases, files int, status string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO ledger (key, court, date, status, cases, files, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		unit.Key(), unit.Court, unit.Date.Format(dateFormat), status, cases, files,
		time.Now().UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("record ledger %s: %w", unit.Key(), err)
	}
	return nil
}

// Entry loads one entry or returns store.ErrNotFound.
func (s *Store) Entry(ctx context.Context, unit harvest.WorkUnit) (store.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, court, date, status, cases, files, recorded_at
		FROM ledger WHERE key = ?`, unit.Key())
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Entry{}, store.ErrNotFound
	}
	if err != nil {
		return store.Entry{}, fmt.Errorf("load ledger %s: %w", unit.Key(), err)
	}
	return entry, nil
}

// EntriesByDate lists entries for one docket date in court order.
func (s *Store) EntriesByDate(ctx context.Context, date time.Time) ([]store.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, court, date, status, cases, files, recorded_at
		FROM ledger WHERE date = ? ORDER BY court`, harvest.Day(date).Format(dateFormat))
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
	row := s.db.QueryRowContext(ctx, `
		SELECT court, date FROM ledger
		WHERE status NOT LIKE 'error:%'
		ORDER BY rowid DESC LIMIT 1`)
	var (
		court   int
		rawDate string
	)
	err := row.Scan(&court, &rawDate)
	if errors.Is(err, sql.ErrNoRows) {
		return harvest.WorkUnit{}, false, nil
	}
	if err != nil {
		return harvest.WorkUnit{}, false, fmt.Errorf("query last completed: %w", err)
	}
	date, err := time.ParseInLocation(dateFormat, rawDate, time.UTC)
	if err != nil {
		return harvest.WorkUnit{}, false, fmt.Errorf("parse ledger date %q: %w", rawDate, err)
	}
	return harvest.WorkUnit{Court: court, Date: date}, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (store.Entry, error) {
	var (
		entry            store.Entry
		rawDate, rawTime string
	)
	if err := row.Scan(&entry.Key, &entry.Court, &rawDate, &entry.Status, &entry.Cases, &entry.Files, &rawTime); err != nil {
		return store.Entry{}, err
	}
	date, err := time.ParseInLocation(dateFormat, rawDate, time.UTC)
	if err != nil {
		return store.Entry{}, fmt.Errorf("parse date %q: %w", rawDate, err)
	}
	recorded, err := time.Parse(timeFormat, rawTime)
	if err != nil {
		return store.Entry{}, fmt.Errorf("parse recorded_at %q: %w", rawTime, err)
	}
	entry.Date = date
	entry.RecordedAt = recorded
	return entry, nil
}

var (
	_ store.Ledger = (*Store)(nil)
	_ store.Runs   = (*Store)(nil)
)
