package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/texapp/opinion-harvester/internal/harvest"
	"github.com/texapp/opinion-harvester/internal/store"
)

const runColumns = `id, created_at, updated_at, period, phase,
	sources_checked, cases_found, files_produced, report_path, error_detail`

// Create inserts a new run record.
func (s *Store) Create(ctx context.Context, run store.Run) error {
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UTC().Format(timeFormat), run.UpdatedAt.UTC().Format(timeFormat),
		harvest.Day(run.Period).Format(dateFormat), string(run.Phase),
		run.SourcesChecked, run.CasesFound, run.FilesProduced, run.ReportPath, run.Error)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// Get loads one run or returns store.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (store.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Run{}, store.ErrNotFound
	}
	if err != nil {
		return store.Run{}, fmt.Errorf("load run %s: %w", id, err)
	}
	return run, nil
}

// SetPhase persists a phase transition.
func (s *Store) SetPhase(ctx context.Context, id string, phase store.Phase) error {
	return s.updateRun(ctx, id, `phase = ?`, string(phase))
}

// SetCounters persists the harvest totals.
func (s *Store) SetCounters(ctx context.Context, id string, sources, cases, files int) error {
	return s.updateRun(ctx, id, `sources_checked = ?, cases_found = ?, files_produced = ?`, sources, cases, files)
}

// SetReportPath records where the run's report was written.
func (s *Store) SetReportPath(ctx context.Context, id, path string) error {
	return s.updateRun(ctx, id, `report_path = ?`, path)
}

// Fail moves the run to the failed variant of phase and stores the detail.
func (s *Store) Fail(ctx context.Context, id string, phase store.Phase, detail string) error {
	return s.updateRun(ctx, id, `phase = ?, error_detail = ?`, string(store.FailedPhase(phase)), detail)
}

func (s *Store) updateRun(ctx context.Context, id, set string, args ...any) error {
	args = append(args, time.Now().UTC().Format(timeFormat), id)
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET `+set+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// List returns up to limit runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]store.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryRuns(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
}

// ListByPeriod returns runs targeting one docket date, newest first.
func (s *Store) ListByPeriod(ctx context.Context, period time.Time) ([]store.Run, error) {
	return s.queryRuns(ctx, `SELECT `+runColumns+` FROM runs WHERE period = ? ORDER BY created_at DESC`,
		harvest.Day(period).Format(dateFormat))
}

// ListUnfinished returns runs not yet in a terminal phase, oldest first.
func (s *Store) ListUnfinished(ctx context.Context) ([]store.Run, error) {
	return s.queryRuns(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE phase NOT IN ('completed', 'no_items',
			'harvesting_failed', 'processing_failed', 'reporting_failed', 'notifying_failed')
		ORDER BY created_at ASC`)
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]store.Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

func scanRun(row scanner) (store.Run, error) {
	var (
		run                            store.Run
		rawCreated, rawUpdated, rawPer string
		phase                          string
	)
	err := row.Scan(&run.ID, &rawCreated, &rawUpdated, &rawPer, &phase,
		&run.SourcesChecked, &run.CasesFound, &run.FilesProduced, &run.ReportPath, &run.Error)
	if err != nil {
		return store.Run{}, err
	}
	created, err := time.Parse(timeFormat, rawCreated)
	if err != nil {
		return store.Run{}, fmt.Errorf("parse created_at %q: %w", rawCreated, err)
	}
	updated, err := time.Parse(timeFormat, rawUpdated)
	if err != nil {
		return store.Run{}, fmt.Errorf("parse updated_at %q: %w", rawUpdated, err)
	}
	period, err := time.ParseInLocation(dateFormat, rawPer, time.UTC)
	if err != nil {
		return store.Run{}, fmt.Errorf("parse period %q: %w", rawPer, err)
	}
	run.CreatedAt = created
	run.UpdatedAt = updated
	run.Period = period
	run.Phase = store.Phase(phase)
	return run, nil
}
