package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

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
	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.CreatedAt.UTC(), run.UpdatedAt.UTC(), harvest.Day(run.Period), string(run.Phase),
		run.SourcesChecked, run.CasesFound, run.FilesProduced, run.ReportPath, run.Error)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// Get loads one run or returns store.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (store.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Run{}, store.ErrNotFound
	}
	if err != nil {
		return store.Run{}, fmt.Errorf("load run %s: %w", id, err)
	}
	return run, nil
}

// SetPhase persists a phase transition.
func (s *Store) SetPhase(ctx context.Context, id string, phase store.Phase) error {
	return s.updateRun(ctx, id, `phase = $1`, string(phase))
}

// SetCounters persists the harvest totals.
func (s *Store) SetCounters(ctx context.Context, id string, sources, cases, files int) error {
	return s.updateRun(ctx, id, `sources_checked = $1, cases_found = $2, files_produced = $3`, sources, cases, files)
}

// SetReportPath records where the run's report was written.
func (s *Store) SetReportPath(ctx context.Context, id, path string) error {
	return s.updateRun(ctx, id, `report_path = $1`, path)
}

// Fail moves the run to the failed variant of phase and stores the detail.
func (s *Store) Fail(ctx context.Context, id string, phase store.Phase, detail string) error {
	return s.updateRun(ctx, id, `phase = $1, error_detail = $2`, string(store.FailedPhase(phase)), detail)
}

func (s *Store) updateRun(ctx context.Context, id, set string, args ...any) error {
	n := len(args)
	query := fmt.Sprintf(`UPDATE runs SET %s, updated_at = $%d WHERE id = $%d`, set, n+1, n+2)
	args = append(args, time.Now().UTC(), id)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// List returns up to limit runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]store.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryRuns(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
}

// ListByPeriod returns runs targeting one docket date, newest first.
func (s *Store) ListByPeriod(ctx context.Context, period time.Time) ([]store.Run, error) {
	return s.queryRuns(ctx, `SELECT `+runColumns+` FROM runs WHERE period = $1 ORDER BY created_at DESC`,
		harvest.Day(period))
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
	rows, err := s.pool.Query(ctx, query, args...)
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

func scanRun(row pgx.Row) (store.Run, error) {
	var (
		run   store.Run
		phase string
	)
	err := row.Scan(&run.ID, &run.CreatedAt, &run.UpdatedAt, &run.Period, &phase,
		&run.SourcesChecked, &run.CasesFound, &run.FilesProduced, &run.ReportPath, &run.Error)
	if err != nil {
		return store.Run{}, err
	}
	run.Period = harvest.Day(run.Period)
	run.Phase = store.Phase(phase)
	return run, nil
}
