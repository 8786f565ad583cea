package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/texapp/opinion-harvester/internal/store"
)

func TestCreateRunInsertsRow(t *testing.T) {
	t.Parallel()
	mock, s := mockStore(t)

	created := time.Date(2025, time.February, 4, 9, 0, 0, 0, time.UTC)
	period := time.Date(2025, time.February, 4, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO runs").
		WithArgs("run-1", created, created, period, string(store.PhasePending), 0, 0, 0, "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.Create(context.Background(), store.Run{
		ID:        "run-1",
		CreatedAt: created,
		Period:    period,
		Phase:     store.PhasePending,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRun(t *testing.T) {
	t.Parallel()
	mock, s := mockStore(t)

	created := time.Date(2025, time.February, 4, 9, 0, 0, 0, time.UTC)
	period := time.Date(2025, time.February, 4, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM runs WHERE id").
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "created_at", "updated_at", "period", "phase",
				"sources_checked", "cases_found", "files_produced", "report_path", "error_detail"}).
			AddRow("run-1", created, created, period, string(store.PhaseProcessing), 14, 3, 5, "", ""))

	run, err := s.Get(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, store.PhaseProcessing, run.Phase)
	require.Equal(t, 14, run.SourcesChecked)
	require.True(t, run.Period.Equal(period))

	mock.ExpectQuery("FROM runs WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	_, err = s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetPhase(t *testing.T) {
	t.Parallel()
	mock, s := mockStore(t)

	mock.ExpectExec("UPDATE runs SET phase").
		WithArgs(string(store.PhaseHarvesting), pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.SetPhase(context.Background(), "run-1", store.PhaseHarvesting))

	mock.ExpectExec("UPDATE runs SET phase").
		WithArgs(string(store.PhaseHarvesting), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, s.SetPhase(context.Background(), "missing", store.PhaseHarvesting), store.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailRun(t *testing.T) {
	t.Parallel()
	mock, s := mockStore(t)

	mock.ExpectExec("UPDATE runs SET phase").
		WithArgs(string(store.PhaseProcessingFailed), "merge exploded", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.Fail(context.Background(), "run-1", store.PhaseProcessing, "merge exploded")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListUnfinished(t *testing.T) {
	t.Parallel()
	mock, s := mockStore(t)

	created := time.Date(2025, time.February, 4, 9, 0, 0, 0, time.UTC)
	period := time.Date(2025, time.February, 4, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM runs").
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "created_at", "updated_at", "period", "phase",
				"sources_checked", "cases_found", "files_produced", "report_path", "error_detail"}).
			AddRow("run-a", created, created, period, string(store.PhaseHarvesting), 0, 0, 0, "", "").
			AddRow("run-b", created.Add(time.Minute), created.Add(time.Minute), period, string(store.PhaseProcessing), 14, 3, 0, "", ""))

	runs, err := s.ListUnfinished(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run-a", runs[0].ID)
	require.Equal(t, store.PhaseProcessing, runs[1].Phase)
	require.NoError(t, mock.ExpectationsWereMet())
}
