package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/texapp/opinion-harvester/internal/store"
)

func TestRunsLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	runs := NewRuns()
	period := time.Date(2025, 2, 4, 0, 0, 0, 0, time.UTC)

	run := store.Run{
		ID:        "run-1",
		CreatedAt: time.Now().UTC(),
		Period:    period,
		Phase:     store.PhasePending,
	}
	require.NoError(t, runs.Create(ctx, run))
	require.Error(t, runs.Create(ctx, run), "duplicate ids rejected")

	require.NoError(t, runs.SetPhase(ctx, "run-1", store.PhaseHarvesting))
	require.NoError(t, runs.SetCounters(ctx, "run-1", 14, 3, 2))
	require.NoError(t, runs.SetReportPath(ctx, "run-1", "/reports/20250204.txt"))

	got, err := runs.Get(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, store.PhaseHarvesting, got.Phase)
	require.Equal(t, 14, got.SourcesChecked)
	require.Equal(t, 3, got.CasesFound)
	require.Equal(t, 2, got.FilesProduced)
	require.Equal(t, "/reports/20250204.txt", got.ReportPath)

	require.NoError(t, runs.Fail(ctx, "run-1", store.PhaseNotifying, "smtp refused"))
	got, err = runs.Get(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, store.PhaseNotifyingFailed, got.Phase)
	require.Equal(t, "smtp refused", got.Error)
}

func TestRunsGetMissing(t *testing.T) {
	t.Parallel()

	runs := NewRuns()
	_, err := runs.Get(context.Background(), "absent")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, runs.SetPhase(context.Background(), "absent", store.PhaseHarvesting), store.ErrNotFound)
}

func TestRunsListOrdering(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	runs := NewRuns()
	base := time.Date(2025, 2, 4, 8, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		require.NoError(t, runs.Create(ctx, store.Run{
			ID:        id,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Period:    base,
			Phase:     store.PhasePending,
		}))
	}
	require.NoError(t, runs.SetPhase(ctx, "run-b", store.PhaseCompleted))

	newest, err := runs.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, newest, 2)
	require.Equal(t, "run-c", newest[0].ID)
	require.Equal(t, "run-b", newest[1].ID)

	unfinished, err := runs.ListUnfinished(ctx)
	require.NoError(t, err)
	require.Len(t, unfinished, 2)
	require.Equal(t, "run-a", unfinished[0].ID, "oldest first")
	require.Equal(t, "run-c", unfinished[1].ID)

	byPeriod, err := runs.ListByPeriod(ctx, base)
	require.NoError(t, err)
	require.Len(t, byPeriod, 3)
	require.Equal(t, "run-c", byPeriod[0].ID)
}
