package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/texapp/opinion-harvester/internal/clock/system"
	"github.com/texapp/opinion-harvester/internal/coordinator"
	"github.com/texapp/opinion-harvester/internal/id/uuid"
	"github.com/texapp/opinion-harvester/internal/notify"
	"github.com/texapp/opinion-harvester/internal/storage/memory"
	"github.com/texapp/opinion-harvester/internal/store"
)

var period = time.Date(2025, 2, 4, 0, 0, 0, 0, time.UTC)

type fakeHarvester struct {
	calls  int
	totals coordinator.Totals
	err    error
}

func (h *fakeHarvester) HarvestRange(context.Context, time.Time, time.Time) (coordinator.Totals, error) {
	h.calls++
	return h.totals, h.err
}

type fakeProcessor struct {
	calls     int
	processed int
	failed    int
	err       error
}

func (p *fakeProcessor) Run(context.Context, time.Time) (int, int, error) {
	p.calls++
	return p.processed, p.failed, p.err
}

type fakeReporter struct {
	calls int
	path  string
	err   error
}

func (r *fakeReporter) Generate(time.Time) (string, error) {
	r.calls++
	return r.path, r.err
}

type deps struct {
	runs      *memory.Runs
	harvester *fakeHarvester
	processor *fakeProcessor
	reporter  *fakeReporter
	notifier  *notify.Memory
}

func newPipeline(d *deps) *Pipeline {
	return New(
		d.runs,
		d.harvester,
		d.processor,
		d.reporter,
		d.notifier,
		uuid.New(),
		system.New(),
		nil,
		zap.NewNop(),
	)
}

func happyDeps() *deps {
	return &deps{
		runs:      memory.NewRuns(),
		harvester: &fakeHarvester{totals: coordinator.Totals{Sources: 3, Cases: 2, Files: 2}},
		processor: &fakeProcessor{processed: 2},
		reporter:  &fakeReporter{path: "/reports/opinions-2025-02-04.txt"},
		notifier:  notify.NewMemory(),
	}
}

func TestRunCompletes(t *testing.T) {
	t.Parallel()

	d := happyDeps()
	run, err := newPipeline(d).Run(context.Background(), period)
	require.NoError(t, err)
	require.Equal(t, store.PhaseCompleted, run.Phase)
	require.Equal(t, 3, run.SourcesChecked)
	require.Equal(t, 2, run.CasesFound)
	require.Equal(t, 2, run.FilesProduced)

	persisted, err := d.runs.Get(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, store.PhaseCompleted, persisted.Phase)
	require.Equal(t, d.reporter.path, persisted.ReportPath)

	msgs := d.notifier.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, run.ID, msgs[0].RunID)
	require.Equal(t, d.reporter.path, msgs[0].ReportPath)
	require.Equal(t, 2, msgs[0].FilesProduced)
}

func TestRunNoItemsWhenNothingToReport(t *testing.T) {
	t.Parallel()

	d := happyDeps()
	d.harvester.totals = coordinator.Totals{Sources: 3}
	d.reporter.path = ""

	run, err := newPipeline(d).Run(context.Background(), period)
	require.NoError(t, err)
	require.Equal(t, store.PhaseNoItems, run.Phase)
	require.Empty(t, d.notifier.Messages(), "no report, no notification")
}

func TestRunFailureRecordsPhaseTerminal(t *testing.T) {
	t.Parallel()

	d := happyDeps()
	d.harvester.err = errors.New("ledger unavailable")

	run, err := newPipeline(d).Run(context.Background(), period)
	require.Error(t, err)
	require.Equal(t, store.PhaseHarvestingFailed, run.Phase)

	persisted, perr := d.runs.Get(context.Background(), run.ID)
	require.NoError(t, perr)
	require.Equal(t, store.PhaseHarvestingFailed, persisted.Phase)
	require.Contains(t, persisted.Error, "ledger unavailable")
	require.Zero(t, d.processor.calls, "later phases never ran")
}

func TestNotifyFailureIsTerminalNotCrash(t *testing.T) {
	t.Parallel()

	d := happyDeps()
	d.notifier.Err = errors.New("topic gone")

	run, err := newPipeline(d).Run(context.Background(), period)
	require.Error(t, err)
	require.Equal(t, store.PhaseNotifyingFailed, run.Phase)

	persisted, perr := d.runs.Get(context.Background(), run.ID)
	require.NoError(t, perr)
	require.Equal(t, d.reporter.path, persisted.ReportPath, "report survives the notify failure")
}

func TestResumeFromProcessingSkipsHarvest(t *testing.T) {
	t.Parallel()

	d := happyDeps()
	p := newPipeline(d)

	// A crashed run persisted at processing: the phase was written before
	// the work, so processing is at most partially done.
	seed := store.Run{
		ID:             "run-1",
		CreatedAt:      time.Now().UTC(),
		Period:         period,
		Phase:          store.PhaseProcessing,
		SourcesChecked: 3,
		CasesFound:     2,
		FilesProduced:  2,
	}
	require.NoError(t, d.runs.Create(context.Background(), seed))

	run, err := p.Resume(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, store.PhaseCompleted, run.Phase)
	require.Zero(t, d.harvester.calls, "resume at processing must not re-harvest")
	require.Equal(t, 1, d.processor.calls)
	require.Equal(t, 1, d.reporter.calls)

	// Counters were carried from the crashed run, not reset.
	msgs := d.notifier.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, 2, msgs[0].CasesFound)
}

func TestResumeFailedNotifyRetriesNotifyOnly(t *testing.T) {
	t.Parallel()

	d := happyDeps()
	seed := store.Run{
		ID:         "run-2",
		CreatedAt:  time.Now().UTC(),
		Period:     period,
		Phase:      store.PhaseNotifyingFailed,
		ReportPath: "/reports/opinions-2025-02-04.txt",
		Error:      "topic gone",
	}
	require.NoError(t, d.runs.Create(context.Background(), seed))

	run, err := newPipeline(d).Resume(context.Background(), "run-2")
	require.NoError(t, err)
	require.Equal(t, store.PhaseCompleted, run.Phase)
	require.Zero(t, d.harvester.calls)
	require.Zero(t, d.processor.calls)
	require.Zero(t, d.reporter.calls, "notifying re-entry keeps the existing report")
	require.Len(t, d.notifier.Messages(), 1)
}

func TestResumeRejectsFinishedRuns(t *testing.T) {
	t.Parallel()

	d := happyDeps()
	seed := store.Run{ID: "run-3", CreatedAt: time.Now().UTC(), Period: period, Phase: store.PhaseCompleted}
	require.NoError(t, d.runs.Create(context.Background(), seed))

	_, err := newPipeline(d).Resume(context.Background(), "run-3")
	require.Error(t, err)
}

func TestResumeFromPendingRestartsHarvest(t *testing.T) {
	t.Parallel()

	d := happyDeps()
	seed := store.Run{ID: "run-4", CreatedAt: time.Now().UTC(), Period: period, Phase: store.PhasePending}
	require.NoError(t, d.runs.Create(context.Background(), seed))

	run, err := newPipeline(d).Resume(context.Background(), "run-4")
	require.NoError(t, err)
	require.Equal(t, store.PhaseCompleted, run.Phase)
	require.Equal(t, 1, d.harvester.calls)
}
