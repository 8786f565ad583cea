// Package pipeline sequences one end-to-end job (harvest, process, report,
// notify) as a persisted state machine. Every phase transition is written to
// the run record before the phase's work begins, so a crashed run's record
// reads "this phase was at most partially done" and an operator can resume
// it from there.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/texapp/opinion-harvester/internal/coordinator"
	"github.com/texapp/opinion-harvester/internal/harvest"
	"github.com/texapp/opinion-harvester/internal/notify"
	"github.com/texapp/opinion-harvester/internal/progress"
	"github.com/texapp/opinion-harvester/internal/store"
)

// Harvester runs the harvest phase over a period range.
type Harvester interface {
	HarvestRange(ctx context.Context, from, to time.Time) (coordinator.Totals, error)
}

// Processor drives downstream processing for a period, returning processed
// and failed counts.
type Processor interface {
	Run(ctx context.Context, period time.Time) (processed, failed int, err error)
}

// Reporter generates the period report, returning its path or "" when the
// period produced nothing to report.
type Reporter interface {
	Generate(period time.Time) (string, error)
}

// Pipeline executes and resumes runs.
type Pipeline struct {
	runs      store.Runs
	harvester Harvester
	processor Processor
	reporter  Reporter
	notifier  notify.Notifier
	ids       harvest.IDGenerator
	clock     harvest.Clock
	emitter   progress.Emitter
	logger    *zap.Logger
}

// New builds a Pipeline. emitter may be nil; notifier may be notify.Nop.
func New(
	runs store.Runs,
	harvester Harvester,
	processor Processor,
	reporter Reporter,
	notifier notify.Notifier,
	ids harvest.IDGenerator,
	clock harvest.Clock,
	emitter progress.Emitter,
	logger *zap.Logger,
) *Pipeline {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Pipeline{
		runs:      runs,
		harvester: harvester,
		processor: processor,
		reporter:  reporter,
		notifier:  notifier,
		ids:       ids,
		clock:     clock,
		emitter:   emitter,
		logger:    logger,
	}
}

// Run creates a new run record for the period and executes it to a terminal
// phase. The returned run reflects the final persisted state; the error is
// non-nil when the run ended in a failed terminal.
func (p *Pipeline) Run(ctx context.Context, period time.Time) (store.Run, error) {
	id, err := p.ids.NewID()
	if err != nil {
		return store.Run{}, fmt.Errorf("generate run id: %w", err)
	}
	now := p.clock.Now()
	run := store.Run{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Period:    harvest.Day(period),
		Phase:     store.PhasePending,
	}
	if err := p.runs.Create(ctx, run); err != nil {
		return store.Run{}, fmt.Errorf("create run record: %w", err)
	}
	p.emit(progress.Event{Stage: progress.StageRunStart, RunID: run.ID})
	p.logger.Info("run started",
		zap.String("run_id", run.ID),
		zap.Time("period", run.Period))
	return p.execute(ctx, run, store.PhaseHarvesting)
}

// Resume re-enters an interrupted or failed run at the phase its record
// shows. Successfully finished runs cannot be resumed.
func (p *Pipeline) Resume(ctx context.Context, runID string) (store.Run, error) {
	run, err := p.runs.Get(ctx, runID)
	if err != nil {
		return store.Run{}, fmt.Errorf("load run %s: %w", runID, err)
	}
	if run.Phase.Terminal() && !run.Phase.Failed() {
		return run, fmt.Errorf("run %s already finished in phase %s", runID, run.Phase)
	}

	recorded := run.Phase
	target := resumeTarget(recorded)
	if err := p.setPhase(ctx, &run, store.PhaseResuming); err != nil {
		return run, err
	}
	p.logger.Info("run resuming",
		zap.String("run_id", run.ID),
		zap.String("from", string(recorded)),
		zap.String("target", string(target)))
	return p.execute(ctx, run, target)
}

// resumeTarget maps a recorded phase to where work restarts. Harvesting is
// idempotent through the ledger, processing re-derives its pending set, and
// reporting regenerates deterministically, so each failed or partial phase
// simply runs again.
func resumeTarget(phase store.Phase) store.Phase {
	switch phase {
	case store.PhaseProcessing, store.PhaseProcessingFailed:
		return store.PhaseProcessing
	case store.PhaseReporting, store.PhaseReportingFailed:
		return store.PhaseReporting
	case store.PhaseNotifying, store.PhaseNotifyingFailed:
		return store.PhaseNotifying
	default:
		// pending, harvesting, harvesting_failed, or a stale resuming marker.
		return store.PhaseHarvesting
	}
}

// execute walks the phases in order starting at from.
func (p *Pipeline) execute(ctx context.Context, run store.Run, from store.Phase) (store.Run, error) {
	started := p.clock.Now()

	if from == store.PhaseHarvesting {
		if err := p.harvestPhase(ctx, &run); err != nil {
			return p.fail(ctx, run, store.PhaseHarvesting, err)
		}
		from = store.PhaseProcessing
	}
	if from == store.PhaseProcessing {
		if err := p.processPhase(ctx, &run); err != nil {
			return p.fail(ctx, run, store.PhaseProcessing, err)
		}
		from = store.PhaseReporting
	}

	var reportPath string
	if from == store.PhaseReporting {
		path, err := p.reportPhase(ctx, &run)
		if err != nil {
			return p.fail(ctx, run, store.PhaseReporting, err)
		}
		if path == "" {
			// Nothing published for the period; a normal terminal outcome.
			if err := p.setPhase(ctx, &run, store.PhaseNoItems); err != nil {
				return run, err
			}
			p.finishEvent(run, started, progress.StageRunDone)
			return run, nil
		}
		reportPath = path
	} else {
		// Re-entry at notifying: the report was already generated.
		reportPath = run.ReportPath
	}

	if err := p.notifyPhase(ctx, &run, reportPath); err != nil {
		return p.fail(ctx, run, store.PhaseNotifying, err)
	}

	if err := p.setPhase(ctx, &run, store.PhaseCompleted); err != nil {
		return run, err
	}
	p.finishEvent(run, started, progress.StageRunDone)
	p.logger.Info("run completed",
		zap.String("run_id", run.ID),
		zap.Int("sources", run.SourcesChecked),
		zap.Int("cases", run.CasesFound),
		zap.Int("files", run.FilesProduced))
	return run, nil
}

func (p *Pipeline) harvestPhase(ctx context.Context, run *store.Run) error {
	if err := p.setPhase(ctx, run, store.PhaseHarvesting); err != nil {
		return err
	}
	totals, err := p.harvester.HarvestRange(ctx, run.Period, run.Period)
	if err != nil {
		return err
	}
	// Resumed harvests only see units the ledger has not recorded, so
	// counters accumulate across re-entries.
	run.SourcesChecked += totals.Sources
	run.CasesFound += totals.Cases
	run.FilesProduced += totals.Files
	if err := p.runs.SetCounters(ctx, run.ID, run.SourcesChecked, run.CasesFound, run.FilesProduced); err != nil {
		return fmt.Errorf("persist counters: %w", err)
	}
	return nil
}

func (p *Pipeline) processPhase(ctx context.Context, run *store.Run) error {
	if err := p.setPhase(ctx, run, store.PhaseProcessing); err != nil {
		return err
	}
	processed, failed, err := p.processor.Run(ctx, run.Period)
	if err != nil {
		return err
	}
	if failed > 0 {
		p.logger.Warn("processing finished with item failures",
			zap.String("run_id", run.ID),
			zap.Int("processed", processed),
			zap.Int("failed", failed))
	}
	return nil
}

func (p *Pipeline) reportPhase(ctx context.Context, run *store.Run) (string, error) {
	if err := p.setPhase(ctx, run, store.PhaseReporting); err != nil {
		return "", err
	}
	path, err := p.reporter.Generate(run.Period)
	if err != nil {
		return "", err
	}
	if path != "" {
		if err := p.runs.SetReportPath(ctx, run.ID, path); err != nil {
			return "", fmt.Errorf("persist report path: %w", err)
		}
		run.ReportPath = path
	}
	return path, nil
}

func (p *Pipeline) notifyPhase(ctx context.Context, run *store.Run, reportPath string) error {
	if err := p.setPhase(ctx, run, store.PhaseNotifying); err != nil {
		return err
	}
	return p.notifier.Notify(ctx, notify.Message{
		RunID:          run.ID,
		Period:         run.Period,
		SourcesChecked: run.SourcesChecked,
		CasesFound:     run.CasesFound,
		FilesProduced:  run.FilesProduced,
		ReportPath:     reportPath,
	})
}

// setPhase persists the transition before any phase work happens.
func (p *Pipeline) setPhase(ctx context.Context, run *store.Run, phase store.Phase) error {
	if err := p.runs.SetPhase(ctx, run.ID, phase); err != nil {
		return fmt.Errorf("persist phase %s: %w", phase, err)
	}
	run.Phase = phase
	p.emit(progress.Event{Stage: progress.StagePhaseChange, RunID: run.ID, Phase: string(phase)})
	return nil
}

// fail records the failed terminal state and surfaces a PhaseError. A broken
// run-store write is logged but cannot mask the original failure.
func (p *Pipeline) fail(ctx context.Context, run store.Run, phase store.Phase, cause error) (store.Run, error) {
	perr := &harvest.PhaseError{Phase: string(phase), Err: cause}
	if err := p.runs.Fail(ctx, run.ID, phase, cause.Error()); err != nil {
		p.logger.Error("recording run failure failed",
			zap.String("run_id", run.ID), zap.Error(err))
	}
	run.Phase = store.FailedPhase(phase)
	run.Error = cause.Error()
	p.emit(progress.Event{
		Stage: progress.StageRunError,
		RunID: run.ID,
		Phase: string(run.Phase),
		Note:  cause.Error(),
	})
	p.logger.Error("run failed",
		zap.String("run_id", run.ID),
		zap.String("phase", string(phase)),
		zap.Error(cause))
	return run, perr
}

func (p *Pipeline) finishEvent(run store.Run, started time.Time, stage progress.Stage) {
	p.emit(progress.Event{
		Stage: stage,
		RunID: run.ID,
		Cases: run.CasesFound,
		Files: run.FilesProduced,
		Dur:   p.clock.Now().Sub(started),
	})
}

func (p *Pipeline) emit(evt progress.Event) {
	if p.emitter == nil {
		return
	}
	evt.TS = p.clock.Now()
	p.emitter.Emit(evt)
}
