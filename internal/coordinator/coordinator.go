// Package coordinator drives the harvest: it walks the work-unit space in
// (date, court) order, skips units the ledger already records, and turns each
// remaining docket into assembled artifacts and a ledger entry.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/texapp/opinion-harvester/internal/docket"
	"github.com/texapp/opinion-harvester/internal/harvest"
	"github.com/texapp/opinion-harvester/internal/progress"
	"github.com/texapp/opinion-harvester/internal/store"
)

// Assembler produces one artifact per case group. The concrete
// implementation lives in internal/assemble.
type Assembler interface {
	Assemble(ctx context.Context, unit harvest.WorkUnit, group harvest.CaseGroup) (harvest.Artifact, error)
}

// Config controls enumeration and pacing.
type Config struct {
	// BaseURL is the court search site root.
	BaseURL string
	// Courts is the ordered source set to harvest.
	Courts []int
	// CaseDelay is the politeness pause between case groups; UnitDelay the
	// pause between work units. Both are policy, not correctness.
	CaseDelay time.Duration
	UnitDelay time.Duration
}

// Totals aggregates one harvest pass for the run record.
type Totals struct {
	// Sources counts the units actually harvested this pass (skipped units
	// are not re-checked, they were counted by the pass that did them).
	Sources int
	Cases   int
	Files   int
}

// Coordinator sequences fetching, parsing, assembly, and ledger updates for
// a set of work units. It is single-threaded; the ledger makes interrupted
// passes safe to repeat.
type Coordinator struct {
	cfg       Config
	ledger    store.Ledger
	fetcher   harvest.Fetcher
	parser    harvest.DocketParser
	assembler Assembler
	pauser    harvest.Pauser
	emitter   progress.Emitter
	clock     harvest.Clock
	calendar  harvest.Calendar
	logger    *zap.Logger
}

// New builds a Coordinator. emitter may be nil to disable progress events.
func New(
	cfg Config,
	ledger store.Ledger,
	fetcher harvest.Fetcher,
	parser harvest.DocketParser,
	assembler Assembler,
	pauser harvest.Pauser,
	emitter progress.Emitter,
	clock harvest.Clock,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		ledger:    ledger,
		fetcher:   fetcher,
		parser:    parser,
		assembler: assembler,
		pauser:    pauser,
		emitter:   emitter,
		clock:     clock,
		calendar:  harvest.NewCalendar(),
		logger:    logger,
	}
}

// HarvestRange harvests every business-day unit between from and to
// (inclusive) across the configured court set.
func (c *Coordinator) HarvestRange(ctx context.Context, from, to time.Time) (Totals, error) {
	return c.HarvestUnits(ctx, c.calendar.Units(from, to, c.cfg.Courts))
}

// HarvestUnits processes the given units in order. A unit's failure is
// recorded in the ledger and never aborts the pass; the only returned error
// is context cancellation.
func (c *Coordinator) HarvestUnits(ctx context.Context, units []harvest.WorkUnit) (Totals, error) {
	var totals Totals
	for i, unit := range units {
		if err := ctx.Err(); err != nil {
			return totals, fmt.Errorf("harvest interrupted: %w", err)
		}

		done, err := c.ledger.IsDone(ctx, unit)
		if err != nil {
			// A broken ledger read makes skip/harvest undecidable; stop
			// rather than risk double work or a missed unit.
			return totals, fmt.Errorf("ledger check %s: %w", unit.Key(), err)
		}
		if done {
			c.logger.Debug("unit already in ledger, skipping", zap.String("unit", unit.Key()))
			c.emit(progress.Event{Stage: progress.StageUnitSkipped, Unit: unit.Key()})
			continue
		}

		c.harvestUnit(ctx, unit, &totals)

		if i < len(units)-1 && c.cfg.UnitDelay > 0 {
			c.pauser.Pause(ctx, c.cfg.UnitDelay)
		}
	}
	return totals, nil
}

// harvestUnit fetches and assembles one unit, then records the outcome. All
// failures end up in the ledger as error: entries.
func (c *Coordinator) harvestUnit(ctx context.Context, unit harvest.WorkUnit, totals *Totals) {
	started := c.clock.Now()
	c.emit(progress.Event{Stage: progress.StageUnitStart, Unit: unit.Key()})

	status, outcome := c.processUnit(ctx, unit)
	if err := c.ledger.RecordResult(ctx, unit, outcome.Cases, outcome.Files, status); err != nil {
		// The unit's work is done but unrecorded; the next pass redoes it
		// and the artifact-level checks make that cheap.
		c.logger.Error("ledger write failed",
			zap.String("unit", unit.Key()), zap.String("status", status), zap.Error(err))
	}

	totals.Sources++
	totals.Cases += outcome.Cases
	totals.Files += outcome.Files

	c.emit(progress.Event{
		Stage:  progress.StageUnitDone,
		Unit:   unit.Key(),
		Status: status,
		Cases:  outcome.Cases,
		Files:  outcome.Files,
		Dur:    c.clock.Now().Sub(started),
	})
	c.logger.Info("unit recorded",
		zap.String("unit", unit.Key()),
		zap.String("status", status),
		zap.Int("cases", outcome.Cases),
		zap.Int("files", outcome.Files))
}

func (c *Coordinator) processUnit(ctx context.Context, unit harvest.WorkUnit) (string, harvest.UnitOutcome) {
	var outcome harvest.UnitOutcome

	page, err := c.fetcher.Fetch(ctx, docket.DocketURL(c.cfg.BaseURL, unit))
	if err != nil {
		c.logger.Warn("docket fetch failed", zap.String("unit", unit.Key()), zap.Error(err))
		return store.ErrorStatus(fmt.Sprintf("fetch docket: %v", err)), outcome
	}

	groups, err := c.parser.Parse(unit, page)
	if err != nil {
		c.logger.Warn("docket parse failed", zap.String("unit", unit.Key()), zap.Error(err))
		return store.ErrorStatus(fmt.Sprintf("parse docket: %v", err)), outcome
	}
	if len(groups) == 0 {
		return store.StatusNoItems, outcome
	}

	outcome.Cases = len(groups)
	for i, group := range groups {
		if ctx.Err() != nil {
			return store.ErrorStatus("harvest interrupted"), outcome
		}
		artifact, err := c.assembler.Assemble(ctx, unit, group)
		if err != nil {
			c.logger.Warn("case assembly failed",
				zap.String("unit", unit.Key()),
				zap.String("case", group.Number),
				zap.Error(err))
			c.emit(progress.Event{
				Stage: progress.StageCaseFailed,
				Unit:  unit.Key(),
				Case:  group.Number,
				Note:  err.Error(),
			})
		} else {
			outcome.Files++
			c.emit(progress.Event{
				Stage: progress.StageCaseAssembled,
				Unit:  unit.Key(),
				Case:  group.Number,
				Cases: artifact.Merged,
				Files: 1,
			})
		}
		if i < len(groups)-1 && c.cfg.CaseDelay > 0 {
			c.pauser.Pause(ctx, c.cfg.CaseDelay)
		}
	}
	if outcome.Files == 0 {
		// Every assembly failed; an error entry keeps the unit retryable.
		return store.ErrorStatus("no cases assembled"), outcome
	}
	return store.StatusCompleted, outcome
}

func (c *Coordinator) emit(evt progress.Event) {
	if c.emitter == nil {
		return
	}
	evt.TS = c.clock.Now()
	c.emitter.Emit(evt)
}
