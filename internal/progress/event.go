package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the kind of milestone an Event records.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StagePhaseChange   Stage = "PHASE_CHANGE"
	StageRunDone       Stage = "RUN_DONE"
	StageRunError      Stage = "RUN_ERROR"
	StageUnitStart     Stage = "UNIT_START"
	StageUnitDone      Stage = "UNIT_DONE"
	StageUnitSkipped   Stage = "UNIT_SKIPPED"
	StageCaseAssembled Stage = "CASE_ASSEMBLED"
	StageCaseFailed    Stage = "CASE_FAILED"
)

// Event captures a single pipeline milestone.
type Event struct {
	// RunID identifies the run the event belongs to. Empty for harvest-only
	// invocations that have no run record.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Unit is the work-unit key (e.g. "2025-02-04_03") for unit and case
	// events.
	Unit string
	// Case is the case number for case events.
	Case string
	// Phase carries the new phase for PHASE_CHANGE events.
	Phase string
	// Status carries the recorded ledger status for UNIT_DONE events.
	Status string
	// Cases and Files carry counts: per unit for UNIT_DONE, fragments merged
	// and files produced for CASE_ASSEMBLED, run totals for RUN_DONE.
	Cases int
	Files int
	// Dur captures elapsed time for unit and run completions.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
		if e.RunID == "" {
			return errors.New("run events require a run id")
		}
	case StagePhaseChange:
		if e.RunID == "" {
			return errors.New("phase change requires a run id")
		}
		if e.Phase == "" {
			return errors.New("phase change requires a phase")
		}
	case StageUnitStart, StageUnitDone, StageUnitSkipped:
		if e.Unit == "" {
			return errors.New("unit events require a unit key")
		}
	case StageCaseAssembled, StageCaseFailed:
		if e.Unit == "" {
			return errors.New("case events require a unit key")
		}
		if e.Case == "" {
			return errors.New("case events require a case number")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
