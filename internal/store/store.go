// Package store declares interfaces for persisting work-unit completion and
// run state. Implementations live in other packages; this package must not
// import database drivers or concrete clients.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/texapp/opinion-harvester/internal/harvest"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Ledger entry statuses. Error entries use the "error:" prefix with a detail
// string appended.
const (
	StatusCompleted   = "completed"
	StatusNoItems     = "no_items"
	statusErrorPrefix = "error:"
)

// ErrorStatus renders the ledger status for a failed unit.
func ErrorStatus(detail string) string {
	return statusErrorPrefix + detail
}

// IsErrorStatus reports whether status records a failure. Error entries do
// not block a retry on a later pass.
func IsErrorStatus(status string) bool {
	return strings.HasPrefix(status, statusErrorPrefix)
}

// Entry is one persisted completion record, keyed by work-unit key.
type Entry struct {
	// Key is harvest.WorkUnit.Key(), e.g. "2025-02-04_03".
	Key string
	// Court and Date denormalize the key for queries.
	Court int
	Date  time.Time
	// Status is completed, no_items, or error:<detail>.
	Status string
	// Cases counts the case groups found; Files the artifacts produced.
	Cases int
	Files int
	// RecordedAt is when the entry was written.
	RecordedAt time.Time
}

// Ledger is the durable record of which work units are finished. It is the
// only signal the coordinator consults when deciding skip versus harvest,
// and every write must be durable before the call returns.
type Ledger interface {
	// IsDone reports whether a non-error entry exists for the unit.
	IsDone(ctx context.Context, unit harvest.WorkUnit) (bool, error)
	// RecordResult inserts or overwrites the unit's entry.
	RecordResult(ctx context.Context, unit harvest.WorkUnit, cases, files int, status string) error
	// Entry loads one entry or returns ErrNotFound.
	Entry(ctx context.Context, unit harvest.WorkUnit) (Entry, error)
	// EntriesByDate lists entries for one docket date in court order.
	EntriesByDate(ctx context.Context, date time.Time) ([]Entry, error)
	// LastCompleted returns the most recently recorded non-error unit in
	// insertion order, or ok=false when none exists.
	LastCompleted(ctx context.Context) (harvest.WorkUnit, bool, error)
}

// Phase is a run's position in the pipeline lifecycle.
type Phase string

// Pipeline phases. Terminal phases are completed, no_items, and the
// per-phase failure states; resuming is a transient re-entry marker.
const (
	PhasePending          Phase = "pending"
	PhaseHarvesting       Phase = "harvesting"
	PhaseProcessing       Phase = "processing"
	PhaseReporting        Phase = "reporting"
	PhaseNotifying        Phase = "notifying"
	PhaseResuming         Phase = "resuming"
	PhaseCompleted        Phase = "completed"
	PhaseNoItems          Phase = "no_items"
	PhaseHarvestingFailed Phase = "harvesting_failed"
	PhaseProcessingFailed Phase = "processing_failed"
	PhaseReportingFailed  Phase = "reporting_failed"
	PhaseNotifyingFailed  Phase = "notifying_failed"
)

// Terminal reports whether the phase ends a run.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseNoItems:
		return true
	default:
		return p.Failed()
	}
}

// Failed reports whether the phase is a failure terminal.
func (p Phase) Failed() bool {
	switch p {
	case PhaseHarvestingFailed, PhaseProcessingFailed, PhaseReportingFailed, PhaseNotifyingFailed:
		return true
	default:
		return false
	}
}

// FailedPhase maps a working phase to its failure terminal.
func FailedPhase(p Phase) Phase {
	switch p {
	case PhaseProcessing:
		return PhaseProcessingFailed
	case PhaseReporting:
		return PhaseReportingFailed
	case PhaseNotifying:
		return PhaseNotifyingFailed
	default:
		return PhaseHarvestingFailed
	}
}

// Run is the persisted state of one end-to-end pipeline execution. Records
// are append-only history; fields of the latest state are updated in place.
type Run struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// Period is the docket date the run targets.
	Period time.Time `json:"period"`
	Phase  Phase     `json:"phase"`
	// Aggregate counters rolled up from harvesting.
	SourcesChecked int `json:"sources_checked"`
	CasesFound     int `json:"cases_found"`
	FilesProduced  int `json:"files_produced"`
	// ReportPath records the generated report, when one exists.
	ReportPath string `json:"report_path,omitempty"`
	// Error holds the failure detail for failed terminals.
	Error string `json:"error,omitempty"`
}

// Runs persists run records.
type Runs interface {
	// Create appends a new run record.
	Create(ctx context.Context, run Run) error
	// Get loads one run or returns ErrNotFound.
	Get(ctx context.Context, id string) (Run, error)
	// SetPhase updates the run's phase. Phase transitions are persisted
	// before the phase's work begins.
	SetPhase(ctx context.Context, id string, phase Phase) error
	// SetCounters updates the aggregate counters.
	SetCounters(ctx context.Context, id string, sources, cases, files int) error
	// SetReportPath records the generated report location.
	SetReportPath(ctx context.Context, id, path string) error
	// Fail moves the run to a failure terminal with its detail string.
	Fail(ctx context.Context, id string, phase Phase, detail string) error
	// List returns up to limit runs, newest first.
	List(ctx context.Context, limit int) ([]Run, error)
	// ListByPeriod returns runs targeting the given docket date, newest
	// first.
	ListByPeriod(ctx context.Context, period time.Time) ([]Run, error)
	// ListUnfinished returns runs whose phase is non-terminal, oldest first.
	ListUnfinished(ctx context.Context) ([]Run, error)
}
