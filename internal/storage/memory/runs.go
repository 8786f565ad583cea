package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/texapp/opinion-harvester/internal/harvest"
	"github.com/texapp/opinion-harvester/internal/store"
)

// Runs keeps run records in a map with creation order preserved.
type Runs struct {
	mu    sync.RWMutex
	runs  map[string]store.Run
	order []string
}

// NewRuns constructs a Runs store.
func NewRuns() *Runs {
	return &Runs{runs: make(map[string]store.Run)}
}

// Create appends a new run record.
func (r *Runs) Create(_ context.Context, run store.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[run.ID]; exists {
		return errRunExists
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}
	r.runs[run.ID] = run
	r.order = append(r.order, run.ID)
	return nil
}

// Get loads one run or returns store.ErrNotFound.
func (r *Runs) Get(_ context.Context, id string) (store.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

// SetPhase updates the run's phase.
func (r *Runs) SetPhase(_ context.Context, id string, phase store.Phase) error {
	return r.update(id, func(run *store.Run) {
		run.Phase = phase
	})
}

// SetCounters updates the aggregate counters.
func (r *Runs) SetCounters(_ context.Context, id string, sources, cases, files int) error {
	return r.update(id, func(run *store.Run) {
		run.SourcesChecked = sources
		run.CasesFound = cases
		run.FilesProduced = files
	})
}

// SetReportPath records the generated report location.
func (r *Runs) SetReportPath(_ context.Context, id, path string) error {
	return r.update(id, func(run *store.Run) {
		run.ReportPath = path
	})
}

// Fail moves the run to the failed variant of phase and stores the detail.
func (r *Runs) Fail(_ context.Context, id string, phase store.Phase, detail string) error {
	return r.update(id, func(run *store.Run) {
		run.Phase = store.FailedPhase(phase)
		run.Error = detail
	})
}

// List returns up to limit runs, newest first.
func (r *Runs) List(_ context.Context, limit int) ([]store.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]store.Run, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.runs[r.order[i]])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ListByPeriod returns runs targeting the given docket date, newest first.
func (r *Runs) ListByPeriod(_ context.Context, period time.Time) ([]store.Run, error) {
	day := harvest.Day(period)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []store.Run
	for i := len(r.order) - 1; i >= 0; i-- {
		run := r.runs[r.order[i]]
		if harvest.Day(run.Period).Equal(day) {
			out = append(out, run)
		}
	}
	return out, nil
}

// ListUnfinished returns runs with non-terminal phases, oldest first.
func (r *Runs) ListUnfinished(_ context.Context) ([]store.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []store.Run
	for _, id := range r.order {
		run := r.runs[id]
		if !run.Phase.Terminal() {
			out = append(out, run)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *Runs) update(id string, apply func(*store.Run)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	apply(&run)
	run.UpdatedAt = time.Now().UTC()
	r.runs[id] = run
	return nil
}

var _ store.Runs = (*Runs)(nil)
