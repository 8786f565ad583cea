// Package memory provides in-memory store implementations for development
// and tests. Nothing here survives a restart.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/texapp/opinion-harvester/internal/harvest"
	"github.com/texapp/opinion-harvester/internal/store"
)

// Ledger keeps completion entries in a map, tracking insertion order with a
// sequence counter.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]store.Entry
	seq     map[string]int64
	nextSeq int64
}

// NewLedger constructs a Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		entries: make(map[string]store.Entry),
		seq:     make(map[string]int64),
	}
}

// IsDone reports whether a non-error entry exists for the unit.
func (l *Ledger) IsDone(_ context.Context, unit harvest.WorkUnit) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.entries[unit.Key()]
	if !ok {
		return false, nil
	}
	return !store.IsErrorStatus(entry.Status), nil
}

// RecordResult inserts or overwrites the unit's entry.
func (l *Ledger) RecordResult(_ context.Context, unit harvest.WorkUnit, cases, files int, status string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := unit.Key()
	l.entries[key] = store.Entry{
		Key:        key,
		Court:      unit.Court,
		Date:       unit.Date,
		Status:     status,
		Cases:      cases,
		Files:      files,
		RecordedAt: time.Now().UTC(),
	}
	l.nextSeq++
	l.seq[key] = l.nextSeq
	return nil
}

// Entry loads one entry or returns store.ErrNotFound.
func (l *Ledger) Entry(_ context.Context, unit harvest.WorkUnit) (store.Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.entries[unit.Key()]
	if !ok {
		return store.Entry{}, store.ErrNotFound
	}
	return entry, nil
}

// EntriesByDate lists entries for one docket date in court order.
func (l *Ledger) EntriesByDate(_ context.Context, date time.Time) ([]store.Entry, error) {
	day := harvest.Day(date)
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []store.Entry
	for _, entry := range l.entries {
		if entry.Date.Equal(day) {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Court < out[j].Court })
	return out, nil
}

// LastCompleted returns the most recently recorded non-error unit.
func (l *Ledger) LastCompleted(_ context.Context) (harvest.WorkUnit, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var (
		best    store.Entry
		bestSeq int64
		found   bool
	)
	for key, entry := range l.entries {
		if store.IsErrorStatus(entry.Status) {
			continue
		}
		if seq := l.seq[key]; seq > bestSeq {
			best, bestSeq, found = entry, seq, true
		}
	}
	if !found {
		return harvest.WorkUnit{}, false, nil
	}
	return harvest.WorkUnit{Court: best.Court, Date: best.Date}, true, nil
}

var _ store.Ledger = (*Ledger)(nil)

// errRunExists guards against duplicate run creation.
var errRunExists = errors.New("run already exists")
