package sinks

import (
	"context"
	"sync"

	"github.com/texapp/opinion-harvester/internal/progress"
)

// RecentSink keeps the last N events in memory for the activity endpoint.
// Older events fall off the ring as new ones arrive.
type RecentSink struct {
	mu     sync.RWMutex
	events []progress.Event
	next   int
	filled bool
}

// NewRecentSink builds a ring holding up to capacity events. Non-positive
// capacities default to 256.
func NewRecentSink(capacity int) *RecentSink {
	if capacity <= 0 {
		capacity = 256
	}
	return &RecentSink{events: make([]progress.Event, capacity)}
}

// Consume appends the batch to the ring.
func (s *RecentSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.events[s.next] = evt
		s.next++
		if s.next == len(s.events) {
			s.next = 0
			s.filled = true
		}
	}
	return nil
}

// Recent returns up to limit events, newest first. A non-positive limit
// returns everything held.
func (s *RecentSink) Recent(limit int) []progress.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := s.next
	if s.filled {
		size = len(s.events)
	}
	if limit <= 0 || limit > size {
		limit = size
	}
	out := make([]progress.Event, 0, limit)
	idx := s.next
	for i := 0; i < limit; i++ {
		idx--
		if idx < 0 {
			idx = len(s.events) - 1
		}
		out = append(out, s.events[idx])
	}
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *RecentSink) Close(context.Context) error {
	return nil
}
