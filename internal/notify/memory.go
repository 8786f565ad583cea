package notify

import (
	"context"
	"sync"
)

// Memory records notifications for inspection in tests.
type Memory struct {
	mu       sync.RWMutex
	messages []Message
	// Err, when set, is returned by every Notify call.
	Err error
}

// NewMemory returns an in-memory notifier.
func NewMemory() *Memory {
	return &Memory{}
}

// Notify records the message.
func (m *Memory) Notify(_ context.Context, msg Message) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

// Messages returns a copy of everything notified so far.
func (m *Memory) Messages() []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Message(nil), m.messages...)
}

var _ Notifier = (*Memory)(nil)
