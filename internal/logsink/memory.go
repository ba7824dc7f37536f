package logsink

import (
	"context"
	"sync"
)

// Memory is an ephemeral, thread-safe sink that keeps every event it is
// given. It is used for tests and for runs without durable storage.
type Memory struct {
	mu     sync.Mutex
	events []Event
	fail   error
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Append implements Sink.
func (m *Memory) Append(ctx context.Context, ev Event) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return 0, m.fail
	}
	m.events = append(m.events, ev)
	return 1, nil
}

// FailWith makes every later Append return err. A nil err restores normal
// behaviour.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Events returns a copy of the recorded events in append order.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Stream returns the recorded events of one stream.
func (m *Memory) Stream(s Stream) []Event {
	var out []Event
	for _, ev := range m.Events() {
		if ev.Stream == s {
			out = append(out, ev)
		}
	}
	return out
}
