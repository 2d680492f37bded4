package eventbus

import (
	"context"
	"sync"
	"syncademic/internal/events"
	"testing"
)

// MockBus records published events instead of dispatching them.
type MockBus struct {
	mu     sync.Mutex
	events []events.Event
}

func NewMock() *MockBus {
	return &MockBus{}
}

func (m *MockBus) Publish(_ context.Context, ev events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of everything published so far.
func (m *MockBus) Events() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.Event(nil), m.events...)
}

// OfType returns the published events with the given tag, in order.
func (m *MockBus) OfType(t events.Type) []events.Event {
	var out []events.Event
	for _, ev := range m.Events() {
		if ev.EventType() == t {
			out = append(out, ev)
		}
	}
	return out
}

// Reset forgets recorded events.
func (m *MockBus) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

// AssertPublished fails the test unless exactly n events of type t were
// published, and returns them.
func (m *MockBus) AssertPublished(tb testing.TB, t events.Type, n int) []events.Event {
	tb.Helper()
	got := m.OfType(t)
	if len(got) != n {
		tb.Fatalf("published %d %s events, want %d (all: %v)", len(got), t, n, m.types())
	}
	return got
}

// AssertNotPublished fails the test if any event of type t was published.
func (m *MockBus) AssertNotPublished(tb testing.TB, t events.Type) {
	tb.Helper()
	if got := m.OfType(t); len(got) != 0 {
		tb.Fatalf("published %d %s events, want none", len(got), t)
	}
}

func (m *MockBus) types() []events.Type {
	var out []events.Type
	for _, ev := range m.Events() {
		out = append(out, ev.EventType())
	}
	return out
}

// Find returns the first published event of type E.
func Find[E events.Event](m *MockBus) (E, bool) {
	for _, ev := range m.Events() {
		if typed, ok := ev.(E); ok {
			return typed, true
		}
	}
	var zero E
	return zero, false
}
