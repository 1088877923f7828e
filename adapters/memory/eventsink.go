package memory

import (
	"context"
	"sync"

	"github.com/artpar/pulse/domain/event"
	"github.com/artpar/pulse/ports"
)

// EventSink is an in-memory ports.EventSink. Duplicate event IDs are
// ignored, matching the durable adapters.
type EventSink struct {
	mu      sync.RWMutex
	events  []event.Event
	seen    map[string]bool
	writes  int
	failErr error
	closed  bool
}

// NewEventSink creates an empty sink.
func NewEventSink() *EventSink {
	return &EventSink{seen: make(map[string]bool)}
}

// WriteEvents appends events, skipping IDs already stored.
func (s *EventSink) WriteEvents(ctx context.Context, events []event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}

	s.writes++
	for _, e := range events {
		if s.seen[e.ID] {
			continue
		}
		s.seen[e.ID] = true
		s.events = append(s.events, e)
	}
	return nil
}

// HealthCheck reports the simulated failure, if any.
func (s *EventSink) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failErr
}

// Close marks the sink closed.
func (s *EventSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// FailWith makes writes and health checks return err (for testing).
func (s *EventSink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// GetAll returns stored events (for testing).
func (s *EventSink) GetAll() []event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]event.Event(nil), s.events...)
}

// Writes returns the number of successful WriteEvents calls (for testing).
func (s *EventSink) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Closed reports whether Close was called (for testing).
func (s *EventSink) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

var _ ports.EventSink = (*EventSink)(nil)
