// Package emitter publishes registration change events downstream. Delivery
// is at-least-once; ordering is total per event ID via the Seq field.
package emitter

import (
	"context"
	"sync"

	"github.com/alexxgorcea9/primepass/internal/domain"
)

// Emitter defines the interface for publishing change events
type Emitter interface {
	// Emit publishes a change event
	Emit(ctx context.Context, event domain.ChangeEvent) error
	// Close flushes and releases the emitter
	Close() error
}

// NoOpEmitter is a no-op implementation of Emitter for when the broker is
// disabled
type NoOpEmitter struct{}

// NewNoOpEmitter creates a new no-op emitter
func NewNoOpEmitter() *NoOpEmitter {
	return &NoOpEmitter{}
}

// Emit is a no-op
func (e *NoOpEmitter) Emit(ctx context.Context, event domain.ChangeEvent) error {
	return nil
}

// Close is a no-op
func (e *NoOpEmitter) Close() error {
	return nil
}

// sequencer hands out a monotonically increasing Seq per event ID
type sequencer struct {
	mu   sync.Mutex
	next map[string]uint64
}

func newSequencer() *sequencer {
	return &sequencer{next: make(map[string]uint64)}
}

// assign stamps the event with the next Seq for its event ID
func (s *sequencer) assign(event *domain.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next[event.EventID]++
	event.Seq = s.next[event.EventID]
}
