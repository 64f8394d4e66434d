package emitter

import (
	"context"
	"sync"

	"github.com/alexxgorcea9/primepass/internal/domain"
)

// MemoryEmitter records emitted events in memory, assigning Seq per event ID.
// Used in tests and single-process deployments without a broker.
type MemoryEmitter struct {
	mu     sync.Mutex
	seq    *sequencer
	events []domain.ChangeEvent
}

// NewMemoryEmitter creates a new in-memory emitter
func NewMemoryEmitter() *MemoryEmitter {
	return &MemoryEmitter{seq: newSequencer()}
}

var _ Emitter = (*MemoryEmitter)(nil)

// Emit records the event
func (e *MemoryEmitter) Emit(ctx context.Context, event domain.ChangeEvent) error {
	e.seq.assign(&event)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

// Close is a no-op
func (e *MemoryEmitter) Close() error {
	return nil
}

// Events returns a copy of everything emitted so far
func (e *MemoryEmitter) Events() []domain.ChangeEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.ChangeEvent(nil), e.events...)
}

// EventsFor returns the emitted events for one event ID, in Seq order
func (e *MemoryEmitter) EventsFor(eventID string) []domain.ChangeEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []domain.ChangeEvent
	for _, ev := range e.events {
		if ev.EventID == eventID {
			out = append(out, ev)
		}
	}
	return out
}
