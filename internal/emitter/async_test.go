package emitter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alexxgorcea9/primepass/internal/domain"
	"github.com/alexxgorcea9/primepass/pkg/retry"
)

func changeFor(eventID, regID string) domain.ChangeEvent {
	reg := &domain.Registration{
		ID:      regID,
		EventID: eventID,
		UserID:  "user-1",
		TierID:  "tier-1",
		Status:  domain.RegistrationStatusConfirmed,
	}
	return domain.NewChangeEvent("change-"+regID, domain.ChangeRegistrationConfirmed, reg, domain.CounterSnapshot{})
}

func TestMemoryEmitter_SeqPerEventID(t *testing.T) {
	ctx := context.Background()
	e := NewMemoryEmitter()

	_ = e.Emit(ctx, changeFor("event-a", "r1"))
	_ = e.Emit(ctx, changeFor("event-b", "r2"))
	_ = e.Emit(ctx, changeFor("event-a", "r3"))

	a := e.EventsFor("event-a")
	if len(a) != 2 || a[0].Seq != 1 || a[1].Seq != 2 {
		t.Errorf("event-a seqs = %v, want 1,2", a)
	}
	b := e.EventsFor("event-b")
	if len(b) != 1 || b[0].Seq != 1 {
		t.Errorf("event-b seq = %v, want 1", b)
	}
}

func TestAsyncEmitter_OrderPreservedPerEvent(t *testing.T) {
	ctx := context.Background()
	sink := NewMemoryEmitter()
	e := NewAsyncEmitter(sink, &AsyncEmitterConfig{BufferSize: 64})

	for i := 0; i < 20; i++ {
		if err := e.Emit(ctx, changeFor("event-a", "r")); err != nil {
			t.Fatalf("Emit() error = %v", err)
		}
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	events := sink.EventsFor("event-a")
	if len(events) != 20 {
		t.Fatalf("delivered %d events, want 20", len(events))
	}
	// Seq was assigned by the async layer; the sink must see it ascending.
	for i, ev := range events {
		if ev.Seq != uint64(i+1) {
			t.Fatalf("events[%d].Seq = %d, want %d", i, ev.Seq, i+1)
		}
	}
}

// flakySink fails the first n attempts per event, then delegates.
type flakySink struct {
	mu       sync.Mutex
	failures int
	inner    *MemoryEmitter
}

func (s *flakySink) Emit(ctx context.Context, event domain.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("broker unavailable")
	}
	return s.inner.Emit(ctx, event)
}

func (s *flakySink) Close() error { return nil }

func TestAsyncEmitter_RetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryEmitter()
	sink := &flakySink{failures: 2, inner: inner}

	e := NewAsyncEmitter(sink, &AsyncEmitterConfig{
		BufferSize: 8,
		Retry: &retry.Config{
			MaxRetries:      5,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
			Multiplier:      2.0,
		},
	})

	if err := e.Emit(ctx, changeFor("event-a", "r1")); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	if got := len(inner.Events()); got != 1 {
		t.Errorf("delivered %d events after retries, want 1", got)
	}
}

func TestAsyncEmitter_EmitAfterClose(t *testing.T) {
	e := NewAsyncEmitter(NewMemoryEmitter(), nil)
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if err := e.Emit(context.Background(), changeFor("event-a", "r1")); err == nil {
		t.Error("Emit() after Close() = nil, want error")
	}
}
