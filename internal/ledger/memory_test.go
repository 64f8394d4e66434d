package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/alexxgorcea9/primepass/internal/domain"
)

func TestMemoryLedger_ReserveUntilFull(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	tier := TierKey("tier-1")
	if err := l.Register(ctx, tier, 2); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		outcome, err := l.Reserve(ctx, tier, "")
		if err != nil {
			t.Fatalf("Reserve() #%d error = %v", i, err)
		}
		if outcome != OutcomeReserved {
			t.Fatalf("Reserve() #%d = %v, want reserved", i, outcome)
		}
	}

	outcome, err := l.Reserve(ctx, tier, "")
	if err != nil {
		t.Fatalf("Reserve() over capacity error = %v", err)
	}
	if outcome != OutcomeNoCapacity {
		t.Errorf("Reserve() over capacity = %v, want no_capacity", outcome)
	}

	snap, err := l.Snapshot(ctx, tier)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Used != 2 || snap.Capacity != 2 {
		t.Errorf("Snapshot() = %+v, want used=2 capacity=2", snap)
	}
}

func TestMemoryLedger_DualCounterAllOrNothing(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	tier := TierKey("tier-1")
	wave := WaveKey("wave-1")
	if err := l.Register(ctx, tier, 5); err != nil {
		t.Fatal(err)
	}
	if err := l.Register(ctx, wave, 1); err != nil {
		t.Fatal(err)
	}

	outcome, err := l.Reserve(ctx, tier, wave)
	if err != nil || outcome != OutcomeReserved {
		t.Fatalf("Reserve() = %v, %v; want reserved", outcome, err)
	}

	// Wave is now full: tier has room but the reservation must not touch
	// either counter.
	outcome, err = l.Reserve(ctx, tier, wave)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if outcome != OutcomeNoCapacity {
		t.Fatalf("Reserve() = %v, want no_capacity", outcome)
	}

	tierSnap, _ := l.Snapshot(ctx, tier)
	if tierSnap.Used != 1 {
		t.Errorf("tier used = %d after failed dual reserve, want 1", tierSnap.Used)
	}
	waveSnap, _ := l.Snapshot(ctx, wave)
	if waveSnap.Used != 1 {
		t.Errorf("wave used = %d, want 1", waveSnap.Used)
	}
}

func TestMemoryLedger_ReleaseFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	tier := TierKey("tier-1")
	_ = l.Register(ctx, tier, 3)

	if err := l.Release(ctx, tier, ""); err != nil {
		t.Fatalf("Release() on empty counter error = %v", err)
	}
	snap, _ := l.Snapshot(ctx, tier)
	if snap.Used != 0 {
		t.Errorf("used = %d after floor release, want 0", snap.Used)
	}
}

func TestMemoryLedger_UnknownCounter(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	if _, err := l.Reserve(ctx, TierKey("ghost"), ""); err != domain.ErrUnknownCounter {
		t.Errorf("Reserve() unknown counter error = %v, want ErrUnknownCounter", err)
	}
	if _, err := l.Snapshot(ctx, TierKey("ghost")); err != domain.ErrUnknownCounter {
		t.Errorf("Snapshot() unknown counter error = %v, want ErrUnknownCounter", err)
	}
}

func TestMemoryLedger_AddCapacity(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	tier := TierKey("tier-1")
	_ = l.Register(ctx, tier, 1)
	if _, err := l.Reserve(ctx, tier, ""); err != nil {
		t.Fatal(err)
	}

	// Cannot shrink below used.
	if _, err := l.AddCapacity(ctx, tier, -1); err != domain.ErrCapacityInvariant {
		t.Errorf("AddCapacity(-1) error = %v, want ErrCapacityInvariant", err)
	}

	next, err := l.AddCapacity(ctx, tier, 4)
	if err != nil {
		t.Fatalf("AddCapacity() error = %v", err)
	}
	if next != 5 {
		t.Errorf("new capacity = %d, want 5", next)
	}
}

func TestMemoryLedger_AddCapacityBelowZero(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	tier := TierKey("tier-1")
	_ = l.Register(ctx, tier, 1)

	// Nothing is used, so the violated rule is the zero floor, not the
	// used-count floor.
	if _, err := l.AddCapacity(ctx, tier, -2); err != domain.ErrNegativeCapacity {
		t.Errorf("AddCapacity(-2) error = %v, want ErrNegativeCapacity", err)
	}
}

// TestMemoryLedger_ConcurrentReserve is the core overselling property: N
// concurrent reservations against capacity C yield exactly C successes no
// matter the interleaving.
func TestMemoryLedger_ConcurrentReserve(t *testing.T) {
	const capacity = 25
	const attempts = 200

	ctx := context.Background()
	l := NewMemoryLedger()
	tier := TierKey("hot-tier")
	wave := WaveKey("hot-wave")
	_ = l.Register(ctx, tier, capacity)
	_ = l.Register(ctx, wave, capacity)

	var wg sync.WaitGroup
	outcomes := make(chan Outcome, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := l.Reserve(ctx, tier, wave)
			if err != nil {
				t.Errorf("Reserve() error = %v", err)
				return
			}
			outcomes <- outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	reserved := 0
	for o := range outcomes {
		if o == OutcomeReserved {
			reserved++
		}
	}
	if reserved != capacity {
		t.Errorf("reserved = %d, want exactly %d", reserved, capacity)
	}

	snap, _ := l.Snapshot(ctx, tier)
	if snap.Used != capacity {
		t.Errorf("tier used = %d, want %d", snap.Used, capacity)
	}
	if snap.Used > snap.Capacity {
		t.Errorf("invariant violated: used %d > capacity %d", snap.Used, snap.Capacity)
	}
}
