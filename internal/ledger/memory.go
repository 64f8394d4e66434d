package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/alexxgorcea9/primepass/internal/domain"
)

// counter is one capacity/used pair with its own lock, so contention on one
// tier never delays another.
type counter struct {
	mu       sync.Mutex
	capacity int64
	used     int64
}

// MemoryLedger is an in-process Ledger backed by per-key counters. The
// dual-counter reserve locks both counters in deterministic key order, which
// keeps the increment all-or-nothing without a process-wide lock.
type MemoryLedger struct {
	mu       sync.RWMutex // guards the map, not the counters
	counters map[string]*counter
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{counters: make(map[string]*counter)}
}

// Register creates (or resets) a counter with the given capacity.
func (l *MemoryLedger) Register(ctx context.Context, key string, capacity int64) error {
	if capacity < 0 {
		return domain.ErrNegativeCapacity
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counters[key] = &counter{capacity: capacity}
	return nil
}

// AddCapacity raises or lowers a counter's capacity by delta.
func (l *MemoryLedger) AddCapacity(ctx context.Context, key string, delta int64) (int64, error) {
	c, err := l.lookup(key)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.capacity + delta
	if next < 0 {
		return c.capacity, domain.ErrNegativeCapacity
	}
	if next < c.used {
		return c.capacity, domain.ErrCapacityInvariant
	}
	c.capacity = next
	return c.capacity, nil
}

// Reserve increments the tier counter and optional wave counter if both have
// room; otherwise neither changes.
func (l *MemoryLedger) Reserve(ctx context.Context, tierKey, waveKey string) (Outcome, error) {
	cs, err := l.lookupAll(tierKey, waveKey)
	if err != nil {
		return OutcomeNoCapacity, err
	}
	lockOrdered(cs)
	defer unlockOrdered(cs)

	for _, c := range cs {
		if c.used >= c.capacity {
			return OutcomeNoCapacity, nil
		}
	}
	for _, c := range cs {
		c.used++
	}
	return OutcomeReserved, nil
}

// Release decrements the tier counter and optional wave counter, floored at
// zero.
func (l *MemoryLedger) Release(ctx context.Context, tierKey, waveKey string) error {
	cs, err := l.lookupAll(tierKey, waveKey)
	if err != nil {
		return err
	}
	lockOrdered(cs)
	defer unlockOrdered(cs)

	for _, c := range cs {
		if c.used > 0 {
			c.used--
		}
	}
	return nil
}

// Snapshot returns the current view of one counter.
func (l *MemoryLedger) Snapshot(ctx context.Context, key string) (Snapshot, error) {
	c, err := l.lookup(key)
	if err != nil {
		return Snapshot{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Capacity: c.capacity, Used: c.used}, nil
}

func (l *MemoryLedger) lookup(key string) (*counter, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.counters[key]
	if !ok {
		return nil, domain.ErrUnknownCounter
	}
	return c, nil
}

// lookupAll resolves the tier counter plus the optional wave counter, sorted
// by key so concurrent dual-reserves always lock in the same order.
func (l *MemoryLedger) lookupAll(tierKey, waveKey string) ([]*counter, error) {
	keys := []string{tierKey}
	if waveKey != "" {
		keys = append(keys, waveKey)
	}
	sort.Strings(keys)

	cs := make([]*counter, 0, len(keys))
	for _, k := range keys {
		c, err := l.lookup(k)
		if err != nil {
			return nil, err
		}
		cs = append(cs, c)
	}
	return cs, nil
}

func lockOrdered(cs []*counter) {
	for _, c := range cs {
		c.mu.Lock()
	}
}

func unlockOrdered(cs []*counter) {
	for i := len(cs) - 1; i >= 0; i-- {
		cs[i].mu.Unlock()
	}
}

// Ensure MemoryLedger implements Ledger
var _ Ledger = (*MemoryLedger)(nil)
