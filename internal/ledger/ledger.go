// Package ledger holds per-tier and per-wave capacity counters and the atomic
// primitives that mutate them. It knows nothing about registrations: the
// counters are pure inventory, and all allocation decisions are made against
// the reserve/release primitives, never against a snapshot read.
package ledger

import (
	"context"
	"fmt"
)

// Outcome is the result of a reserve attempt.
type Outcome string

const (
	// OutcomeReserved means every requested counter was incremented.
	OutcomeReserved Outcome = "reserved"
	// OutcomeNoCapacity means at least one counter was full and none changed.
	OutcomeNoCapacity Outcome = "no_capacity"
)

// Snapshot is a read-only view of one counter. Callers must not base
// allocation decisions on it; only Reserve is race-free.
type Snapshot struct {
	Capacity int64 `json:"capacity"`
	Used     int64 `json:"used"`
}

// Remaining returns the number of unreserved units.
func (s Snapshot) Remaining() int64 {
	return s.Capacity - s.Used
}

// Ledger tracks capacity counters keyed by inventory key (see TierKey and
// WaveKey). Reserve and Release operate on a tier counter plus an optional
// wave counter as a single all-or-nothing step.
type Ledger interface {
	// Register creates (or resets) a counter with the given capacity.
	Register(ctx context.Context, key string, capacity int64) error

	// AddCapacity raises (or lowers) a counter's capacity by delta and
	// returns the new capacity. Used never moves; lowering below used is
	// rejected.
	AddCapacity(ctx context.Context, key string, delta int64) (int64, error)

	// Reserve increments the tier counter and, when waveKey is non-empty,
	// the wave counter, but only if both are strictly below capacity. The
	// increment is all-or-nothing: if either side is full, neither changes
	// and the outcome is OutcomeNoCapacity.
	Reserve(ctx context.Context, tierKey, waveKey string) (Outcome, error)

	// Release decrements the tier counter and, when waveKey is non-empty,
	// the wave counter, floored at zero. It never fails on an empty counter.
	Release(ctx context.Context, tierKey, waveKey string) error

	// Snapshot returns the current view of one counter.
	Snapshot(ctx context.Context, key string) (Snapshot, error)
}

// TierKey returns the ledger key for a tier's counter.
func TierKey(tierID string) string {
	return fmt.Sprintf("tier:availability:%s", tierID)
}

// WaveKey returns the ledger key for a wave's counter.
func WaveKey(waveID string) string {
	return fmt.Sprintf("wave:availability:%s", waveID)
}
