// Package allocation serializes capacity decisions per inventory pool and
// drives the confirm-or-waitlist outcome for every registration.
package allocation

import (
	"context"
	"sort"
	"sync"

	"github.com/alexxgorcea9/primepass/internal/domain"
)

// KeyedMutex provides per-key mutual exclusion with context-bounded waits.
// Entries are refcounted and removed once the last waiter leaves, so the map
// does not grow with the key space.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	ch   chan struct{} // capacity 1; holding the token means holding the lock
	refs int
}

// NewKeyedMutex creates an empty keyed mutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*lockEntry)}
}

// Acquire locks the key, waiting until the lock is free or ctx ends. On
// success the returned function releases the lock. A context deadline maps to
// domain.ErrAllocationTimeout.
func (m *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	entry, ok := m.locks[key]
	if !ok {
		entry = &lockEntry{ch: make(chan struct{}, 1)}
		m.locks[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
		return func() {
			<-entry.ch
			m.unref(key, entry)
		}, nil
	case <-ctx.Done():
		m.unref(key, entry)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, domain.ErrAllocationTimeout
		}
		return nil, ctx.Err()
	}
}

// unref drops one reference and removes the entry when nobody uses it
func (m *KeyedMutex) unref(key string, entry *lockEntry) {
	m.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}

// AcquireMany locks all keys in sorted order, which prevents deadlock between
// callers locking overlapping sets. Duplicates and empty keys are skipped. On
// failure every lock taken so far is released.
func (m *KeyedMutex) AcquireMany(ctx context.Context, keys ...string) (func(), error) {
	unique := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}
	sort.Strings(unique)

	releases := make([]func(), 0, len(unique))
	for _, key := range unique {
		release, err := m.Acquire(ctx, key)
		if err != nil {
			for i := len(releases) - 1; i >= 0; i-- {
				releases[i]()
			}
			return nil, err
		}
		releases = append(releases, release)
	}

	return func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}, nil
}
