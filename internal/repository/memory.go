package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alexxgorcea9/primepass/internal/domain"
)

// MemoryEventRepository implements EventRepository in memory, for tests and
// single-node deployments.
type MemoryEventRepository struct {
	mu     sync.RWMutex
	events map[string]*domain.Event
	tiers  map[string]*domain.Tier
	waves  map[string]*domain.Wave
}

// NewMemoryEventRepository creates an empty in-memory event repository
func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{
		events: make(map[string]*domain.Event),
		tiers:  make(map[string]*domain.Tier),
		waves:  make(map[string]*domain.Wave),
	}
}

var _ EventRepository = (*MemoryEventRepository)(nil)

// CreateEvent creates a new event
func (r *MemoryEventRepository) CreateEvent(ctx context.Context, event *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *event
	r.events[event.ID] = &cp
	return nil
}

// GetEvent retrieves an event by ID
func (r *MemoryEventRepository) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	event, ok := r.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	cp := *event
	return &cp, nil
}

// CreateTier creates a new tier
func (r *MemoryEventRepository) CreateTier(ctx context.Context, tier *domain.Tier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *tier
	r.tiers[tier.ID] = &cp
	return nil
}

// GetTier retrieves a tier by ID
func (r *MemoryEventRepository) GetTier(ctx context.Context, id string) (*domain.Tier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tier, ok := r.tiers[id]
	if !ok {
		return nil, domain.ErrTierNotFound
	}
	cp := *tier
	return &cp, nil
}

// ListTiersByEvent lists the tiers of an event
func (r *MemoryEventRepository) ListTiersByEvent(ctx context.Context, eventID string) ([]*domain.Tier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var tiers []*domain.Tier
	for _, tier := range r.tiers {
		if tier.EventID == eventID {
			cp := *tier
			tiers = append(tiers, &cp)
		}
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].ID < tiers[j].ID })
	return tiers, nil
}

// UpdateTierCapacity persists a tier's new capacity
func (r *MemoryEventRepository) UpdateTierCapacity(ctx context.Context, id string, capacity int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tier, ok := r.tiers[id]
	if !ok {
		return domain.ErrTierNotFound
	}
	tier.Capacity = capacity
	return nil
}

// CreateWave creates a new wave
func (r *MemoryEventRepository) CreateWave(ctx context.Context, wave *domain.Wave) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *wave
	cp.TierIDs = append([]string(nil), wave.TierIDs...)
	r.waves[wave.ID] = &cp
	return nil
}

// GetWave retrieves a wave by ID
func (r *MemoryEventRepository) GetWave(ctx context.Context, id string) (*domain.Wave, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wave, ok := r.waves[id]
	if !ok {
		return nil, domain.ErrWaveNotFound
	}
	cp := *wave
	cp.TierIDs = append([]string(nil), wave.TierIDs...)
	return &cp, nil
}

// ListWavesByEvent lists the waves of an event
func (r *MemoryEventRepository) ListWavesByEvent(ctx context.Context, eventID string) ([]*domain.Wave, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var waves []*domain.Wave
	for _, wave := range r.waves {
		if wave.EventID == eventID {
			cp := *wave
			cp.TierIDs = append([]string(nil), wave.TierIDs...)
			waves = append(waves, &cp)
		}
	}
	sort.Slice(waves, func(i, j int) bool { return waves[i].ID < waves[j].ID })
	return waves, nil
}

// UpdateWaveCapacity persists a wave's new capacity
func (r *MemoryEventRepository) UpdateWaveCapacity(ctx context.Context, id string, capacity int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	wave, ok := r.waves[id]
	if !ok {
		return domain.ErrWaveNotFound
	}
	wave.Capacity = capacity
	return nil
}

// AdjustEventCounters applies deltas to an event's denormalized counters
func (r *MemoryEventRepository) AdjustEventCounters(ctx context.Context, eventID string, registeredDelta, waitlistDelta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[eventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	event.RegisteredCount += registeredDelta
	if event.RegisteredCount < 0 {
		event.RegisteredCount = 0
	}
	event.WaitlistCount += waitlistDelta
	if event.WaitlistCount < 0 {
		event.WaitlistCount = 0
	}
	return nil
}

// MemoryRegistrationRepository implements RegistrationRepository in memory
type MemoryRegistrationRepository struct {
	mu   sync.RWMutex
	regs map[string]*domain.Registration
}

// NewMemoryRegistrationRepository creates an empty in-memory registration repository
func NewMemoryRegistrationRepository() *MemoryRegistrationRepository {
	return &MemoryRegistrationRepository{
		regs: make(map[string]*domain.Registration),
	}
}

var _ RegistrationRepository = (*MemoryRegistrationRepository)(nil)

// Create creates a new registration. The dedupe check and the insert happen
// under one lock so two racing creates cannot both pass it.
func (r *MemoryRegistrationRepository) Create(ctx context.Context, reg *domain.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg.DedupeKey != "" {
		for _, existing := range r.regs {
			if existing.DedupeKey == reg.DedupeKey && !existing.IsCancelled() {
				return domain.ErrDuplicateRegistration
			}
		}
	}
	cp := *reg
	r.regs[reg.ID] = &cp
	return nil
}

// GetByID retrieves a registration by ID
func (r *MemoryRegistrationRepository) GetByID(ctx context.Context, id string) (*domain.Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regs[id]
	if !ok {
		return nil, domain.ErrRegistrationNotFound
	}
	cp := *reg
	return &cp, nil
}

// Update persists the registration's current state
func (r *MemoryRegistrationRepository) Update(ctx context.Context, reg *domain.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.regs[reg.ID]; !ok {
		return domain.ErrRegistrationNotFound
	}
	cp := *reg
	r.regs[reg.ID] = &cp
	return nil
}

// UpdateIfStatus persists the registration only while the stored status still
// equals from
func (r *MemoryRegistrationRepository) UpdateIfStatus(ctx context.Context, reg *domain.Registration, from domain.RegistrationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.regs[reg.ID]
	if !ok {
		return domain.ErrRegistrationNotFound
	}
	if stored.Status != from {
		return domain.ErrStaleRegistration
	}
	cp := *reg
	r.regs[reg.ID] = &cp
	return nil
}

// MarkCheckedIn records the check-in timestamp exactly once
func (r *MemoryRegistrationRepository) MarkCheckedIn(ctx context.Context, id string, at time.Time) (*domain.Registration, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.regs[id]
	if !ok {
		return nil, false, domain.ErrRegistrationNotFound
	}
	first := stored.IsConfirmed() && !stored.CheckedIn
	if first {
		if err := stored.MarkCheckedIn(at); err != nil {
			return nil, false, err
		}
	}
	cp := *stored
	return &cp, first, nil
}

// NextWaitlisted returns the oldest waitlisted registration for the pool
func (r *MemoryRegistrationRepository) NextWaitlisted(ctx context.Context, tierID, waveID string) (*domain.Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var oldest *domain.Registration
	for _, reg := range r.regs {
		if reg.Status != domain.RegistrationStatusWaitlisted {
			continue
		}
		if reg.TierID != tierID || reg.WaveID != waveID {
			continue
		}
		if oldest == nil || earlier(reg, oldest) {
			oldest = reg
		}
	}
	if oldest == nil {
		return nil, domain.ErrRegistrationNotFound
	}
	cp := *oldest
	return &cp, nil
}

// earlier orders registrations by (created_at, id) for deterministic FIFO
func earlier(a, b *domain.Registration) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// CountActiveByUserAndEvent counts non-cancelled registrations a user holds
func (r *MemoryRegistrationRepository) CountActiveByUserAndEvent(ctx context.Context, userID, eventID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, reg := range r.regs {
		if reg.UserID == userID && reg.EventID == eventID && reg.IsActive() {
			count++
		}
	}
	return count, nil
}

// CountByTierAndStatus counts registrations of a tier in a status
func (r *MemoryRegistrationRepository) CountByTierAndStatus(ctx context.Context, tierID string, status domain.RegistrationStatus) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, reg := range r.regs {
		if reg.TierID == tierID && reg.Status == status {
			count++
		}
	}
	return count, nil
}

// ListByUser lists a user's registrations, newest first
func (r *MemoryRegistrationRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var regs []*domain.Registration
	for _, reg := range r.regs {
		if reg.UserID == userID {
			cp := *reg
			regs = append(regs, &cp)
		}
	}
	sort.Slice(regs, func(i, j int) bool { return earlier(regs[j], regs[i]) })

	if offset >= len(regs) {
		return nil, nil
	}
	regs = regs[offset:]
	if limit > 0 && limit < len(regs) {
		regs = regs[:limit]
	}
	return regs, nil
}

// WaitlistedKeys returns the distinct pools with waitlisted registrations
func (r *MemoryRegistrationRepository) WaitlistedKeys(ctx context.Context) ([]WaitlistKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[WaitlistKey]struct{})
	for _, reg := range r.regs {
		if reg.Status != domain.RegistrationStatusWaitlisted {
			continue
		}
		seen[WaitlistKey{EventID: reg.EventID, TierID: reg.TierID, WaveID: reg.WaveID}] = struct{}{}
	}

	keys := make([]WaitlistKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].TierID != keys[j].TierID {
			return keys[i].TierID < keys[j].TierID
		}
		return keys[i].WaveID < keys[j].WaveID
	})
	return keys, nil
}
