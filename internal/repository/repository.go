// Package repository defines data access for events, tiers, waves, and
// registrations, with in-memory and PostgreSQL implementations.
package repository

import (
	"context"
	"time"

	"github.com/alexxgorcea9/primepass/internal/domain"
)

// EventRepository defines the interface for event catalog data access
type EventRepository interface {
	// CreateEvent creates a new event
	CreateEvent(ctx context.Context, event *domain.Event) error
	// GetEvent retrieves an event by ID
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
	// CreateTier creates a new tier
	CreateTier(ctx context.Context, tier *domain.Tier) error
	// GetTier retrieves a tier by ID
	GetTier(ctx context.Context, id string) (*domain.Tier, error)
	// ListTiersByEvent lists the tiers of an event
	ListTiersByEvent(ctx context.Context, eventID string) ([]*domain.Tier, error)
	// UpdateTierCapacity persists a tier's new capacity
	UpdateTierCapacity(ctx context.Context, id string, capacity int64) error
	// CreateWave creates a new wave
	CreateWave(ctx context.Context, wave *domain.Wave) error
	// GetWave retrieves a wave by ID
	GetWave(ctx context.Context, id string) (*domain.Wave, error)
	// ListWavesByEvent lists the waves of an event
	ListWavesByEvent(ctx context.Context, eventID string) ([]*domain.Wave, error)
	// UpdateWaveCapacity persists a wave's new capacity
	UpdateWaveCapacity(ctx context.Context, id string, capacity int64) error
	// AdjustEventCounters applies deltas to an event's denormalized
	// registered/waitlist counters, floored at zero
	AdjustEventCounters(ctx context.Context, eventID string, registeredDelta, waitlistDelta int64) error
}

// WaitlistKey identifies one waitlist: the (event, tier, wave) pool its
// members are queued for. WaveID is empty for tier-only registrations.
type WaitlistKey struct {
	EventID string
	TierID  string
	WaveID  string
}

// RegistrationRepository defines the interface for registration data access
type RegistrationRepository interface {
	// Create creates a new registration. A non-empty DedupeKey colliding with
	// another active registration fails atomically with
	// domain.ErrDuplicateRegistration.
	Create(ctx context.Context, reg *domain.Registration) error
	// GetByID retrieves a registration by ID
	GetByID(ctx context.Context, id string) (*domain.Registration, error)
	// Update persists the registration's current state
	Update(ctx context.Context, reg *domain.Registration) error
	// UpdateIfStatus persists the registration only while the stored status
	// still equals from. Returns domain.ErrStaleRegistration when another
	// writer moved the status first, so the caller can re-read and decide
	// again instead of clobbering the newer state.
	UpdateIfStatus(ctx context.Context, reg *domain.Registration, from domain.RegistrationStatus) error
	// MarkCheckedIn records the check-in timestamp exactly once. It returns
	// the stored registration and whether this call performed the transition;
	// a registration that is not confirmed is returned unchanged with false.
	MarkCheckedIn(ctx context.Context, id string, at time.Time) (*domain.Registration, bool, error)
	// NextWaitlisted returns the oldest waitlisted registration for the
	// given tier and wave, ordered by (created_at, id). Returns
	// domain.ErrRegistrationNotFound when the waitlist is empty.
	NextWaitlisted(ctx context.Context, tierID, waveID string) (*domain.Registration, error)
	// CountActiveByUserAndEvent counts non-cancelled registrations a user
	// holds for an event
	CountActiveByUserAndEvent(ctx context.Context, userID, eventID string) (int64, error)
	// CountByTierAndStatus counts registrations of a tier in a status
	CountByTierAndStatus(ctx context.Context, tierID string, status domain.RegistrationStatus) (int64, error)
	// ListByUser lists a user's registrations, newest first
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Registration, error)
	// WaitlistedKeys returns the distinct (event, tier, wave) pools that
	// currently have waitlisted registrations
	WaitlistedKeys(ctx context.Context) ([]WaitlistKey, error)
}
