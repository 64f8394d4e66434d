package allocation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alexxgorcea9/primepass/internal/domain"
	"github.com/alexxgorcea9/primepass/internal/emitter"
	"github.com/alexxgorcea9/primepass/internal/ledger"
	"github.com/alexxgorcea9/primepass/internal/repository"
	"github.com/alexxgorcea9/primepass/pkg/logger"
)

// Coordinator serializes allocation per inventory pool. Every confirm,
// waitlist, cancel, and promotion for a (tier, wave) pair runs under the
// pool's locks, so counter reads and registration writes cannot interleave.
// Status writes are conditional on the status the coordinator observed, so a
// writer in another process (or one holding a stale copy) loses the race
// cleanly instead of double-applying a transition.
type Coordinator struct {
	ledger  ledger.Ledger
	events  repository.EventRepository
	regs    repository.RegistrationRepository
	emitter emitter.Emitter
	locks   *KeyedMutex
	timeout time.Duration
}

// CoordinatorConfig tunes the coordinator
type CoordinatorConfig struct {
	// AllocationTimeout bounds the wait for the pool locks
	AllocationTimeout time.Duration
}

// NewCoordinator creates a Coordinator
func NewCoordinator(l ledger.Ledger, events repository.EventRepository, regs repository.RegistrationRepository, em emitter.Emitter, cfg *CoordinatorConfig) *Coordinator {
	timeout := 5 * time.Second
	if cfg != nil && cfg.AllocationTimeout > 0 {
		timeout = cfg.AllocationTimeout
	}
	return &Coordinator{
		ledger:  l,
		events:  events,
		regs:    regs,
		emitter: em,
		locks:   NewKeyedMutex(),
		timeout: timeout,
	}
}

// lockKeys returns the pool lock keys for a tier and optional wave. Locking
// the wave key too serializes registrations from different tiers that share
// one wave pool.
func lockKeys(tierID, waveID string) []string {
	keys := []string{ledger.TierKey(tierID)}
	if waveID != "" {
		keys = append(keys, ledger.WaveKey(waveID))
	}
	return keys
}

// acquire takes the pool locks with the coordinator's timeout
func (c *Coordinator) acquire(ctx context.Context, tierID, waveID string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.locks.AcquireMany(lockCtx, lockKeys(tierID, waveID)...)
}

// Allocate decides a pending registration: confirmed when the pool has room,
// waitlisted otherwise. The decided status is persisted and emitted before
// the pool locks are released. If another writer already moved the
// registration out of pending, the stored decision wins and is returned.
func (c *Coordinator) Allocate(ctx context.Context, reg *domain.Registration) (domain.RegistrationStatus, error) {
	release, err := c.acquire(ctx, reg.TierID, reg.WaveID)
	if err != nil {
		return "", err
	}
	defer release()

	tierKey := ledger.TierKey(reg.TierID)
	waveKey := ""
	if reg.WaveID != "" {
		waveKey = ledger.WaveKey(reg.WaveID)
	}

	outcome, err := c.ledger.Reserve(ctx, tierKey, waveKey)
	if err != nil {
		return "", err
	}

	if outcome == ledger.OutcomeNoCapacity {
		if err := reg.Waitlist(); err != nil {
			return "", err
		}
		err := c.regs.UpdateIfStatus(ctx, reg, domain.RegistrationStatusPending)
		if errors.Is(err, domain.ErrStaleRegistration) {
			return c.adoptStored(ctx, reg)
		}
		if err != nil {
			return "", err
		}
		c.adjustEventCounters(ctx, reg.EventID, 0, 1)
		c.emit(ctx, domain.ChangeRegistrationWaitlisted, reg)
		return reg.Status, nil
	}

	if err := reg.Confirm(generateQRCode()); err != nil {
		// The slot was reserved but the registration cannot take it
		c.releaseCounters(ctx, tierKey, waveKey)
		return "", err
	}
	err = c.regs.UpdateIfStatus(ctx, reg, domain.RegistrationStatusPending)
	if errors.Is(err, domain.ErrStaleRegistration) {
		c.releaseCounters(ctx, tierKey, waveKey)
		return c.adoptStored(ctx, reg)
	}
	if err != nil {
		c.releaseCounters(ctx, tierKey, waveKey)
		return "", err
	}

	c.adjustEventCounters(ctx, reg.EventID, 1, 0)
	c.emit(ctx, domain.ChangeRegistrationConfirmed, reg)
	return reg.Status, nil
}

// adoptStored replaces a stale in-memory registration with the stored row and
// returns its status
func (c *Coordinator) adoptStored(ctx context.Context, reg *domain.Registration) (domain.RegistrationStatus, error) {
	fresh, err := c.regs.GetByID(ctx, reg.ID)
	if err != nil {
		return "", err
	}
	*reg = *fresh
	return reg.Status, nil
}

// Release cancels a registration and, when it held confirmed capacity, frees
// the slot and promotes the oldest waitlisted registration of the same pool.
// Cancelling an already cancelled registration is a no-op. The cancel is a
// conditional write: when the caller's copy turns out stale, the stored row
// is re-read and the decision is retried against it, so a slot is never
// released twice for one registration.
func (c *Coordinator) Release(ctx context.Context, reg *domain.Registration, reason string) error {
	if reg.IsCancelled() {
		return nil
	}

	release, err := c.acquire(ctx, reg.TierID, reg.WaveID)
	if err != nil {
		return err
	}
	defer release()

	for {
		prior := reg.Status
		wasConfirmed := reg.IsConfirmed()
		wasWaitlisted := reg.IsWaitlisted()

		if err := reg.Cancel(reason); err != nil {
			return err
		}
		err := c.regs.UpdateIfStatus(ctx, reg, prior)
		if errors.Is(err, domain.ErrStaleRegistration) {
			fresh, gerr := c.regs.GetByID(ctx, reg.ID)
			if gerr != nil {
				return gerr
			}
			*reg = *fresh
			if reg.IsCancelled() {
				return nil
			}
			continue
		}
		if err != nil {
			return err
		}

		tierKey := ledger.TierKey(reg.TierID)
		waveKey := ""
		if reg.WaveID != "" {
			waveKey = ledger.WaveKey(reg.WaveID)
		}

		if wasConfirmed {
			if err := c.ledger.Release(ctx, tierKey, waveKey); err != nil {
				return err
			}
			c.adjustEventCounters(ctx, reg.EventID, -1, 0)
		} else if wasWaitlisted {
			c.adjustEventCounters(ctx, reg.EventID, 0, -1)
		}

		c.emit(ctx, domain.ChangeRegistrationCancelled, reg)

		if wasConfirmed {
			// Best effort: a failed promotion leaves the slot for the sweeper
			if _, err := c.promoteLocked(ctx, reg.TierID, reg.WaveID); err != nil {
				logger.Get().Warn("promotion after release failed",
					zap.String("tier_id", reg.TierID),
					zap.String("wave_id", reg.WaveID),
					zap.Error(err),
				)
			}
		}
		return nil
	}
}

// Promote promotes at most one waitlisted registration of the pool. It
// reports whether a promotion happened.
func (c *Coordinator) Promote(ctx context.Context, key repository.WaitlistKey) (bool, error) {
	release, err := c.acquire(ctx, key.TierID, key.WaveID)
	if err != nil {
		return false, err
	}
	defer release()

	return c.promoteLocked(ctx, key.TierID, key.WaveID)
}

// PromoteAll keeps promoting the pool until capacity or the waitlist runs
// out. It returns the number of promotions.
func (c *Coordinator) PromoteAll(ctx context.Context, key repository.WaitlistKey) (int, error) {
	release, err := c.acquire(ctx, key.TierID, key.WaveID)
	if err != nil {
		return 0, err
	}
	defer release()

	promoted := 0
	for {
		ok, err := c.promoteLocked(ctx, key.TierID, key.WaveID)
		if err != nil {
			return promoted, err
		}
		if !ok {
			return promoted, nil
		}
		promoted++
	}
}

// promoteLocked promotes the oldest waitlisted registration of the pool. The
// caller must hold the pool locks. A candidate that another process already
// moved is skipped and the next one is tried with the same reserved slot
// returned first.
func (c *Coordinator) promoteLocked(ctx context.Context, tierID, waveID string) (bool, error) {
	tierKey := ledger.TierKey(tierID)
	waveKey := ""
	if waveID != "" {
		waveKey = ledger.WaveKey(waveID)
	}

	for {
		next, err := c.regs.NextWaitlisted(ctx, tierID, waveID)
		if err != nil {
			if errors.Is(err, domain.ErrRegistrationNotFound) {
				return false, nil
			}
			return false, err
		}

		outcome, err := c.ledger.Reserve(ctx, tierKey, waveKey)
		if err != nil {
			return false, err
		}
		if outcome == ledger.OutcomeNoCapacity {
			return false, nil
		}

		if err := next.Confirm(generateQRCode()); err != nil {
			c.releaseCounters(ctx, tierKey, waveKey)
			return false, err
		}
		err = c.regs.UpdateIfStatus(ctx, next, domain.RegistrationStatusWaitlisted)
		if errors.Is(err, domain.ErrStaleRegistration) || errors.Is(err, domain.ErrRegistrationNotFound) {
			c.releaseCounters(ctx, tierKey, waveKey)
			continue
		}
		if err != nil {
			c.releaseCounters(ctx, tierKey, waveKey)
			return false, err
		}

		c.adjustEventCounters(ctx, next.EventID, 1, -1)
		c.emit(ctx, domain.ChangeRegistrationConfirmed, next)
		return true, nil
	}
}

// EmitCheckin publishes the check-in fact for an already persisted check-in
func (c *Coordinator) EmitCheckin(ctx context.Context, reg *domain.Registration) {
	c.emit(ctx, domain.ChangeCheckinRecorded, reg)
}

// emit publishes a change event carrying the pool's current counters. Emit
// failures are logged, never propagated: the allocation already happened.
func (c *Coordinator) emit(ctx context.Context, t domain.ChangeType, reg *domain.Registration) {
	event := domain.NewChangeEvent(uuid.New().String(), t, reg, c.snapshotCounters(ctx, reg))
	if err := c.emitter.Emit(ctx, event); err != nil {
		logger.Get().Error("failed to emit change event",
			zap.String("change_type", string(t)),
			zap.String("registration_id", reg.ID),
			zap.Error(err),
		)
	}
}

// snapshotCounters reads the pool counters for the event payload
func (c *Coordinator) snapshotCounters(ctx context.Context, reg *domain.Registration) domain.CounterSnapshot {
	var counters domain.CounterSnapshot
	if snap, err := c.ledger.Snapshot(ctx, ledger.TierKey(reg.TierID)); err == nil {
		counters.TierUsed = snap.Used
		counters.TierCapacity = snap.Capacity
	}
	if reg.WaveID != "" {
		if snap, err := c.ledger.Snapshot(ctx, ledger.WaveKey(reg.WaveID)); err == nil {
			counters.WaveUsed = snap.Used
			counters.WaveCapacity = snap.Capacity
		}
	}
	return counters
}

// releaseCounters undoes a reservation after a failed write
func (c *Coordinator) releaseCounters(ctx context.Context, tierKey, waveKey string) {
	if err := c.ledger.Release(ctx, tierKey, waveKey); err != nil {
		logger.Get().Error("failed to roll back reservation",
			zap.String("tier_key", tierKey),
			zap.String("wave_key", waveKey),
			zap.Error(err),
		)
	}
}

// adjustEventCounters rolls the allocation decision up into the event's
// denormalized counters. Best effort: the ledger is the source of truth and
// a missed roll-up must not fail the allocation.
func (c *Coordinator) adjustEventCounters(ctx context.Context, eventID string, registeredDelta, waitlistDelta int64) {
	if err := c.events.AdjustEventCounters(ctx, eventID, registeredDelta, waitlistDelta); err != nil {
		logger.Get().Warn("failed to adjust event counters",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
	}
}

// generateQRCode generates an opaque check-in credential
func generateQRCode() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return uuid.New().String()
	}
	return fmt.Sprintf("qr_%s", hex.EncodeToString(bytes))
}
