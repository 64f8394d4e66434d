package domain

import (
	"fmt"
	"time"
)

// ChangeType identifies a fact published by the engine.
type ChangeType string

const (
	ChangeRegistrationConfirmed  ChangeType = "registration.confirmed"
	ChangeRegistrationWaitlisted ChangeType = "registration.waitlisted"
	ChangeRegistrationCancelled  ChangeType = "registration.cancelled"
	ChangeCheckinRecorded        ChangeType = "registration.checked_in"
)

// IsValid checks if the type is a valid ChangeType
func (t ChangeType) IsValid() bool {
	switch t {
	case ChangeRegistrationConfirmed, ChangeRegistrationWaitlisted,
		ChangeRegistrationCancelled, ChangeCheckinRecorded:
		return true
	}
	return false
}

// CounterSnapshot carries the resulting inventory counters at the moment the
// change was decided, so consumers need no follow-up read.
type CounterSnapshot struct {
	TierUsed     int64 `json:"tier_used"`
	TierCapacity int64 `json:"tier_capacity"`
	WaveUsed     int64 `json:"wave_used,omitempty"`
	WaveCapacity int64 `json:"wave_capacity,omitempty"`
}

// ChangeEvent is an append-only fact consumed by caching, notification and
// real-time push layers. Delivery is at-least-once; consumers must be
// idempotent on (Type, RegistrationID, Status).
type ChangeEvent struct {
	ID             string             `json:"id"`
	Seq            uint64             `json:"seq"` // total order per EventID
	Type           ChangeType         `json:"type"`
	EventID        string             `json:"event_id"`
	RegistrationID string             `json:"registration_id"`
	UserID         string             `json:"user_id"`
	TierID         string             `json:"tier_id"`
	WaveID         string             `json:"wave_id,omitempty"`
	Status         RegistrationStatus `json:"status"`
	Counters       CounterSnapshot    `json:"counters"`
	CacheKeys      []string           `json:"cache_keys"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

// NewChangeEvent builds a change event for a registration, including the
// cache keys downstream invalidation listens on.
func NewChangeEvent(id string, t ChangeType, reg *Registration, counters CounterSnapshot) ChangeEvent {
	return ChangeEvent{
		ID:             id,
		Type:           t,
		EventID:        reg.EventID,
		RegistrationID: reg.ID,
		UserID:         reg.UserID,
		TierID:         reg.TierID,
		WaveID:         reg.WaveID,
		Status:         reg.Status,
		Counters:       counters,
		CacheKeys: []string{
			fmt.Sprintf("event:detail:%s", reg.EventID),
			fmt.Sprintf("user:events:%s", reg.UserID),
		},
		OccurredAt: time.Now(),
	}
}

// Key returns the partition key used to keep per-event ordering downstream.
func (e *ChangeEvent) Key() string {
	return e.EventID
}
