package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// RegistrationStatus represents the lifecycle state of a registration
type RegistrationStatus string

const (
	RegistrationStatusPending    RegistrationStatus = "pending"
	RegistrationStatusConfirmed  RegistrationStatus = "confirmed"
	RegistrationStatusWaitlisted RegistrationStatus = "waitlisted"
	RegistrationStatusCancelled  RegistrationStatus = "cancelled"
)

// IsValid checks if the status is a valid RegistrationStatus
func (s RegistrationStatus) IsValid() bool {
	switch s {
	case RegistrationStatusPending, RegistrationStatusConfirmed,
		RegistrationStatusWaitlisted, RegistrationStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of RegistrationStatus
func (s RegistrationStatus) String() string {
	return string(s)
}

// PaymentStatus represents the payment state reported by the payment collaborator.
// The engine never drives payment; it only reacts to the signal.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// IsValid checks if the status is a valid PaymentStatus
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// Registration is the unit of capacity allocation: one attendee's claim on a
// tier (and optionally a wave) of an event.
type Registration struct {
	ID             string             `json:"id"`
	EventID        string             `json:"event_id"`
	UserID         string             `json:"user_id"`
	TierID         string             `json:"tier_id"`
	WaveID         string             `json:"wave_id,omitempty"`
	Status         RegistrationStatus `json:"status"`
	StatusReason   string             `json:"status_reason,omitempty"`
	// DedupeKey enforces the one-active-registration rule at the store: set to
	// "{event}:{user}" when the event disallows multiple registrations, empty
	// otherwise. Two active registrations can never share a non-empty key.
	DedupeKey      string             `json:"-"`
	PaymentStatus  PaymentStatus      `json:"payment_status"`
	CheckedIn      bool               `json:"checked_in"`
	CheckedInAt    *time.Time         `json:"checked_in_at,omitempty"`
	QRCode         string             `json:"qr_code,omitempty"`
	AdditionalInfo json.RawMessage    `json:"additional_info,omitempty"`
	ConfirmedAt    *time.Time         `json:"confirmed_at,omitempty"`
	WaitlistedAt   *time.Time         `json:"waitlisted_at,omitempty"`
	CancelledAt    *time.Time         `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// canTransition reports whether moving from the current status to target is a
// legal lifecycle step. Cancelled is terminal; nothing re-enters pending.
func (r *Registration) canTransition(target RegistrationStatus) bool {
	switch r.Status {
	case RegistrationStatusPending:
		return target == RegistrationStatusConfirmed ||
			target == RegistrationStatusWaitlisted ||
			target == RegistrationStatusCancelled
	case RegistrationStatusConfirmed:
		return target == RegistrationStatusCancelled
	case RegistrationStatusWaitlisted:
		return target == RegistrationStatusConfirmed ||
			target == RegistrationStatusCancelled
	case RegistrationStatusCancelled:
		return false
	}
	return false
}

// Confirm transitions the registration to confirmed and assigns its QR code.
// The code is written exactly once; a promotion of a waitlisted registration
// that somehow already carries a code keeps the original.
func (r *Registration) Confirm(qrCode string) error {
	if !r.canTransition(RegistrationStatusConfirmed) {
		return ErrInvalidTransition
	}
	now := time.Now()
	r.Status = RegistrationStatusConfirmed
	r.ConfirmedAt = &now
	r.UpdatedAt = now
	if r.QRCode == "" {
		r.QRCode = qrCode
	}
	return nil
}

// Waitlist transitions the registration to waitlisted.
func (r *Registration) Waitlist() error {
	if !r.canTransition(RegistrationStatusWaitlisted) {
		return ErrInvalidTransition
	}
	now := time.Now()
	r.Status = RegistrationStatusWaitlisted
	r.WaitlistedAt = &now
	r.UpdatedAt = now
	return nil
}

// Cancel transitions the registration to cancelled. Cancelling an already
// cancelled registration is a no-op, not an error.
func (r *Registration) Cancel(reason string) error {
	if r.Status == RegistrationStatusCancelled {
		return nil
	}
	if !r.canTransition(RegistrationStatusCancelled) {
		return ErrInvalidTransition
	}
	now := time.Now()
	r.Status = RegistrationStatusCancelled
	r.StatusReason = reason
	r.CancelledAt = &now
	r.UpdatedAt = now
	return nil
}

// MarkCheckedIn records the check-in timestamp. Only valid on a confirmed
// registration; repeat calls leave CheckedInAt untouched.
func (r *Registration) MarkCheckedIn(at time.Time) error {
	if r.Status != RegistrationStatusConfirmed {
		return ErrNotConfirmed
	}
	if r.CheckedIn {
		return nil
	}
	r.CheckedIn = true
	r.CheckedInAt = &at
	r.UpdatedAt = at
	return nil
}

// IsActive reports whether the registration still holds or may hold capacity.
func (r *Registration) IsActive() bool {
	return r.Status != RegistrationStatusCancelled
}

// IsConfirmed checks if the registration is in confirmed status
func (r *Registration) IsConfirmed() bool {
	return r.Status == RegistrationStatusConfirmed
}

// IsWaitlisted checks if the registration is in waitlisted status
func (r *Registration) IsWaitlisted() bool {
	return r.Status == RegistrationStatusWaitlisted
}

// IsCancelled checks if the registration is in cancelled status
func (r *Registration) IsCancelled() bool {
	return r.Status == RegistrationStatusCancelled
}

// BelongsToUser checks if the registration belongs to the given user
func (r *Registration) BelongsToUser(userID string) bool {
	return r.UserID == userID
}

// Validate validates the registration's identity fields
func (r *Registration) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrInvalidRegistrationID
	}
	if strings.TrimSpace(r.EventID) == "" {
		return ErrInvalidEventID
	}
	if strings.TrimSpace(r.UserID) == "" {
		return ErrInvalidUserID
	}
	if strings.TrimSpace(r.TierID) == "" {
		return ErrInvalidTierID
	}
	if !r.Status.IsValid() {
		return ErrInvalidRegistrationStatus
	}
	return nil
}
