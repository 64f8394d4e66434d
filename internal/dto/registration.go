// Package dto defines the request and response shapes of the HTTP API.
package dto

import (
	"encoding/json"
	"time"

	"github.com/alexxgorcea9/primepass/internal/domain"
)

// CreateRegistrationRequest represents a request to register for an event.
// EventID comes from the URL path, not the body.
type CreateRegistrationRequest struct {
	EventID        string          `json:"event_id"`
	TierID         string          `json:"tier_id" binding:"required"`
	WaveID         string          `json:"wave_id,omitempty"`
	AdditionalInfo json.RawMessage `json:"additional_info,omitempty"`
}

// CancelRegistrationRequest represents a request to cancel a registration
type CancelRegistrationRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RegistrationResponse represents a registration in API responses
type RegistrationResponse struct {
	ID            string     `json:"id"`
	EventID       string     `json:"event_id"`
	UserID        string     `json:"user_id"`
	TierID        string     `json:"tier_id"`
	WaveID        string     `json:"wave_id,omitempty"`
	Status        string     `json:"status"`
	StatusReason  string     `json:"status_reason,omitempty"`
	PaymentStatus string     `json:"payment_status"`
	CheckedIn     bool       `json:"checked_in"`
	CheckedInAt   *time.Time `json:"checked_in_at,omitempty"`
	QRCode        string     `json:"qr_code,omitempty"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	WaitlistedAt  *time.Time `json:"waitlisted_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// FromDomain converts a domain Registration to a RegistrationResponse
func FromDomain(r *domain.Registration) *RegistrationResponse {
	return &RegistrationResponse{
		ID:            r.ID,
		EventID:       r.EventID,
		UserID:        r.UserID,
		TierID:        r.TierID,
		WaveID:        r.WaveID,
		Status:        string(r.Status),
		StatusReason:  r.StatusReason,
		PaymentStatus: string(r.PaymentStatus),
		CheckedIn:     r.CheckedIn,
		CheckedInAt:   r.CheckedInAt,
		QRCode:        r.QRCode,
		ConfirmedAt:   r.ConfirmedAt,
		WaitlistedAt:  r.WaitlistedAt,
		CancelledAt:   r.CancelledAt,
		CreatedAt:     r.CreatedAt,
	}
}

// CheckInRequest represents a check-in scan
type CheckInRequest struct {
	QRCode string `json:"qr_code,omitempty"`
}

// CheckInResponse represents the result of a check-in
type CheckInResponse struct {
	RegistrationID   string     `json:"registration_id"`
	CheckedIn        bool       `json:"checked_in"`
	AlreadyCheckedIn bool       `json:"already_checked_in"`
	CheckedInAt      *time.Time `json:"checked_in_at,omitempty"`
}

// PaymentUpdateRequest represents a payment status signal from the payment
// collaborator
type PaymentUpdateRequest struct {
	RegistrationID string `json:"registration_id" binding:"required"`
	PaymentStatus  string `json:"payment_status" binding:"required"`
}

// AddCapacityRequest represents a capacity adjustment
type AddCapacityRequest struct {
	Delta int64 `json:"delta" binding:"required"`
}

// CapacityResponse represents the counters after a capacity change
type CapacityResponse struct {
	ID       string `json:"id"`
	Capacity int64  `json:"capacity"`
	Used     int64  `json:"used"`
	Promoted int    `json:"promoted"`
}

// AvailabilitySnapshot is one pool's advisory counters
type AvailabilitySnapshot struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Capacity  int64  `json:"capacity"`
	Used      int64  `json:"used"`
	Remaining int64  `json:"remaining"`
}

// EventAvailabilityResponse is the advisory availability view of an event.
// Counters may be stale the moment they are read; only registration itself
// is authoritative.
type EventAvailabilityResponse struct {
	EventID string                 `json:"event_id"`
	Tiers   []AvailabilitySnapshot `json:"tiers"`
	Waves   []AvailabilitySnapshot `json:"waves"`
}
