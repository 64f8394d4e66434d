package dto

import (
	"time"

	"github.com/alexxgorcea9/primepass/internal/domain"
)

// CreateEventRequest represents a request to create an event
type CreateEventRequest struct {
	Name          string    `json:"name" binding:"required"`
	Capacity      int64     `json:"capacity" binding:"required,min=1"`
	AllowMultiple bool      `json:"allow_multiple"`
	StartTime     time.Time `json:"start_time" binding:"required"`
	EndTime       time.Time `json:"end_time" binding:"required"`
}

// CreateTierRequest represents a request to add a tier to an event
type CreateTierRequest struct {
	Name          string     `json:"name" binding:"required"`
	Capacity      int64      `json:"capacity" binding:"required,min=1"`
	Price         float64    `json:"price"`
	SaleStartDate *time.Time `json:"sale_start_date,omitempty"`
	SaleEndDate   *time.Time `json:"sale_end_date,omitempty"`
}

// CreateWaveRequest represents a request to add a wave to an event
type CreateWaveRequest struct {
	Name      string    `json:"name" binding:"required"`
	Capacity  int64     `json:"capacity" binding:"required,min=1"`
	TierIDs   []string  `json:"tier_ids" binding:"required,min=1"`
	StartDate time.Time `json:"start_date" binding:"required"`
	EndDate   time.Time `json:"end_date" binding:"required"`
}

// EventResponse represents an event in API responses
type EventResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Capacity      int64     `json:"capacity"`
	AllowMultiple bool      `json:"allow_multiple"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	CreatedAt     time.Time `json:"created_at"`
}

// EventFromDomain converts a domain Event to an EventResponse
func EventFromDomain(e *domain.Event) *EventResponse {
	return &EventResponse{
		ID:            e.ID,
		Name:          e.Name,
		Capacity:      e.Capacity,
		AllowMultiple: e.AllowMultiple,
		StartTime:     e.StartTime,
		EndTime:       e.EndTime,
		CreatedAt:     e.CreatedAt,
	}
}

// TierResponse represents a tier in API responses
type TierResponse struct {
	ID            string     `json:"id"`
	EventID       string     `json:"event_id"`
	Name          string     `json:"name"`
	Capacity      int64      `json:"capacity"`
	Price         float64    `json:"price"`
	IsActive      bool       `json:"is_active"`
	SaleStartDate *time.Time `json:"sale_start_date,omitempty"`
	SaleEndDate   *time.Time `json:"sale_end_date,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// TierFromDomain converts a domain Tier to a TierResponse
func TierFromDomain(t *domain.Tier) *TierResponse {
	return &TierResponse{
		ID:            t.ID,
		EventID:       t.EventID,
		Name:          t.Name,
		Capacity:      t.Capacity,
		Price:         t.Price,
		IsActive:      t.IsActive,
		SaleStartDate: t.SaleStartDate,
		SaleEndDate:   t.SaleEndDate,
		CreatedAt:     t.CreatedAt,
	}
}

// WaveResponse represents a wave in API responses
type WaveResponse struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	Name      string    `json:"name"`
	Capacity  int64     `json:"capacity"`
	TierIDs   []string  `json:"tier_ids"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	CreatedAt time.Time `json:"created_at"`
}

// WaveFromDomain converts a domain Wave to a WaveResponse
func WaveFromDomain(w *domain.Wave) *WaveResponse {
	return &WaveResponse{
		ID:        w.ID,
		EventID:   w.EventID,
		Name:      w.Name,
		Capacity:  w.Capacity,
		TierIDs:   w.TierIDs,
		StartDate: w.StartDate,
		EndDate:   w.EndDate,
		CreatedAt: w.CreatedAt,
	}
}

// TierAvailabilityResponse is the advisory availability of one tier, with the
// wave pool included when requested
type TierAvailabilityResponse struct {
	Tier AvailabilitySnapshot  `json:"tier"`
	Wave *AvailabilitySnapshot `json:"wave,omitempty"`
}
