package domain

import (
	"time"
)

// Event is the parent container for tiers and waves. The denormalized counters
// are maintained by the engine's ledger and are never written directly.
type Event struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Capacity        int64     `json:"capacity"`
	RegisteredCount int64     `json:"registered_count"`
	WaitlistCount   int64     `json:"waitlist_count"`
	AllowMultiple   bool      `json:"allow_multiple"` // multiple active registrations per user
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Tier is a priced category of access with its own capacity.
type Tier struct {
	ID            string     `json:"id"`
	EventID       string     `json:"event_id"`
	Name          string     `json:"name"`
	Capacity      int64      `json:"capacity"`
	SoldCount     int64      `json:"sold_count"`
	Price         float64    `json:"price"`
	IsActive      bool       `json:"is_active"`
	SaleStartDate *time.Time `json:"sale_start_date,omitempty"`
	SaleEndDate   *time.Time `json:"sale_end_date,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// OnSaleAt reports whether the tier's sale window is open at t. A missing
// bound is treated as unbounded on that side.
func (t *Tier) OnSaleAt(at time.Time) bool {
	if t.SaleStartDate != nil && at.Before(*t.SaleStartDate) {
		return false
	}
	if t.SaleEndDate != nil && !at.Before(*t.SaleEndDate) {
		return false
	}
	return true
}

// Wave is a time-boxed registration window spanning one or more tiers, with
// its own capacity pool independent of tier capacity.
type Wave struct {
	ID              string    `json:"id"`
	EventID         string    `json:"event_id"`
	Name            string    `json:"name"`
	Capacity        int64     `json:"capacity"`
	RegisteredCount int64     `json:"registered_count"`
	TierIDs         []string  `json:"tier_ids"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// OpenAt reports whether the wave window [StartDate, EndDate) contains t.
func (w *Wave) OpenAt(at time.Time) bool {
	return !at.Before(w.StartDate) && at.Before(w.EndDate)
}

// IncludesTier reports whether the tier is eligible for this wave.
func (w *Wave) IncludesTier(tierID string) bool {
	for _, id := range w.TierIDs {
		if id == tierID {
			return true
		}
	}
	return false
}
