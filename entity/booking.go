package entity

import "time"

type BookingStatus string

const (
	BookingScheduled BookingStatus = "scheduled"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
	BookingPending   BookingStatus = "pending"
)

// Booking has no state machine beyond the status enum; any status may
// transition to any other.
type Booking struct {
	ID           string        `json:"id" db:"booking_id"`
	BusinessID   string        `json:"business_id" db:"business_id"`
	CustomerName string        `json:"customer_name" db:"customer_name"`
	Service      string        `json:"service" db:"service"`
	Status       BookingStatus `json:"status" db:"status"`
	Notes        *string       `json:"notes,omitempty" db:"notes"`
	StartsAt     time.Time     `json:"starts_at" db:"starts_at"`
	EndsAt       *time.Time    `json:"ends_at,omitempty" db:"ends_at"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
}

func (b Booking) EntityID() string { return b.ID }
func (b Booking) TenantID() string { return b.BusinessID }

type BookingInput struct {
	BusinessID   string        `json:"business_id"`
	CustomerName string        `json:"customer_name"`
	Service      string        `json:"service"`
	Status       BookingStatus `json:"status"`
	Notes        *string       `json:"notes,omitempty"`
	StartsAt     time.Time     `json:"starts_at"`
	EndsAt       *time.Time    `json:"ends_at,omitempty"`
}

// BookingPatch is a partial update; nil fields are left untouched.
type BookingPatch struct {
	CustomerName *string        `json:"customer_name,omitempty"`
	Service      *string        `json:"service,omitempty"`
	Status       *BookingStatus `json:"status,omitempty"`
	Notes        *string        `json:"notes,omitempty"`
	StartsAt     *time.Time     `json:"starts_at,omitempty"`
	EndsAt       *time.Time     `json:"ends_at,omitempty"`
}
