package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// RideStatus represents the lifecycle status of a published ride
// Matches PostgreSQL ENUM: ride_status
type RideStatus string

const (
	RideStatusActive    RideStatus = "active"    // Accepting bookings
	RideStatusFull      RideStatus = "full"      // No seats left
	RideStatusCompleted RideStatus = "completed" // Trip finished
	RideStatusCancelled RideStatus = "cancelled" // Driver cancelled
)

// Ride represents a published ride offer (rides table)
type Ride struct {
	ID          uuid.UUID `json:"id" db:"id"`
	DriverID    uuid.UUID `json:"driver_id" db:"driver_id"`
	DriverName  string    `json:"driver_name" db:"driver_name"`
	DriverPhone string    `json:"driver_phone" db:"driver_phone"`

	Origin        string         `json:"origin" db:"origin"`
	Destination   string         `json:"destination" db:"destination"`
	PickupPoints  pq.StringArray `json:"pickup_points,omitempty" db:"pickup_points"`
	DepartureTime time.Time      `json:"departure_time" db:"departure_time"`

	PricePerSeat   float64 `json:"price_per_seat" db:"price_per_seat"`
	Currency       string  `json:"currency" db:"currency"`
	SeatsTotal     int     `json:"seats_total" db:"seats_total"`
	SeatsAvailable int     `json:"seats_available" db:"seats_available"`

	Status    RideStatus `json:"status" db:"status"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// IsBookable checks whether new bookings can still be placed on the ride
func (r *Ride) IsBookable() bool {
	return r.Status == RideStatusActive && r.SeatsAvailable > 0 && time.Now().Before(r.DepartureTime)
}

// ListRidesRequest holds the ride search filters (all optional)
type ListRidesRequest struct {
	Origin      string `form:"origin"`
	Destination string `form:"destination"`
	Date        string `form:"date"` // "2026-01-15"
	MinSeats    int    `form:"min_seats"`
	Limit       int    `form:"limit"`
	Offset      int    `form:"offset"`
}
