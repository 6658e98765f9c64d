package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// BOOKING STATUSES (match DB ENUMs)
// ============================================================================

// BookingStatus represents the status of a booking
// Matches PostgreSQL ENUM: booking_status
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"   // Created, waiting for payment
	BookingStatusPaid      BookingStatus = "paid"      // Payment confirmed, seats reserved
	BookingStatusCompleted BookingStatus = "completed" // Trip finished
	BookingStatusFailed    BookingStatus = "failed"    // Payment failed terminally
	BookingStatusCancelled BookingStatus = "cancelled" // Passenger or driver cancelled
)

// BookingPaymentStatus tracks how much of the booking has been paid for
// Matches PostgreSQL ENUM: booking_payment_status
type BookingPaymentStatus string

const (
	BookingPaymentPending   BookingPaymentStatus = "pending"   // Nothing paid yet
	BookingPaymentPartial   BookingPaymentStatus = "partial"   // Paid seats < requested seats
	BookingPaymentCompleted BookingPaymentStatus = "completed" // All requested seats paid
)

// ============================================================================
// BOOKING MODEL (bookings table)
// ============================================================================

// Booking represents a passenger's seat reservation on a ride
type Booking struct {
	ID     uuid.UUID `json:"id" db:"id"`
	RideID uuid.UUID `json:"ride_id" db:"ride_id"`
	UserID uuid.UUID `json:"user_id" db:"user_id"`

	// Passenger snapshot (denormalized for notifications and receipts)
	PassengerName  string `json:"passenger_name" db:"passenger_name"`
	PassengerPhone string `json:"passenger_phone" db:"passenger_phone"`

	Seats     int `json:"seats" db:"seats"`
	PaidSeats int `json:"paid_seats" db:"paid_seats"`

	Status        BookingStatus        `json:"status" db:"status"`
	PaymentStatus BookingPaymentStatus `json:"payment_status" db:"payment_status"`

	// Set once a payment is initiated; locks seat edits until the
	// payment reaches a terminal state
	PaymentReference *string `json:"payment_reference,omitempty" db:"payment_reference"`

	IdempotencyKey *string `json:"idempotency_key,omitempty" db:"idempotency_key"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the booking still occupies the rider's slot on
// the ride (pending and paid bookings both count)
func (b *Booking) IsActive() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusPaid
}

// IsLocked reports whether seat edits are blocked by an in-flight
// payment. A paid booking with a top-up charge in flight carries a
// reference too, so any active booking with one is locked.
func (b *Booking) IsLocked() bool {
	return b.PaymentReference != nil && b.IsActive()
}

// SeatFloor returns the minimum seat count the booking can be edited down to.
// Paid seats can never be removed through the wizard.
func (b *Booking) SeatFloor() int {
	if b.PaidSeats > 0 {
		return b.PaidSeats
	}
	return 1
}

// UnpaidSeats returns the number of seats still awaiting payment
func (b *Booking) UnpaidSeats() int {
	return b.Seats - b.PaidSeats
}

// ============================================================================
// REQUEST/RESPONSE STRUCTS
// ============================================================================

// UpsertBookingRequest creates a new booking or updates the seat count of
// the user's existing active booking on the ride
type UpsertBookingRequest struct {
	RideID         string  `json:"ride_id" binding:"required,uuid"`
	Seats          int     `json:"seats" binding:"required,min=1"`
	PassengerName  string  `json:"passenger_name" binding:"required"`
	PassengerPhone string  `json:"passenger_phone" binding:"required"`
	IdempotencyKey *string `json:"idempotency_key,omitempty"`
}

// BookingResponse is returned from the create/update endpoint
type BookingResponse struct {
	Booking   *Booking `json:"booking"`
	AmountDue float64  `json:"amount_due"`
	Currency  string   `json:"currency"`
	Created   bool     `json:"created"` // false when an existing booking was updated
}

// ExistingBookingResponse is returned when checking for an active booking
// on a ride before opening the wizard
type ExistingBookingResponse struct {
	Exists  bool     `json:"exists"`
	Booking *Booking `json:"booking,omitempty"`
}

// ============================================================================
// BOOKING ERRORS
// ============================================================================

// BookingLockedError is returned when seat edits are attempted while a
// payment for the booking is still in flight
type BookingLockedError struct {
	BookingID        uuid.UUID `json:"booking_id"`
	PaymentReference string    `json:"payment_reference"`
}

func (e *BookingLockedError) Error() string {
	return fmt.Sprintf("booking %s is locked by pending payment %s", e.BookingID, e.PaymentReference)
}

// SeatsUnavailableError is returned when the requested seat count exceeds
// what the ride has left
type SeatsUnavailableError struct {
	Requested int `json:"requested"`
	Available int `json:"available"`
}

func (e *SeatsUnavailableError) Error() string {
	return fmt.Sprintf("requested %d seats but only %d available", e.Requested, e.Available)
}
