package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/swiftride/booking-backend/internal/models"
)

// BookingRepository handles database operations for the bookings table
type BookingRepository struct {
	db DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `id, ride_id, user_id, passenger_name, passenger_phone,
	seats, paid_seats, status, payment_status, payment_reference,
	idempotency_key, created_at, updated_at`

// Create inserts a new pending booking and publishes a booking_created
// event. A unique partial index on (ride_id, user_id) WHERE status IN
// ('pending','paid') guarantees one active booking per user per ride.
func (r *BookingRepository) Create(booking *models.Booking) error {
	booking.ID = uuid.New()
	booking.Status = models.BookingStatusPending
	booking.PaymentStatus = models.BookingPaymentPending
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt

	query := `
		INSERT INTO bookings (
			id, ride_id, user_id, passenger_name, passenger_phone,
			seats, paid_seats, status, payment_status,
			idempotency_key, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(query,
		booking.ID, booking.RideID, booking.UserID,
		booking.PassengerName, booking.PassengerPhone,
		booking.Seats, booking.PaidSeats, booking.Status, booking.PaymentStatus,
		booking.IdempotencyKey, booking.CreatedAt, booking.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	return notifyEvent(r.db, "bookings", EventBookingCreated, booking)
}

// GetByID retrieves a booking by ID. Returns (nil, nil) when not found.
func (r *BookingRepository) GetByID(bookingID uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	err := r.db.Get(&booking, query, bookingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// GetActiveByRideAndUser retrieves the user's pending or paid booking on a
// ride. Returns (nil, nil) when none exists.
func (r *BookingRepository) GetActiveByRideAndUser(rideID, userID uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE ride_id = $1 AND user_id = $2 AND status IN ('pending', 'paid')`
	err := r.db.Get(&booking, query, rideID, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active booking: %w", err)
	}
	return &booking, nil
}

// GetByIdempotencyKey retrieves a booking previously created with the same
// idempotency key. Returns (nil, nil) when none exists.
func (r *BookingRepository) GetByIdempotencyKey(userID uuid.UUID, key string) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE user_id = $1 AND idempotency_key = $2`
	err := r.db.Get(&booking, query, userID, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking by idempotency key: %w", err)
	}
	return &booking, nil
}

// UpdateSeats changes the seat count of a booking. The WHERE clause
// refuses the edit when a payment is already in flight.
func (r *BookingRepository) UpdateSeats(bookingID uuid.UUID, seats int, paymentStatus models.BookingPaymentStatus) error {
	query := `
		UPDATE bookings
		SET seats = $1, payment_status = $2, updated_at = NOW()
		WHERE id = $3 AND payment_reference IS NULL AND status IN ('pending', 'paid')`

	result, err := r.db.Exec(query, seats, paymentStatus, bookingID)
	if err != nil {
		return fmt.Errorf("failed to update booking seats: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("booking %s not editable", bookingID)
	}
	return nil
}

// SetPaymentReference locks the booking to an in-flight payment.
// Fails when another payment already holds the lock.
func (r *BookingRepository) SetPaymentReference(bookingID uuid.UUID, reference string) error {
	query := `
		UPDATE bookings
		SET payment_reference = $1, updated_at = NOW()
		WHERE id = $2 AND payment_reference IS NULL`

	result, err := r.db.Exec(query, reference, bookingID)
	if err != nil {
		return fmt.Errorf("failed to set payment reference: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("booking %s already has a payment in flight", bookingID)
	}
	return nil
}

// ClearPaymentReference releases the payment lock after a declined or
// abandoned payment so the wizard can edit seats again
func (r *BookingRepository) ClearPaymentReference(bookingID uuid.UUID, reference string) error {
	query := `
		UPDATE bookings
		SET payment_reference = NULL, updated_at = NOW()
		WHERE id = $1 AND payment_reference = $2`

	if _, err := r.db.Exec(query, bookingID, reference); err != nil {
		return fmt.Errorf("failed to clear payment reference: %w", err)
	}
	return nil
}

// MarkPaid records a successful payment in one transaction: the booking
// becomes paid with all current seats covered, the payment lock is
// released, and the newly paid seats are taken off the ride's
// availability. A booking_paid event is published on commit.
func (r *BookingRepository) MarkPaid(bookingID uuid.UUID, seatsPurchased int) (*models.Booking, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var booking models.Booking
	query := `
		UPDATE bookings
		SET status = 'paid', payment_status = 'completed', paid_seats = seats,
			payment_reference = NULL, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'paid')
		RETURNING ` + bookingColumns
	if err := tx.Get(&booking, query, bookingID); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("booking %s not payable", bookingID)
		}
		return nil, fmt.Errorf("failed to mark booking paid: %w", err)
	}

	seatQuery := `
		UPDATE rides
		SET seats_available = seats_available - $1,
			status = CASE WHEN seats_available - $1 <= 0 THEN 'full' ELSE status END,
			updated_at = NOW()
		WHERE id = $2 AND seats_available >= $1`
	result, err := tx.Exec(seatQuery, seatsPurchased, booking.RideID)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve ride seats: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check seat reservation: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("ride %s has fewer than %d seats left", booking.RideID, seatsPurchased)
	}

	if err := notifyEvent(tx, "bookings", EventBookingPaid, &booking); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit payment: %w", err)
	}
	return &booking, nil
}

// Cancel cancels a booking and returns any paid seats to the ride's
// availability. Publishes a booking_cancelled event on commit.
func (r *BookingRepository) Cancel(bookingID uuid.UUID) (*models.Booking, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var booking models.Booking
	query := `
		UPDATE bookings
		SET status = 'cancelled', payment_reference = NULL, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'paid')
		RETURNING ` + bookingColumns
	if err := tx.Get(&booking, query, bookingID); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("booking %s not cancellable", bookingID)
		}
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}

	if booking.PaidSeats > 0 {
		seatQuery := `
			UPDATE rides
			SET seats_available = seats_available + $1,
				status = CASE WHEN status = 'full' THEN 'active' ELSE status END,
				updated_at = NOW()
			WHERE id = $2`
		if _, err := tx.Exec(seatQuery, booking.PaidSeats, booking.RideID); err != nil {
			return nil, fmt.Errorf("failed to release ride seats: %w", err)
		}
	}

	if err := notifyEvent(tx, "bookings", EventBookingCancelled, &booking); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}
	return &booking, nil
}

// ListByUser retrieves the user's bookings, newest first
func (r *BookingRepository) ListByUser(userID uuid.UUID) ([]models.Booking, error) {
	bookings := []models.Booking{}
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE user_id = $1 ORDER BY created_at DESC`
	if err := r.db.Select(&bookings, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}
