package database

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swiftride/booking-backend/internal/models"
)

var bookingRows = []string{
	"id", "ride_id", "user_id", "passenger_name", "passenger_phone",
	"seats", "paid_seats", "status", "payment_status", "payment_reference",
	"idempotency_key", "created_at", "updated_at",
}

func TestCreateBooking(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBookingRepository(newTestDB(db))

	t.Run("Success", func(t *testing.T) {
		booking := &models.Booking{
			RideID:         uuid.New(),
			UserID:         uuid.New(),
			PassengerName:  "Amadou Bello",
			PassengerPhone: "670123456",
			Seats:          2,
		}

		mock.ExpectExec(`INSERT INTO bookings`).
			WithArgs(
				sqlmock.AnyArg(), booking.RideID, booking.UserID,
				booking.PassengerName, booking.PassengerPhone,
				2, 0, "pending", "pending",
				nil, sqlmock.AnyArg(), sqlmock.AnyArg(),
			).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`SELECT pg_notify`).
			WithArgs(EventsChannel, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Create(booking)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, booking.ID)
		assert.Equal(t, models.BookingStatusPending, booking.Status)
		assert.Equal(t, models.BookingPaymentPending, booking.PaymentStatus)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate Active Booking", func(t *testing.T) {
		booking := &models.Booking{
			RideID:         uuid.New(),
			UserID:         uuid.New(),
			PassengerName:  "Amadou Bello",
			PassengerPhone: "670123456",
			Seats:          1,
		}

		mock.ExpectExec(`INSERT INTO bookings`).
			WillReturnError(fmt.Errorf("duplicate key value violates unique constraint \"bookings_active_ride_user_idx\""))

		err := repo.Create(booking)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create booking")

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetActiveByRideAndUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBookingRepository(newTestDB(db))

	t.Run("Success", func(t *testing.T) {
		bookingID := uuid.New()
		rideID := uuid.New()
		userID := uuid.New()
		now := time.Now()

		mock.ExpectQuery(`SELECT (.+) FROM bookings`).
			WithArgs(rideID, userID).
			WillReturnRows(sqlmock.NewRows(bookingRows).AddRow(
				bookingID, rideID, userID, "Amadou Bello", "670123456",
				2, 0, "pending", "pending", nil,
				nil, now, now,
			))

		booking, err := repo.GetActiveByRideAndUser(rideID, userID)
		require.NoError(t, err)
		require.NotNil(t, booking)
		assert.Equal(t, bookingID, booking.ID)
		assert.Equal(t, 2, booking.Seats)
		assert.True(t, booking.IsActive())

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM bookings`).
			WillReturnError(sql.ErrNoRows)

		booking, err := repo.GetActiveByRideAndUser(uuid.New(), uuid.New())
		require.NoError(t, err)
		assert.Nil(t, booking)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM bookings`).
			WillReturnError(fmt.Errorf("database error"))

		booking, err := repo.GetActiveByRideAndUser(uuid.New(), uuid.New())
		assert.Error(t, err)
		assert.Nil(t, booking)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdateSeats(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBookingRepository(newTestDB(db))

	t.Run("Success", func(t *testing.T) {
		bookingID := uuid.New()

		mock.ExpectExec(`UPDATE bookings`).
			WithArgs(3, "pending", bookingID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateSeats(bookingID, 3, models.BookingPaymentPending)
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Locked By Payment", func(t *testing.T) {
		bookingID := uuid.New()

		// payment_reference IS NULL predicate matches no rows
		mock.ExpectExec(`UPDATE bookings`).
			WithArgs(3, "pending", bookingID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateSeats(bookingID, 3, models.BookingPaymentPending)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not editable")

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSetPaymentReference(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBookingRepository(newTestDB(db))

	t.Run("Success", func(t *testing.T) {
		bookingID := uuid.New()

		mock.ExpectExec(`UPDATE bookings`).
			WithArgs("mtn-ref-123", bookingID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SetPaymentReference(bookingID, "mtn-ref-123")
		require.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Already Locked", func(t *testing.T) {
		bookingID := uuid.New()

		mock.ExpectExec(`UPDATE bookings`).
			WithArgs("mtn-ref-456", bookingID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SetPaymentReference(bookingID, "mtn-ref-456")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "payment in flight")

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMarkPaid(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBookingRepository(newTestDB(db))

	t.Run("Success", func(t *testing.T) {
		bookingID := uuid.New()
		rideID := uuid.New()
		userID := uuid.New()
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE bookings`).
			WithArgs(bookingID).
			WillReturnRows(sqlmock.NewRows(bookingRows).AddRow(
				bookingID, rideID, userID, "Amadou Bello", "670123456",
				2, 2, "paid", "completed", nil,
				nil, now, now,
			))
		mock.ExpectExec(`UPDATE rides`).
			WithArgs(2, rideID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`SELECT pg_notify`).
			WithArgs(EventsChannel, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		booking, err := repo.MarkPaid(bookingID, 2)
		require.NoError(t, err)
		require.NotNil(t, booking)
		assert.Equal(t, models.BookingStatusPaid, booking.Status)
		assert.Equal(t, 2, booking.PaidSeats)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Insufficient Seats Rolls Back", func(t *testing.T) {
		bookingID := uuid.New()
		rideID := uuid.New()
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE bookings`).
			WithArgs(bookingID).
			WillReturnRows(sqlmock.NewRows(bookingRows).AddRow(
				bookingID, rideID, uuid.New(), "Amadou Bello", "670123456",
				4, 4, "paid", "completed", nil,
				nil, now, now,
			))
		mock.ExpectExec(`UPDATE rides`).
			WithArgs(4, rideID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		booking, err := repo.MarkPaid(bookingID, 4)
		assert.Error(t, err)
		assert.Nil(t, booking)
		assert.Contains(t, err.Error(), "seats left")

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Already Cancelled", func(t *testing.T) {
		bookingID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE bookings`).
			WithArgs(bookingID).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		booking, err := repo.MarkPaid(bookingID, 1)
		assert.Error(t, err)
		assert.Nil(t, booking)
		assert.Contains(t, err.Error(), "not payable")

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCancelBooking(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBookingRepository(newTestDB(db))

	t.Run("Paid Booking Releases Seats", func(t *testing.T) {
		bookingID := uuid.New()
		rideID := uuid.New()
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE bookings`).
			WithArgs(bookingID).
			WillReturnRows(sqlmock.NewRows(bookingRows).AddRow(
				bookingID, rideID, uuid.New(), "Amadou Bello", "670123456",
				2, 2, "cancelled", "completed", nil,
				nil, now, now,
			))
		mock.ExpectExec(`UPDATE rides`).
			WithArgs(2, rideID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`SELECT pg_notify`).
			WithArgs(EventsChannel, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		booking, err := repo.Cancel(bookingID)
		require.NoError(t, err)
		require.NotNil(t, booking)
		assert.Equal(t, models.BookingStatusCancelled, booking.Status)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Pending Booking Skips Seat Release", func(t *testing.T) {
		bookingID := uuid.New()
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE bookings`).
			WithArgs(bookingID).
			WillReturnRows(sqlmock.NewRows(bookingRows).AddRow(
				bookingID, uuid.New(), uuid.New(), "Amadou Bello", "670123456",
				2, 0, "cancelled", "pending", nil,
				nil, now, now,
			))
		mock.ExpectExec(`SELECT pg_notify`).
			WithArgs(EventsChannel, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		booking, err := repo.Cancel(bookingID)
		require.NoError(t, err)
		require.NotNil(t, booking)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
