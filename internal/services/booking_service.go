package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/swiftride/booking-backend/internal/models"
)

// Sentinel errors mapped to HTTP statuses at the handler layer
var (
	ErrRideNotFound       = errors.New("ride not found")
	ErrRideNotBookable    = errors.New("ride is no longer accepting bookings")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrNotBookingOwner    = errors.New("booking belongs to another user")
	ErrBookingNotActive   = errors.New("booking is no longer active")
	ErrSeatsBelowPaid     = errors.New("seat count cannot drop below seats already paid for")
	ErrInvalidPhoneNumber = errors.New("invalid phone number")
)

type bookingStore interface {
	Create(booking *models.Booking) error
	GetByID(bookingID uuid.UUID) (*models.Booking, error)
	GetActiveByRideAndUser(rideID, userID uuid.UUID) (*models.Booking, error)
	GetByIdempotencyKey(userID uuid.UUID, key string) (*models.Booking, error)
	UpdateSeats(bookingID uuid.UUID, seats int, paymentStatus models.BookingPaymentStatus) error
	MarkPaid(bookingID uuid.UUID, seatsPurchased int) (*models.Booking, error)
	Cancel(bookingID uuid.UUID) (*models.Booking, error)
	ListByUser(userID uuid.UUID) ([]models.Booking, error)
}

type rideStore interface {
	GetByID(rideID uuid.UUID) (*models.Ride, error)
	List(req *models.ListRidesRequest) ([]models.Ride, error)
}

type bookingCacher interface {
	GetUserBooking(ctx context.Context, userID, rideID uuid.UUID) (*models.Booking, bool)
	SetUserBooking(ctx context.Context, userID, rideID uuid.UUID, booking *models.Booking)
	Invalidate(ctx context.Context, userID, rideID uuid.UUID)
}

type bookingNotifier interface {
	NotifyBookingCreated(booking *models.Booking, ride *models.Ride)
	NotifyPaymentReceived(booking *models.Booking, ride *models.Ride, paidSeats int)
	NotifyBookingCancelled(booking *models.Booking, ride *models.Ride)
}

// BookingService implements the booking wizard: one active booking per
// user per ride, upserted as the passenger adjusts seats, locked while a
// payment is in flight.
type BookingService struct {
	bookings bookingStore
	rides    rideStore
	cache    bookingCacher
	notifier bookingNotifier
	logger   *logrus.Logger
}

// NewBookingService creates a new BookingService
func NewBookingService(bookings bookingStore, rides rideStore, cache bookingCacher, notifier bookingNotifier, logger *logrus.Logger) *BookingService {
	return &BookingService{
		bookings: bookings,
		rides:    rides,
		cache:    cache,
		notifier: notifier,
		logger:   logger,
	}
}

// ListRides returns bookable rides matching the search filters
func (s *BookingService) ListRides(req *models.ListRidesRequest) ([]models.Ride, error) {
	return s.rides.List(req)
}

// GetRide returns one ride by ID
func (s *BookingService) GetRide(rideID uuid.UUID) (*models.Ride, error) {
	ride, err := s.rides.GetByID(rideID)
	if err != nil {
		return nil, err
	}
	if ride == nil {
		return nil, ErrRideNotFound
	}
	return ride, nil
}

// GetExistingBooking returns the user's active booking on a ride, if any.
// The wizard calls this before opening so it can resume instead of
// creating a duplicate. Cache-first: a hit skips the database entirely,
// including cached absence.
func (s *BookingService) GetExistingBooking(ctx context.Context, userID, rideID uuid.UUID) (*models.Booking, error) {
	if booking, ok := s.cache.GetUserBooking(ctx, userID, rideID); ok {
		return booking, nil
	}

	booking, err := s.bookings.GetActiveByRideAndUser(rideID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing booking: %w", err)
	}

	s.cache.SetUserBooking(ctx, userID, rideID, booking)
	return booking, nil
}

// UpsertBooking creates the user's booking on a ride or adjusts the seat
// count of their existing active one. Paid seats are a floor: the count
// can grow past them (charging only the difference) but never shrink
// below them. A booking with a payment in flight rejects all edits.
func (s *BookingService) UpsertBooking(ctx context.Context, userID uuid.UUID, req *models.UpsertBookingRequest) (*models.BookingResponse, error) {
	rideID, err := uuid.Parse(req.RideID)
	if err != nil {
		return nil, ErrRideNotFound
	}

	// Idempotency replay: a retried request returns the stored result
	// without touching seats again
	if req.IdempotencyKey != nil && *req.IdempotencyKey != "" {
		stored, err := s.bookings.GetByIdempotencyKey(userID, *req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed idempotency lookup: %w", err)
		}
		if stored != nil {
			ride, err := s.rides.GetByID(stored.RideID)
			if err != nil || ride == nil {
				return nil, ErrRideNotFound
			}
			return s.response(stored, ride, true), nil
		}
	}

	ride, err := s.rides.GetByID(rideID)
	if err != nil {
		return nil, err
	}
	if ride == nil {
		return nil, ErrRideNotFound
	}

	existing, err := s.bookings.GetActiveByRideAndUser(rideID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing booking: %w", err)
	}

	if existing == nil {
		return s.createBooking(ctx, userID, rideID, ride, req)
	}
	return s.updateBooking(ctx, existing, ride, req)
}

func (s *BookingService) createBooking(ctx context.Context, userID, rideID uuid.UUID, ride *models.Ride, req *models.UpsertBookingRequest) (*models.BookingResponse, error) {
	if !ride.IsBookable() {
		return nil, ErrRideNotBookable
	}
	if req.Seats > ride.SeatsAvailable {
		return nil, &models.SeatsUnavailableError{Requested: req.Seats, Available: ride.SeatsAvailable}
	}

	booking := &models.Booking{
		RideID:         rideID,
		UserID:         userID,
		PassengerName:  req.PassengerName,
		PassengerPhone: req.PassengerPhone,
		Seats:          req.Seats,
		IdempotencyKey: req.IdempotencyKey,
	}
	if err := s.bookings.Create(booking); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	s.cache.Invalidate(ctx, userID, rideID)
	s.notifier.NotifyBookingCreated(booking, ride)

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"ride_id":    rideID,
		"user_id":    userID,
		"seats":      req.Seats,
	}).Info("Booking created")

	return s.response(booking, ride, true), nil
}

func (s *BookingService) updateBooking(ctx context.Context, booking *models.Booking, ride *models.Ride, req *models.UpsertBookingRequest) (*models.BookingResponse, error) {
	if booking.IsLocked() {
		return nil, &models.BookingLockedError{
			BookingID:        booking.ID,
			PaymentReference: *booking.PaymentReference,
		}
	}

	if req.Seats < booking.SeatFloor() && booking.PaidSeats > 0 {
		return nil, ErrSeatsBelowPaid
	}

	// Only seats beyond what the booking already holds compete for the
	// ride's remaining availability. Paid seats were decremented from
	// the ride at payment time; unpaid requested seats hold nothing.
	additional := req.Seats - booking.PaidSeats
	if additional > ride.SeatsAvailable {
		return nil, &models.SeatsUnavailableError{Requested: req.Seats, Available: ride.SeatsAvailable + booking.PaidSeats}
	}

	paymentStatus := models.BookingPaymentPending
	if booking.PaidSeats > 0 {
		if req.Seats > booking.PaidSeats {
			paymentStatus = models.BookingPaymentPartial
		} else {
			paymentStatus = models.BookingPaymentCompleted
		}
	}

	if err := s.bookings.UpdateSeats(booking.ID, req.Seats, paymentStatus); err != nil {
		return nil, fmt.Errorf("failed to update booking seats: %w", err)
	}

	booking.Seats = req.Seats
	booking.PaymentStatus = paymentStatus
	s.cache.Invalidate(ctx, booking.UserID, booking.RideID)

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"seats":      req.Seats,
		"paid_seats": booking.PaidSeats,
	}).Info("Booking seats updated")

	return s.response(booking, ride, false), nil
}

// CancelBooking cancels the user's booking and releases any paid seats
// back to the ride
func (s *BookingService) CancelBooking(ctx context.Context, userID, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}
	if booking.UserID != userID {
		return nil, ErrNotBookingOwner
	}
	if !booking.IsActive() {
		return nil, ErrBookingNotActive
	}

	cancelled, err := s.bookings.Cancel(bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}

	s.cache.Invalidate(ctx, userID, booking.RideID)

	if ride, err := s.rides.GetByID(booking.RideID); err == nil && ride != nil {
		s.notifier.NotifyBookingCancelled(cancelled, ride)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":     bookingID,
		"released_seats": booking.PaidSeats,
	}).Info("Booking cancelled")

	return cancelled, nil
}

// GetBooking returns one booking, enforcing ownership
func (s *BookingService) GetBooking(userID, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}
	if booking.UserID != userID {
		// The ride's driver may also view bookings on their ride
		ride, rideErr := s.rides.GetByID(booking.RideID)
		if rideErr != nil || ride == nil || ride.DriverID != userID {
			return nil, ErrNotBookingOwner
		}
	}
	return booking, nil
}

// ListUserBookings returns the user's booking history
func (s *BookingService) ListUserBookings(userID uuid.UUID) ([]models.Booking, error) {
	return s.bookings.ListByUser(userID)
}

// FinalizePayment applies a confirmed payment to its booking: marks the
// purchased seats paid, decrements ride availability, and notifies the
// driver. Called from the payment poller after the gateway confirms.
func (s *BookingService) FinalizePayment(ctx context.Context, txn *models.PaymentTransaction) (*models.Booking, error) {
	booking, err := s.bookings.MarkPaid(txn.BookingID, txn.SeatsPurchased)
	if err != nil {
		return nil, fmt.Errorf("failed to mark booking paid: %w", err)
	}

	s.cache.Invalidate(ctx, booking.UserID, booking.RideID)

	if ride, err := s.rides.GetByID(booking.RideID); err == nil && ride != nil {
		s.notifier.NotifyPaymentReceived(booking, ride, booking.PaidSeats)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"paid_seats": booking.PaidSeats,
		"reference":  txn.ExternalRef,
	}).Info("Payment applied to booking")

	return booking, nil
}

func (s *BookingService) response(booking *models.Booking, ride *models.Ride, created bool) *models.BookingResponse {
	return &models.BookingResponse{
		Booking:   booking,
		AmountDue: float64(booking.UnpaidSeats()) * ride.PricePerSeat,
		Currency:  ride.Currency,
		Created:   created,
	}
}
