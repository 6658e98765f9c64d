package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/swiftride/booking-backend/internal/config"
	"github.com/swiftride/booking-backend/internal/middleware"
	"github.com/swiftride/booking-backend/internal/models"
	"github.com/swiftride/booking-backend/pkg/momo"
	"github.com/swiftride/booking-backend/pkg/validator"
)

var (
	ErrNothingToPay        = errors.New("all requested seats are already paid for")
	ErrPaymentNotFound     = errors.New("payment transaction not found")
	ErrUnsupportedProvider = errors.New("unsupported payment provider")
	ErrProviderMismatch    = errors.New("phone number does not belong to the selected provider")
	ErrRateLimited         = errors.New("too many payment attempts, try again shortly")
)

type paymentStore interface {
	Create(txn *models.PaymentTransaction) error
	GetByExternalRef(ref string) (*models.PaymentTransaction, error)
	SetProviderRef(txnID uuid.UUID, providerRef string) error
	ListPending() ([]*models.PaymentTransaction, error)
	MarkSuccessful(txnID uuid.UUID) (bool, error)
	MarkFailed(txnID uuid.UUID, reason string) (bool, error)
	GetLatestByBooking(bookingID uuid.UUID) (*models.PaymentTransaction, error)
}

type paymentBookingStore interface {
	GetByID(bookingID uuid.UUID) (*models.Booking, error)
	SetPaymentReference(bookingID uuid.UUID, reference string) error
	ClearPaymentReference(bookingID uuid.UUID, reference string) error
}

type paymentFinalizer interface {
	FinalizePayment(ctx context.Context, txn *models.PaymentTransaction) (*models.Booking, error)
}

type pollWatcher interface {
	Watch(gateway statusChecker, txn *models.PaymentTransaction, onOutcome OutcomeFunc)
}

type requestLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// PaymentService initiates mobile money charges for bookings and resolves
// their outcomes. A charge covers exactly the booking's unpaid seats:
// first payments cover everything, top-ups after a seat increase cover
// only the new seats.
type PaymentService struct {
	payments  paymentStore
	bookings  paymentBookingStore
	rides     rideLookup
	finalizer paymentFinalizer
	gateways  map[momo.Provider]momo.Gateway
	poller    pollWatcher
	limiter   requestLimiter
	phones    *validator.PhoneValidator
	logger    *logrus.Logger

	// Poll window after which an orphaned PENDING transaction is
	// considered abandoned on restart
	pollWindow time.Duration

	// How long clients should hold the confirmation screen
	confirmationDisplay time.Duration
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(payments paymentStore, bookings paymentBookingStore, rides rideLookup, finalizer paymentFinalizer, gateways map[momo.Provider]momo.Gateway, poller pollWatcher, limiter requestLimiter, polling config.PollingConfig, notify config.NotifyConfig, logger *logrus.Logger) *PaymentService {
	return &PaymentService{
		payments:            payments,
		bookings:            bookings,
		rides:               rides,
		finalizer:           finalizer,
		gateways:            gateways,
		poller:              poller,
		limiter:             limiter,
		phones:              validator.NewPhoneValidator(),
		logger:              logger,
		pollWindow:          polling.MaxDuration,
		confirmationDisplay: notify.ConfirmationDisplay,
	}
}

// Providers lists the supported mobile money providers with their fees
// and limits
func (s *PaymentService) Providers() []momo.ProviderConfig {
	return momo.Providers()
}

// CreatePayment validates the request, locks the booking, asks the
// gateway to prompt the subscriber, and starts background polling for
// the outcome
func (s *PaymentService) CreatePayment(ctx context.Context, userID uuid.UUID, req *models.CreatePaymentRequest) (*models.CreatePaymentResponse, error) {
	allowed, err := s.limiter.Allow(ctx, fmt.Sprintf("payments:%s", userID))
	if err == nil && !allowed {
		return nil, ErrRateLimited
	}

	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		return nil, ErrBookingNotFound
	}

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
	if booking.UnpaidSeats() <= 0 {
		return nil, ErrNothingToPay
	}

	providerCfg, err := momo.GetProvider(req.Provider)
	if err != nil {
		return nil, ErrUnsupportedProvider
	}
	gateway, ok := s.gateways[providerCfg.Code]
	if !ok {
		return nil, ErrUnsupportedProvider
	}

	phone, err := s.phones.Validate(req.Phone)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPhoneNumber, err)
	}
	operator, err := s.phones.GetOperator(phone)
	if err != nil || operator != string(providerCfg.Code) {
		return nil, ErrProviderMismatch
	}

	ride, err := s.rides.GetByID(booking.RideID)
	if err != nil || ride == nil {
		return nil, ErrRideNotFound
	}

	amount := float64(booking.UnpaidSeats()) * ride.PricePerSeat
	if err := providerCfg.ValidateAmount(amount); err != nil {
		return nil, err
	}

	reference := uuid.NewString()

	// Lock the booking before talking to the gateway. A booking with a
	// reference set rejects seat edits and concurrent payment attempts.
	if err := s.bookings.SetPaymentReference(bookingID, reference); err != nil {
		return nil, fmt.Errorf("booking already has a payment in flight: %w", err)
	}

	txn := &models.PaymentTransaction{
		ID:             uuid.New(),
		BookingID:      bookingID,
		UserID:         userID,
		Provider:       string(providerCfg.Code),
		Phone:          phone,
		Amount:         amount,
		Currency:       ride.Currency,
		SeatsPurchased: booking.UnpaidSeats(),
		ExternalRef:    reference,
		Status:         models.TransactionPending,
	}
	if err := s.payments.Create(txn); err != nil {
		s.unlockBooking(bookingID, reference)
		return nil, fmt.Errorf("failed to record payment transaction: %w", err)
	}

	gwReq := momo.PaymentRequest{
		Reference:   reference,
		Amount:      amount,
		Currency:    ride.Currency,
		Phone:       phone,
		Description: fmt.Sprintf("SwiftRide: %d seat(s) %s to %s", txn.SeatsPurchased, ride.Origin, ride.Destination),
	}
	init, err := gateway.RequestPayment(ctx, gwReq)
	if err != nil {
		s.payments.MarkFailed(txn.ID, "gateway rejected payment request")
		s.unlockBooking(bookingID, reference)
		return nil, fmt.Errorf("payment request rejected: %w", err)
	}
	if init.ProviderRef != "" {
		txn.ProviderRef = init.ProviderRef
		// Persist the gateway handle so a restarted process can still
		// check status. The in-memory copy keeps this watch working if
		// the write fails.
		if err := s.payments.SetProviderRef(txn.ID, init.ProviderRef); err != nil {
			s.logger.WithError(err).WithField("transaction_id", txn.ID).
				Error("Failed to persist gateway provider ref")
		}
	}

	s.poller.Watch(gateway, txn, s.HandleOutcome)
	middleware.TrackPayment(txn.Provider)

	s.logger.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"booking_id":     bookingID,
		"provider":       txn.Provider,
		"amount":         amount,
		"seats":          txn.SeatsPurchased,
	}).Info("Payment initiated")

	return &models.CreatePaymentResponse{
		TransactionID: txn.ID,
		Reference:     reference,
		Provider:      string(providerCfg.Code),
		Amount:        amount,
		Currency:      ride.Currency,
		Fee:           providerCfg.Fee(amount),
		USSDHint:      providerCfg.USSDHint,
	}, nil
}

// GetStatus reports the current transaction state to a polling client
func (s *PaymentService) GetStatus(reference string) (*models.PaymentStatusResponse, error) {
	txn, err := s.payments.GetByExternalRef(reference)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, ErrPaymentNotFound
	}
	return &models.PaymentStatusResponse{
		Reference:                  txn.ExternalRef,
		Status:                     txn.Status,
		FailureReason:              txn.FailureReason,
		BookingID:                  txn.BookingID,
		ConfirmationDisplaySeconds: int(s.confirmationDisplay / time.Second),
	}, nil
}

// ResumePending re-adopts transactions left PENDING by a previous
// process. Transactions still inside the poll window get a fresh watch;
// older ones are expired and their bookings unlocked so passengers can
// retry.
func (s *PaymentService) ResumePending() error {
	txns, err := s.payments.ListPending()
	if err != nil {
		return fmt.Errorf("failed to list pending transactions: %w", err)
	}

	cutoff := time.Now().Add(-s.pollWindow)
	resumed, expired := 0, 0

	for _, txn := range txns {
		log := s.logger.WithFields(logrus.Fields{
			"transaction_id": txn.ID,
			"reference":      txn.ExternalRef,
			"provider":       txn.Provider,
		})

		if txn.CreatedAt.Before(cutoff) {
			applied, err := s.payments.MarkFailed(txn.ID, "expired before an outcome was determined")
			if err != nil {
				log.WithError(err).Error("Failed to expire stale transaction")
				continue
			}
			if applied {
				s.unlockBooking(txn.BookingID, txn.ExternalRef)
				expired++
			}
			continue
		}

		gateway, ok := s.gateways[momo.Provider(txn.Provider)]
		if !ok {
			log.Warn("No gateway configured for pending transaction, leaving as is")
			continue
		}
		s.poller.Watch(gateway, txn, s.HandleOutcome)
		resumed++
	}

	if resumed > 0 || expired > 0 {
		s.logger.WithFields(logrus.Fields{
			"resumed": resumed,
			"expired": expired,
		}).Info("Re-adopted pending payment transactions")
	}
	return nil
}

// HandleOutcome applies a final poll outcome to the transaction and its
// booking. The status transition in the payment store is the exactly-once
// guard: only the caller that flips PENDING to a terminal state applies
// side effects, so duplicate outcomes are harmless.
func (s *PaymentService) HandleOutcome(txn *models.PaymentTransaction, outcome models.PollOutcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log := s.logger.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"reference":      txn.ExternalRef,
		"state":          outcome.State,
	})
	middleware.TrackPaymentOutcome(txn.Provider, string(outcome.State))

	switch outcome.State {
	case models.PollSucceeded:
		applied, err := s.payments.MarkSuccessful(txn.ID)
		if err != nil {
			log.WithError(err).Error("Failed to mark transaction successful")
			return
		}
		if !applied {
			log.Debug("Transaction already terminal, skipping")
			return
		}
		if _, err := s.finalizer.FinalizePayment(ctx, txn); err != nil {
			log.WithError(err).Error("Failed to apply confirmed payment to booking")
		}

	case models.PollDeclined:
		reason := outcome.Reason
		if reason == "" {
			reason = "declined by gateway"
		}
		applied, err := s.payments.MarkFailed(txn.ID, reason)
		if err != nil {
			log.WithError(err).Error("Failed to mark transaction failed")
			return
		}
		if applied {
			s.unlockBooking(txn.BookingID, txn.ExternalRef)
			log.WithField("reason", reason).Info("Payment declined, booking unlocked")
		}

	case models.PollUnknown:
		// Outcome could not be determined. The transaction stays
		// PENDING so ResumePending can settle it on the next start,
		// but the booking is unlocked so the passenger can retry.
		s.unlockBooking(txn.BookingID, txn.ExternalRef)
		log.WithError(outcome.Cause).Warn("Payment outcome unknown after poll window")
	}
}

func (s *PaymentService) unlockBooking(bookingID uuid.UUID, reference string) {
	if err := s.bookings.ClearPaymentReference(bookingID, reference); err != nil {
		s.logger.WithError(err).WithField("booking_id", bookingID).Error("Failed to clear payment reference")
	}
}
