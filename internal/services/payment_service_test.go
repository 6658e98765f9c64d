package services

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swiftride/booking-backend/internal/config"
	"github.com/swiftride/booking-backend/internal/models"
	"github.com/swiftride/booking-backend/pkg/momo"
)

// ============================================================================
// FAKES
// ============================================================================

type fakePaymentStore struct {
	txns map[uuid.UUID]*models.PaymentTransaction
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{txns: make(map[uuid.UUID]*models.PaymentTransaction)}
}

func (f *fakePaymentStore) Create(txn *models.PaymentTransaction) error {
	f.txns[txn.ID] = txn
	return nil
}

func (f *fakePaymentStore) GetByExternalRef(ref string) (*models.PaymentTransaction, error) {
	for _, txn := range f.txns {
		if txn.ExternalRef == ref {
			return txn, nil
		}
	}
	return nil, nil
}

func (f *fakePaymentStore) SetProviderRef(id uuid.UUID, providerRef string) error {
	f.txns[id].ProviderRef = providerRef
	return nil
}

func (f *fakePaymentStore) ListPending() ([]*models.PaymentTransaction, error) {
	pending := []*models.PaymentTransaction{}
	for _, txn := range f.txns {
		if !txn.IsTerminal() {
			pending = append(pending, txn)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	return pending, nil
}

func (f *fakePaymentStore) MarkSuccessful(id uuid.UUID) (bool, error) {
	txn := f.txns[id]
	if txn.IsTerminal() {
		return false, nil
	}
	txn.Status = models.TransactionSuccessful
	return true, nil
}

func (f *fakePaymentStore) MarkFailed(id uuid.UUID, reason string) (bool, error) {
	txn := f.txns[id]
	if txn.IsTerminal() {
		return false, nil
	}
	txn.Status = models.TransactionFailed
	txn.FailureReason = &reason
	return true, nil
}

func (f *fakePaymentStore) GetLatestByBooking(bookingID uuid.UUID) (*models.PaymentTransaction, error) {
	for _, txn := range f.txns {
		if txn.BookingID == bookingID {
			return txn, nil
		}
	}
	return nil, nil
}

type fakeGateway struct {
	provider    momo.Provider
	providerRef string
	requestErr  error
	requests    []momo.PaymentRequest
}

func (g *fakeGateway) Provider() momo.Provider { return g.provider }

func (g *fakeGateway) RequestPayment(ctx context.Context, req momo.PaymentRequest) (*momo.PaymentInit, error) {
	g.requests = append(g.requests, req)
	if g.requestErr != nil {
		return nil, g.requestErr
	}
	return &momo.PaymentInit{ProviderRef: g.providerRef}, nil
}

func (g *fakeGateway) CheckStatus(ctx context.Context, reference, providerRef string) (*momo.Status, error) {
	return &momo.Status{State: momo.StatusPending}, nil
}

type fakeWatcher struct {
	watched []*models.PaymentTransaction
}

func (w *fakeWatcher) Watch(gateway statusChecker, txn *models.PaymentTransaction, onOutcome OutcomeFunc) {
	w.watched = append(w.watched, txn)
}

type fakeFinalizer struct {
	finalized []*models.PaymentTransaction
	err       error
}

func (f *fakeFinalizer) FinalizePayment(ctx context.Context, txn *models.PaymentTransaction) (*models.Booking, error) {
	f.finalized = append(f.finalized, txn)
	return &models.Booking{ID: txn.BookingID, Status: models.BookingStatusPaid}, f.err
}

type openLimiter struct{}

func (openLimiter) Allow(ctx context.Context, key string) (bool, error) { return true, nil }

type closedLimiter struct{}

func (closedLimiter) Allow(ctx context.Context, key string) (bool, error) { return false, nil }

// ============================================================================
// CREATE PAYMENT
// ============================================================================

type paymentFixture struct {
	svc      *PaymentService
	payments *fakePaymentStore
	bookings *fakeBookingStore
	gateway  *fakeGateway
	watcher  *fakeWatcher
	booking  *models.Booking
	ride     *models.Ride
	userID   uuid.UUID
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()

	ride := testRide()
	userID := uuid.New()

	bookings := newFakeBookingStore()
	booking := &models.Booking{
		RideID:         ride.ID,
		UserID:         userID,
		PassengerName:  "Amadou Bello",
		PassengerPhone: "670123456",
		Seats:          2,
	}
	require.NoError(t, bookings.Create(booking))

	payments := newFakePaymentStore()
	gateway := &fakeGateway{provider: momo.ProviderMTN}
	watcher := &fakeWatcher{}
	finalizer := &fakeFinalizer{}

	svc := NewPaymentService(
		payments, bookings, newFakeRideStore(ride), finalizer,
		map[momo.Provider]momo.Gateway{momo.ProviderMTN: gateway},
		watcher, openLimiter{},
		config.PollingConfig{Interval: time.Second, MaxDuration: 10 * time.Minute},
		config.NotifyConfig{ConfirmationDisplay: 5 * time.Second},
		testLogger(),
	)

	return &paymentFixture{
		svc: svc, payments: payments, bookings: bookings,
		gateway: gateway, watcher: watcher,
		booking: booking, ride: ride, userID: userID,
	}
}

func TestCreatePayment(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		fx := newPaymentFixture(t)

		resp, err := fx.svc.CreatePayment(context.Background(), fx.userID, &models.CreatePaymentRequest{
			BookingID: fx.booking.ID.String(),
			Provider:  "mtn",
			Phone:     "670123456",
		})

		require.NoError(t, err)
		assert.Equal(t, float64(10000), resp.Amount)
		assert.Equal(t, "XAF", resp.Currency)
		assert.Equal(t, float64(100), resp.Fee)
		assert.Equal(t, "*126#", resp.USSDHint)

		// Booking is locked by the reference until the payment settles
		require.NotNil(t, fx.booking.PaymentReference)
		assert.Equal(t, resp.Reference, *fx.booking.PaymentReference)

		// Gateway was asked to prompt the subscriber and polling started
		require.Len(t, fx.gateway.requests, 1)
		assert.Equal(t, resp.Reference, fx.gateway.requests[0].Reference)
		assert.Len(t, fx.watcher.watched, 1)
		assert.Equal(t, 2, fx.watcher.watched[0].SeatsPurchased)
	})

	t.Run("Persists Gateway Provider Ref", func(t *testing.T) {
		fx := newPaymentFixture(t)
		fx.gateway.providerRef = "MP-TOKEN-42"

		resp, err := fx.svc.CreatePayment(context.Background(), fx.userID, &models.CreatePaymentRequest{
			BookingID: fx.booking.ID.String(),
			Provider:  "mtn",
			Phone:     "670123456",
		})
		require.NoError(t, err)

		txn, err := fx.payments.GetByExternalRef(resp.Reference)
		require.NoError(t, err)
		require.NotNil(t, txn)
		assert.Equal(t, "MP-TOKEN-42", txn.ProviderRef,
			"gateway handle must be stored for status checks after a restart")
	})

	t.Run("Phone On Wrong Network", func(t *testing.T) {
		fx := newPaymentFixture(t)

		// 690 prefix belongs to Orange
		_, err := fx.svc.CreatePayment(context.Background(), fx.userID, &models.CreatePaymentRequest{
			BookingID: fx.booking.ID.String(),
			Provider:  "mtn",
			Phone:     "690123456",
		})

		assert.ErrorIs(t, err, ErrProviderMismatch)
		assert.Nil(t, fx.booking.PaymentReference, "validation failures must not lock the booking")
	})

	t.Run("Unknown Provider", func(t *testing.T) {
		fx := newPaymentFixture(t)

		_, err := fx.svc.CreatePayment(context.Background(), fx.userID, &models.CreatePaymentRequest{
			BookingID: fx.booking.ID.String(),
			Provider:  "wave",
			Phone:     "670123456",
		})

		assert.ErrorIs(t, err, ErrUnsupportedProvider)
	})

	t.Run("Foreign Booking", func(t *testing.T) {
		fx := newPaymentFixture(t)

		_, err := fx.svc.CreatePayment(context.Background(), uuid.New(), &models.CreatePaymentRequest{
			BookingID: fx.booking.ID.String(),
			Provider:  "mtn",
			Phone:     "670123456",
		})

		assert.ErrorIs(t, err, ErrNotBookingOwner)
	})

	t.Run("Nothing To Pay", func(t *testing.T) {
		fx := newPaymentFixture(t)
		_, err := fx.bookings.MarkPaid(fx.booking.ID, 2)
		require.NoError(t, err)

		_, err = fx.svc.CreatePayment(context.Background(), fx.userID, &models.CreatePaymentRequest{
			BookingID: fx.booking.ID.String(),
			Provider:  "mtn",
			Phone:     "670123456",
		})

		assert.ErrorIs(t, err, ErrNothingToPay)
	})

	t.Run("Gateway Rejection Unlocks Booking", func(t *testing.T) {
		fx := newPaymentFixture(t)
		fx.gateway.requestErr = errors.New("payer not found")

		_, err := fx.svc.CreatePayment(context.Background(), fx.userID, &models.CreatePaymentRequest{
			BookingID: fx.booking.ID.String(),
			Provider:  "mtn",
			Phone:     "670123456",
		})

		require.Error(t, err)
		assert.Nil(t, fx.booking.PaymentReference)
		assert.Empty(t, fx.watcher.watched, "no polling for a rejected request")
	})

	t.Run("Second Payment While First In Flight", func(t *testing.T) {
		fx := newPaymentFixture(t)

		_, err := fx.svc.CreatePayment(context.Background(), fx.userID, &models.CreatePaymentRequest{
			BookingID: fx.booking.ID.String(), Provider: "mtn", Phone: "670123456",
		})
		require.NoError(t, err)

		_, err = fx.svc.CreatePayment(context.Background(), fx.userID, &models.CreatePaymentRequest{
			BookingID: fx.booking.ID.String(), Provider: "mtn", Phone: "670123456",
		})
		assert.Error(t, err)
	})

	t.Run("Rate Limited", func(t *testing.T) {
		fx := newPaymentFixture(t)
		fx.svc.limiter = closedLimiter{}

		_, err := fx.svc.CreatePayment(context.Background(), fx.userID, &models.CreatePaymentRequest{
			BookingID: fx.booking.ID.String(), Provider: "mtn", Phone: "670123456",
		})

		assert.ErrorIs(t, err, ErrRateLimited)
	})
}

// ============================================================================
// OUTCOME HANDLING
// ============================================================================

func TestHandleOutcome(t *testing.T) {
	setup := func(t *testing.T) (*paymentFixture, *fakeFinalizer, *models.PaymentTransaction) {
		fx := newPaymentFixture(t)
		finalizer := &fakeFinalizer{}
		fx.svc.finalizer = finalizer

		resp, err := fx.svc.CreatePayment(context.Background(), fx.userID, &models.CreatePaymentRequest{
			BookingID: fx.booking.ID.String(), Provider: "mtn", Phone: "670123456",
		})
		require.NoError(t, err)

		txn, err := fx.payments.GetByExternalRef(resp.Reference)
		require.NoError(t, err)
		require.NotNil(t, txn)
		return fx, finalizer, txn
	}

	t.Run("Success Finalizes Booking Exactly Once", func(t *testing.T) {
		fx, finalizer, txn := setup(t)

		outcome := models.PollOutcome{State: models.PollSucceeded}
		fx.svc.HandleOutcome(txn, outcome)
		fx.svc.HandleOutcome(txn, outcome)

		assert.Equal(t, models.TransactionSuccessful, txn.Status)
		assert.Len(t, finalizer.finalized, 1, "duplicate outcomes must not double-apply")
	})

	t.Run("Decline Records Reason And Unlocks", func(t *testing.T) {
		fx, finalizer, txn := setup(t)

		fx.svc.HandleOutcome(txn, models.PollOutcome{State: models.PollDeclined, Reason: "APPROVAL_REJECTED"})

		assert.Equal(t, models.TransactionFailed, txn.Status)
		require.NotNil(t, txn.FailureReason)
		assert.Equal(t, "APPROVAL_REJECTED", *txn.FailureReason)
		assert.Nil(t, fx.booking.PaymentReference, "decline must release the seat-edit lock")
		assert.Empty(t, finalizer.finalized)
	})

	t.Run("Unknown Keeps Transaction Pending", func(t *testing.T) {
		fx, finalizer, txn := setup(t)

		fx.svc.HandleOutcome(txn, models.PollOutcome{State: models.PollUnknown, Cause: errors.New("gateway unreachable")})

		assert.Equal(t, models.TransactionPending, txn.Status, "unknown is not a decline")
		assert.Nil(t, txn.FailureReason)
		assert.Nil(t, fx.booking.PaymentReference, "passenger can retry after the window")
		assert.Empty(t, finalizer.finalized)
	})
}

func TestGetStatus(t *testing.T) {
	fx := newPaymentFixture(t)

	resp, err := fx.svc.CreatePayment(context.Background(), fx.userID, &models.CreatePaymentRequest{
		BookingID: fx.booking.ID.String(), Provider: "mtn", Phone: "670123456",
	})
	require.NoError(t, err)

	t.Run("Known Reference", func(t *testing.T) {
		status, err := fx.svc.GetStatus(resp.Reference)
		require.NoError(t, err)
		assert.Equal(t, models.TransactionPending, status.Status)
		assert.Equal(t, fx.booking.ID, status.BookingID)
		assert.Equal(t, 5, status.ConfirmationDisplaySeconds)
	})

	t.Run("Unknown Reference", func(t *testing.T) {
		_, err := fx.svc.GetStatus(uuid.NewString())
		assert.ErrorIs(t, err, ErrPaymentNotFound)
	})
}

// ============================================================================
// RESUME PENDING
// ============================================================================

func TestResumePending(t *testing.T) {
	pendingTxn := func(fx *paymentFixture, age time.Duration, provider string) *models.PaymentTransaction {
		txn := &models.PaymentTransaction{
			ID:          uuid.New(),
			BookingID:   fx.booking.ID,
			UserID:      fx.userID,
			Provider:    provider,
			ExternalRef: uuid.NewString(),
			Status:      models.TransactionPending,
			CreatedAt:   time.Now().Add(-age),
		}
		fx.payments.txns[txn.ID] = txn
		return txn
	}

	t.Run("Rewatches Recent Transactions", func(t *testing.T) {
		fx := newPaymentFixture(t)
		txn := pendingTxn(fx, time.Minute, "mtn")
		txn.ProviderRef = "MP-TOKEN-42"

		require.NoError(t, fx.svc.ResumePending())

		require.Len(t, fx.watcher.watched, 1)
		assert.Equal(t, txn.ID, fx.watcher.watched[0].ID)
		assert.Equal(t, "MP-TOKEN-42", fx.watcher.watched[0].ProviderRef)
		assert.Equal(t, models.TransactionPending, txn.Status)
	})

	t.Run("Expires Stale Transactions And Unlocks Booking", func(t *testing.T) {
		fx := newPaymentFixture(t)
		txn := pendingTxn(fx, time.Hour, "mtn")
		require.NoError(t, fx.bookings.SetPaymentReference(fx.booking.ID, txn.ExternalRef))

		require.NoError(t, fx.svc.ResumePending())

		assert.Empty(t, fx.watcher.watched)
		assert.Equal(t, models.TransactionFailed, txn.Status)
		require.NotNil(t, txn.FailureReason)
		assert.Nil(t, fx.booking.PaymentReference, "expiry must release the seat-edit lock")
	})

	t.Run("Skips Transactions Without A Gateway", func(t *testing.T) {
		fx := newPaymentFixture(t)
		txn := pendingTxn(fx, time.Minute, "orange")

		require.NoError(t, fx.svc.ResumePending())

		assert.Empty(t, fx.watcher.watched)
		assert.Equal(t, models.TransactionPending, txn.Status)
	})

	t.Run("Ignores Terminal Transactions", func(t *testing.T) {
		fx := newPaymentFixture(t)
		txn := pendingTxn(fx, time.Minute, "mtn")
		txn.Status = models.TransactionSuccessful

		require.NoError(t, fx.svc.ResumePending())
		assert.Empty(t, fx.watcher.watched)
	})
}
