package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swiftride/booking-backend/internal/models"
)

type fakeMessageStore struct {
	messages []models.Message
	read     []uuid.UUID
}

func (f *fakeMessageStore) Create(msg *models.Message) error {
	msg.ID = uuid.New()
	f.messages = append(f.messages, *msg)
	return nil
}

func (f *fakeMessageStore) ListByBooking(bookingID uuid.UUID) ([]models.Message, error) {
	var out []models.Message
	for _, m := range f.messages {
		if m.BookingID == bookingID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMessageStore) MarkRead(bookingID, recipientID uuid.UUID) error {
	f.read = append(f.read, recipientID)
	return nil
}

func TestSendMessage(t *testing.T) {
	ride := testRide()
	passengerID := uuid.New()

	setup := func(t *testing.T) (*MessageService, *fakeMessageStore, *models.Booking) {
		t.Helper()
		bookings := newFakeBookingStore()
		booking := &models.Booking{RideID: ride.ID, UserID: passengerID, PassengerName: "Amadou Bello", Seats: 1}
		require.NoError(t, bookings.Create(booking))
		store := &fakeMessageStore{}
		return NewMessageService(store, bookings, newFakeRideStore(ride), testLogger()), store, booking
	}

	t.Run("Passenger To Driver", func(t *testing.T) {
		svc, _, booking := setup(t)

		msg, err := svc.SendMessage(passengerID, "Amadou Bello", &models.SendMessageRequest{
			BookingID: booking.ID.String(),
			Body:      "Where do we meet?",
		})

		require.NoError(t, err)
		assert.Equal(t, ride.DriverID, msg.RecipientID)
	})

	t.Run("Driver To Passenger", func(t *testing.T) {
		svc, _, booking := setup(t)

		msg, err := svc.SendMessage(ride.DriverID, "Jean-Paul Mbarga", &models.SendMessageRequest{
			BookingID: booking.ID.String(),
			Body:      "Total filling station, 7am",
		})

		require.NoError(t, err)
		assert.Equal(t, passengerID, msg.RecipientID)
	})

	t.Run("Outsider Rejected", func(t *testing.T) {
		svc, store, booking := setup(t)

		_, err := svc.SendMessage(uuid.New(), "Someone Else", &models.SendMessageRequest{
			BookingID: booking.ID.String(),
			Body:      "hello",
		})

		assert.ErrorIs(t, err, ErrNotParticipant)
		assert.Empty(t, store.messages)
	})
}

func TestListMessages(t *testing.T) {
	ride := testRide()
	passengerID := uuid.New()

	bookings := newFakeBookingStore()
	booking := &models.Booking{RideID: ride.ID, UserID: passengerID, Seats: 1}
	require.NoError(t, bookings.Create(booking))

	store := &fakeMessageStore{}
	svc := NewMessageService(store, bookings, newFakeRideStore(ride), testLogger())

	_, err := svc.SendMessage(passengerID, "Amadou Bello", &models.SendMessageRequest{
		BookingID: booking.ID.String(), Body: "first",
	})
	require.NoError(t, err)

	t.Run("Participant Reads And Marks", func(t *testing.T) {
		msgs, err := svc.ListMessages(ride.DriverID, booking.ID)
		require.NoError(t, err)
		assert.Len(t, msgs, 1)
		assert.Contains(t, store.read, ride.DriverID)
	})

	t.Run("Outsider Rejected", func(t *testing.T) {
		_, err := svc.ListMessages(uuid.New(), booking.ID)
		assert.ErrorIs(t, err, ErrNotParticipant)
	})
}
