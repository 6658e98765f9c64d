package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/swiftride/booking-backend/internal/models"
)

// ErrNotParticipant is returned when a user who is neither the passenger
// nor the driver touches a booking's chat
var ErrNotParticipant = errors.New("user is not a participant in this booking")

type messageStore interface {
	Create(msg *models.Message) error
	ListByBooking(bookingID uuid.UUID) ([]models.Message, error)
	MarkRead(bookingID, recipientID uuid.UUID) error
}

type messageBookingStore interface {
	GetByID(bookingID uuid.UUID) (*models.Booking, error)
}

// MessageService handles the passenger/driver chat attached to a booking.
// Every message has exactly one recipient: the other participant.
type MessageService struct {
	messages messageStore
	bookings messageBookingStore
	rides    rideLookup
	logger   *logrus.Logger
}

// NewMessageService creates a new MessageService
func NewMessageService(messages messageStore, bookings messageBookingStore, rides rideLookup, logger *logrus.Logger) *MessageService {
	return &MessageService{
		messages: messages,
		bookings: bookings,
		rides:    rides,
		logger:   logger,
	}
}

// SendMessage stores a chat message addressed to the other participant.
// Realtime delivery happens through the database change feed.
func (s *MessageService) SendMessage(senderID uuid.UUID, senderName string, req *models.SendMessageRequest) (*models.Message, error) {
	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		return nil, ErrBookingNotFound
	}

	booking, ride, err := s.resolveParticipants(bookingID)
	if err != nil {
		return nil, err
	}

	var recipientID uuid.UUID
	switch senderID {
	case booking.UserID:
		recipientID = ride.DriverID
	case ride.DriverID:
		recipientID = booking.UserID
	default:
		return nil, ErrNotParticipant
	}

	msg := &models.Message{
		BookingID:   bookingID,
		SenderID:    senderID,
		RecipientID: recipientID,
		SenderName:  senderName,
		Body:        req.Body,
	}
	if err := s.messages.Create(msg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"sender_id":  senderID,
	}).Debug("Chat message stored")

	return msg, nil
}

// ListMessages returns the booking's chat history and marks messages
// addressed to the caller as read
func (s *MessageService) ListMessages(userID, bookingID uuid.UUID) ([]models.Message, error) {
	booking, ride, err := s.resolveParticipants(bookingID)
	if err != nil {
		return nil, err
	}
	if userID != booking.UserID && userID != ride.DriverID {
		return nil, ErrNotParticipant
	}

	messages, err := s.messages.ListByBooking(bookingID)
	if err != nil {
		return nil, err
	}

	if err := s.messages.MarkRead(bookingID, userID); err != nil {
		s.logger.WithError(err).WithField("booking_id", bookingID).Warn("Failed to mark messages read")
	}

	return messages, nil
}

func (s *MessageService) resolveParticipants(bookingID uuid.UUID) (*models.Booking, *models.Ride, error) {
	booking, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return nil, nil, err
	}
	if booking == nil {
		return nil, nil, ErrBookingNotFound
	}
	ride, err := s.rides.GetByID(booking.RideID)
	if err != nil {
		return nil, nil, err
	}
	if ride == nil {
		return nil, nil, ErrRideNotFound
	}
	return booking, ride, nil
}
