package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/swiftride/booking-backend/internal/models"
)

// MessageRepository handles database operations for the messages table
type MessageRepository struct {
	db DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a chat message and publishes a message_created event
func (r *MessageRepository) Create(msg *models.Message) error {
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now()

	query := `
		INSERT INTO messages (id, booking_id, sender_id, recipient_id, sender_name, body, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7)`

	_, err := r.db.Exec(query,
		msg.ID, msg.BookingID, msg.SenderID, msg.RecipientID,
		msg.SenderName, msg.Body, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return notifyEvent(r.db, "messages", EventMessageCreated, msg)
}

// ListByBooking retrieves the conversation for a booking, oldest first
func (r *MessageRepository) ListByBooking(bookingID uuid.UUID) ([]models.Message, error) {
	messages := []models.Message{}
	query := `
		SELECT id, booking_id, sender_id, recipient_id, sender_name, body, read, created_at
		FROM messages WHERE booking_id = $1 ORDER BY created_at ASC`
	if err := r.db.Select(&messages, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// MarkRead marks all messages addressed to the user on a booking as read
func (r *MessageRepository) MarkRead(bookingID, recipientID uuid.UUID) error {
	query := `UPDATE messages SET read = true WHERE booking_id = $1 AND recipient_id = $2 AND read = false`
	if _, err := r.db.Exec(query, bookingID, recipientID); err != nil {
		return fmt.Errorf("failed to mark messages read: %w", err)
	}
	return nil
}
