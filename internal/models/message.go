package models

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a chat message between the passenger and the driver
// of a booking (messages table)
type Message struct {
	ID          uuid.UUID `json:"id" db:"id"`
	BookingID   uuid.UUID `json:"booking_id" db:"booking_id"`
	SenderID    uuid.UUID `json:"sender_id" db:"sender_id"`
	RecipientID uuid.UUID `json:"recipient_id" db:"recipient_id"`
	SenderName  string    `json:"sender_name" db:"sender_name"`
	Body        string    `json:"body" db:"body"`
	Read        bool      `json:"read" db:"read"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// SendMessageRequest posts a chat message on a booking conversation
type SendMessageRequest struct {
	BookingID string `json:"booking_id" binding:"required,uuid"`
	Body      string `json:"body" binding:"required,max=2000"`
}
