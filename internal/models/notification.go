package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationKind identifies what triggered a notification
type NotificationKind string

const (
	NotificationBookingCreated   NotificationKind = "booking_created"  // Silent: unpaid request, data refresh only
	NotificationPaymentReceived  NotificationKind = "payment_received" // Noisy: seats are now paid for
	NotificationNewMessage       NotificationKind = "new_message"
	NotificationBookingCancelled NotificationKind = "booking_cancelled"
)

// Notification is a single push/realtime notification addressed to a user.
// Silent notifications carry data only and never surface an alert.
type Notification struct {
	ID        string            `json:"id"`
	UserID    uuid.UUID         `json:"user_id"`
	Kind      NotificationKind  `json:"kind"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	Silent    bool              `json:"silent"`
	Attempts  int               `json:"attempts"`
	CreatedAt time.Time         `json:"created_at"`
}

// WSMessage is the envelope delivered over the websocket connection
type WSMessage struct {
	Type    string      `json:"type"` // BOOKING_STATUS_UPDATE, PAYMENT_STATUS_UPDATE, NEW_MESSAGE
	Payload interface{} `json:"payload"`
}

// Websocket message types
const (
	WSBookingStatusUpdate = "BOOKING_STATUS_UPDATE"
	WSPaymentStatusUpdate = "PAYMENT_STATUS_UPDATE"
	WSNewMessage          = "NEW_MESSAGE"
)

// RegisterPushTokenRequest stores a device token for push delivery
type RegisterPushTokenRequest struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform" binding:"omitempty,oneof=android ios web"`
}

// NotifyBookingRequest triggers the booking-created notification without
// waiting for the change feed
type NotifyBookingRequest struct {
	BookingID string `json:"booking_id" binding:"required,uuid"`
}

// SendPushRequest is the direct push endpoint payload (internal tooling)
type SendPushRequest struct {
	UserID string            `json:"user_id" binding:"required,uuid"`
	Title  string            `json:"title" binding:"required"`
	Body   string            `json:"body" binding:"required"`
	Data   map[string]string `json:"data,omitempty"`
	Silent bool              `json:"silent"`
}
