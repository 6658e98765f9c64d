package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/swiftride/booking-backend/internal/config"
	"github.com/swiftride/booking-backend/internal/database"
	"github.com/swiftride/booking-backend/internal/middleware"
	"github.com/swiftride/booking-backend/internal/models"
)

type realtimeSender interface {
	SendToUser(userID uuid.UUID, msg models.WSMessage) bool
	IsOnline(userID uuid.UUID) bool
}

type retryEnqueuer interface {
	Enqueue(ctx context.Context, n *models.Notification)
}

type rideLookup interface {
	GetByID(rideID uuid.UUID) (*models.Ride, error)
}

// NotificationManager routes booking and chat events to the users they
// concern. Events arrive twice for most actions, once synchronously from
// the service that performed the write and once from the database change
// feed, so every delivery is keyed and deduplicated before it goes out.
type NotificationManager struct {
	hub    realtimeSender
	push   pushSender
	queue  retryEnqueuer
	rides  rideLookup
	tokens deviceTokenStore
	cfg    config.NotifyConfig
	logger *logrus.Logger

	// Capped FIFO set of recently delivered keys
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

// NewNotificationManager creates a new NotificationManager
func NewNotificationManager(hub realtimeSender, push pushSender, queue retryEnqueuer, rides rideLookup, tokens deviceTokenStore, cfg config.NotifyConfig, logger *logrus.Logger) *NotificationManager {
	return &NotificationManager{
		hub:    hub,
		push:   push,
		queue:  queue,
		rides:  rides,
		tokens: tokens,
		cfg:    cfg,
		logger: logger,
		seen:   make(map[string]struct{}),
		order:  make([]string, 0, cfg.DedupeCapacity),
	}
}

// HandleChange is the database change feed entry point. It runs on the
// listener goroutine, so anything slow (push delivery) happens inline but
// bounded by HTTP timeouts.
func (m *NotificationManager) HandleChange(event database.ChangeEvent) {
	switch event.EventType {
	case database.EventBookingCreated, database.EventBookingPaid, database.EventBookingCancelled:
		var booking models.Booking
		if err := json.Unmarshal(event.New, &booking); err != nil {
			m.logger.WithError(err).Warn("Failed to decode booking change event")
			return
		}
		m.handleBookingEvent(event.EventType, &booking)
	case database.EventMessageCreated:
		var msg models.Message
		if err := json.Unmarshal(event.New, &msg); err != nil {
			m.logger.WithError(err).Warn("Failed to decode message change event")
			return
		}
		m.NotifyNewMessage(&msg)
	default:
		m.logger.WithField("event_type", event.EventType).Debug("Ignoring unhandled change event")
	}
}

func (m *NotificationManager) handleBookingEvent(eventType string, booking *models.Booking) {
	ride, err := m.rides.GetByID(booking.RideID)
	if err != nil || ride == nil {
		m.logger.WithError(err).WithField("ride_id", booking.RideID).Warn("Failed to resolve ride for booking event")
		return
	}

	switch eventType {
	case database.EventBookingCreated:
		m.NotifyBookingCreated(booking, ride)
	case database.EventBookingPaid:
		m.NotifyPaymentReceived(booking, ride, booking.PaidSeats)
	case database.EventBookingCancelled:
		m.NotifyBookingCancelled(booking, ride)
	}
}

// NotifyBookingCreated tells the driver a seat request came in. The
// notification is silent: nothing is paid yet, so the driver's app just
// refreshes its passenger list without a sound.
func (m *NotificationManager) NotifyBookingCreated(booking *models.Booking, ride *models.Ride) {
	key := fmt.Sprintf("booking_created:%s", booking.ID)
	if !m.markSeen(key) {
		return
	}

	n := &models.Notification{
		ID:     key,
		UserID: ride.DriverID,
		Kind:   models.NotificationBookingCreated,
		Title:  "New seat request",
		Body:   fmt.Sprintf("%s requested %d seat(s) for %s to %s", booking.PassengerName, booking.Seats, ride.Origin, ride.Destination),
		Data: map[string]string{
			"booking_id": booking.ID.String(),
			"ride_id":    ride.ID.String(),
			"status":     string(booking.Status),
		},
		Silent:    true,
		CreatedAt: time.Now(),
	}
	m.deliver(n, models.WSMessage{Type: models.WSBookingStatusUpdate, Payload: booking})
}

// NotifyPaymentReceived tells the driver seats were paid for. Unlike the
// initial request this one makes noise, because paid seats change what
// the driver can still sell.
func (m *NotificationManager) NotifyPaymentReceived(booking *models.Booking, ride *models.Ride, paidSeats int) {
	key := fmt.Sprintf("booking_paid:%s:%d", booking.ID, paidSeats)
	if !m.markSeen(key) {
		return
	}

	n := &models.Notification{
		ID:     key,
		UserID: ride.DriverID,
		Kind:   models.NotificationPaymentReceived,
		Title:  "Payment received",
		Body:   fmt.Sprintf("%s paid for %d seat(s) on %s to %s", booking.PassengerName, paidSeats, ride.Origin, ride.Destination),
		Data: map[string]string{
			"booking_id": booking.ID.String(),
			"ride_id":    ride.ID.String(),
			"paid_seats": fmt.Sprintf("%d", paidSeats),
		},
		CreatedAt: time.Now(),
	}
	m.deliver(n, models.WSMessage{Type: models.WSPaymentStatusUpdate, Payload: booking})
}

// NotifyBookingCancelled tells the driver a passenger dropped out
func (m *NotificationManager) NotifyBookingCancelled(booking *models.Booking, ride *models.Ride) {
	key := fmt.Sprintf("booking_cancelled:%s", booking.ID)
	if !m.markSeen(key) {
		return
	}

	n := &models.Notification{
		ID:     key,
		UserID: ride.DriverID,
		Kind:   models.NotificationBookingCancelled,
		Title:  "Booking cancelled",
		Body:   fmt.Sprintf("%s cancelled their booking for %s to %s", booking.PassengerName, ride.Origin, ride.Destination),
		Data: map[string]string{
			"booking_id": booking.ID.String(),
			"ride_id":    ride.ID.String(),
		},
		CreatedAt: time.Now(),
	}
	m.deliver(n, models.WSMessage{Type: models.WSBookingStatusUpdate, Payload: booking})
}

// NotifyNewMessage routes a chat message to its recipient
func (m *NotificationManager) NotifyNewMessage(msg *models.Message) {
	key := fmt.Sprintf("message:%s", msg.ID)
	if !m.markSeen(key) {
		return
	}

	n := &models.Notification{
		ID:     key,
		UserID: msg.RecipientID,
		Kind:   models.NotificationNewMessage,
		Title:  msg.SenderName,
		Body:   msg.Body,
		Data: map[string]string{
			"booking_id": msg.BookingID.String(),
			"message_id": msg.ID.String(),
			"sender_id":  msg.SenderID.String(),
		},
		CreatedAt: time.Now(),
	}
	m.deliver(n, models.WSMessage{Type: models.WSNewMessage, Payload: msg})
}

// SendDirect delivers an arbitrary notification to one user, bypassing
// dedup. Used by the internal push endpoint.
func (m *NotificationManager) SendDirect(userID uuid.UUID, title, body string, data map[string]string, silent bool) {
	n := &models.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      models.NotificationKind("direct"),
		Title:     title,
		Body:      body,
		Data:      data,
		Silent:    silent,
		CreatedAt: time.Now(),
	}
	m.deliver(n, models.WSMessage{Type: models.WSBookingStatusUpdate, Payload: data})
}

// deliver tries the websocket first, then push. A connected websocket
// client sees the update immediately so the push copy is only sent when
// the user is offline or the socket send was dropped. Push failures land
// in the retry queue.
func (m *NotificationManager) deliver(n *models.Notification, ws models.WSMessage) {
	delivered := m.hub.SendToUser(n.UserID, ws)
	if delivered {
		middleware.TrackNotification(string(n.Kind), "websocket")
	}

	if delivered && n.Silent {
		// A silent data refresh already happened over the socket,
		// no reason to wake the device too.
		return
	}

	if !m.push.Enabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	token, err := m.tokens.GetByUserID(n.UserID)
	if err != nil {
		m.logger.WithError(err).WithField("user_id", n.UserID).Warn("Failed to look up device token")
		m.queue.Enqueue(ctx, n)
		return
	}
	if token == "" {
		m.logger.WithField("user_id", n.UserID).Debug("No device token registered, skipping push")
		return
	}

	if err := m.push.Send(ctx, token, n); err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": n.UserID,
			"kind":    n.Kind,
		}).Warn("Push delivery failed, queueing for retry")
		m.queue.Enqueue(ctx, n)
		return
	}
	middleware.TrackNotification(string(n.Kind), "push")
}

// markSeen records a delivery key. Returns false when the key was already
// delivered. The set is a capped FIFO so memory stays bounded no matter
// how long the process runs.
func (m *NotificationManager) markSeen(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seen[key]; ok {
		return false
	}

	m.seen[key] = struct{}{}
	m.order = append(m.order, key)
	for len(m.order) > m.cfg.DedupeCapacity {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.seen, oldest)
	}
	return true
}
