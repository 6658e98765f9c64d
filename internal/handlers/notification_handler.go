package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/swiftride/booking-backend/internal/database"
	"github.com/swiftride/booking-backend/internal/middleware"
	"github.com/swiftride/booking-backend/internal/models"
	"github.com/swiftride/booking-backend/internal/services"
)

// NotificationHandler handles push token registration and the internal
// direct-push endpoint
type NotificationHandler struct {
	manager    *services.NotificationManager
	bookings   *database.BookingRepository
	rides      *database.RideRepository
	pushTokens *database.PushTokenRepository
	logger     *logrus.Logger
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(manager *services.NotificationManager, bookings *database.BookingRepository, rides *database.RideRepository, pushTokens *database.PushTokenRepository, logger *logrus.Logger) *NotificationHandler {
	return &NotificationHandler{
		manager:    manager,
		bookings:   bookings,
		rides:      rides,
		pushTokens: pushTokens,
		logger:     logger,
	}
}

// RegisterToken stores the caller's device token for push delivery
// @Summary Register a device push token
// @Tags Notifications
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param request body models.RegisterPushTokenRequest true "Device token"
// @Success 200 {object} map[string]interface{}
// @Router /push/register [post]
func (h *NotificationHandler) RegisterToken(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.RegisterPushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	platform := req.Platform
	if platform == "" {
		platform = "android"
	}

	if err := h.pushTokens.Upsert(userCtx.UserID, req.Token, platform); err != nil {
		h.logger.WithError(err).Error("Failed to register push token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register push token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "push token registered"})
}

// UnregisterToken removes the caller's device token (logout)
// @Summary Unregister device push token
// @Tags Notifications
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Success 200 {object} map[string]interface{}
// @Router /push/register [delete]
func (h *NotificationHandler) UnregisterToken(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	if err := h.pushTokens.Delete(userCtx.UserID); err != nil {
		h.logger.WithError(err).Error("Failed to unregister push token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to unregister push token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "push token removed"})
}

// NotifyBooking triggers the driver-facing notification for a booking
// immediately, without waiting for the change feed. The manager's dedup
// set makes repeated calls for the same booking a no-op.
// @Summary Trigger the booking-created notification
// @Tags Notifications
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param request body models.NotifyBookingRequest true "Booking reference"
// @Success 202 {object} map[string]interface{}
// @Router /notifications/booking [post]
func (h *NotificationHandler) NotifyBooking(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.NotifyBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking_id"})
		return
	}

	booking, err := h.bookings.GetByID(bookingID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load booking for notification")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load booking"})
		return
	}
	if booking == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
		return
	}
	if booking.UserID != userCtx.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your booking"})
		return
	}

	ride, err := h.rides.GetByID(booking.RideID)
	if err != nil || ride == nil {
		h.logger.WithError(err).Error("Failed to load ride for notification")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load ride"})
		return
	}

	h.manager.NotifyBookingCreated(booking, ride)

	c.JSON(http.StatusAccepted, gin.H{"message": "notification dispatched"})
}

// SendPush delivers an arbitrary notification to one user. Admin only,
// used for announcements and support.
// @Summary Send a direct push notification
// @Tags Notifications
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param request body models.SendPushRequest true "Notification"
// @Success 202 {object} map[string]interface{}
// @Router /push/send [post]
func (h *NotificationHandler) SendPush(c *gin.Context) {
	var req models.SendPushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	h.manager.SendDirect(userID, req.Title, req.Body, req.Data, req.Silent)

	c.JSON(http.StatusAccepted, gin.H{"message": "notification dispatched"})
}
