package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/swiftride/booking-backend/internal/middleware"
	"github.com/swiftride/booking-backend/internal/models"
	"github.com/swiftride/booking-backend/internal/services"
)

// MessageHandler handles the passenger/driver chat endpoints
type MessageHandler struct {
	messageService *services.MessageService
	logger         *logrus.Logger
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(messageService *services.MessageService, logger *logrus.Logger) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		logger:         logger,
	}
}

// SendMessage posts a chat message on a booking conversation
// @Summary Send a chat message
// @Description Delivers to the other participant over websocket, with push fallback
// @Tags Messages
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param request body models.SendMessageRequest true "Message"
// @Success 201 {object} models.Message
// @Router /messages [post]
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	msg, err := h.messageService.SendMessage(userCtx.UserID, userCtx.Name, &req)
	if err != nil {
		h.respondMessageError(c, err, "Failed to send message")
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// ListMessages returns the booking's chat history
// @Summary List chat messages
// @Tags Messages
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param booking_id path string true "Booking ID"
// @Success 200 {object} map[string]interface{}
// @Router /bookings/{booking_id}/messages [get]
func (h *MessageHandler) ListMessages(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	messages, err := h.messageService.ListMessages(userCtx.UserID, bookingID)
	if err != nil {
		h.respondMessageError(c, err, "Failed to list messages")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"count":    len(messages),
	})
}

func (h *MessageHandler) respondMessageError(c *gin.Context, err error, logMsg string) {
	switch {
	case errors.Is(err, services.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
	case errors.Is(err, services.ErrRideNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "ride not found"})
	case errors.Is(err, services.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "you are not a participant in this booking"})
	default:
		h.logger.WithError(err).Error(logMsg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
