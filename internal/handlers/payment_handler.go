package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/swiftride/booking-backend/internal/middleware"
	"github.com/swiftride/booking-backend/internal/models"
	"github.com/swiftride/booking-backend/internal/services"
)

// PaymentHandler handles mobile money payment endpoints
type PaymentHandler struct {
	paymentService *services.PaymentService
	logger         *logrus.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(paymentService *services.PaymentService, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

// ListProviders lists supported mobile money providers
// @Summary List payment providers
// @Description Providers with their fees, limits and USSD hints for the payment step
// @Tags Payments
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /payments/providers [get]
func (h *PaymentHandler) ListProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"providers": h.paymentService.Providers(),
	})
}

// CreatePayment starts a mobile money charge for a booking
// @Summary Initiate a payment
// @Description Asks the gateway to prompt the subscriber on their handset, then the client polls /payments/status
// @Tags Payments
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param request body models.CreatePaymentRequest true "Payment request"
// @Success 202 {object} models.CreatePaymentResponse
// @Failure 400 {object} map[string]interface{} "Validation error"
// @Failure 409 {object} map[string]interface{} "Payment already in flight"
// @Failure 429 {object} map[string]interface{} "Too many attempts"
// @Router /payments [post]
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	response, err := h.paymentService.CreatePayment(c.Request.Context(), userCtx.UserID, &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrBookingNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
		case errors.Is(err, services.ErrNotBookingOwner):
			c.JSON(http.StatusForbidden, gin.H{"error": "booking belongs to another user"})
		case errors.Is(err, services.ErrBookingNotActive):
			c.JSON(http.StatusBadRequest, gin.H{"error": "booking is no longer active"})
		case errors.Is(err, services.ErrNothingToPay):
			c.JSON(http.StatusBadRequest, gin.H{"error": "all requested seats are already paid for"})
		case errors.Is(err, services.ErrUnsupportedProvider):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported payment provider"})
		case errors.Is(err, services.ErrProviderMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"error": "phone number does not belong to the selected provider"})
		case errors.Is(err, services.ErrInvalidPhoneNumber):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many payment attempts, try again shortly"})
		default:
			h.logger.WithError(err).Error("Failed to create payment")
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusAccepted, response)
}

// GetStatus reports the current transaction status to a polling client
// @Summary Check payment status
// @Description Client-side polling endpoint for the wizard's waiting screen. Backs up the websocket push.
// @Tags Payments
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param reference query string true "Payment reference"
// @Success 200 {object} models.PaymentStatusResponse
// @Failure 404 {object} map[string]interface{} "Unknown reference"
// @Router /payments/status [get]
func (h *PaymentHandler) GetStatus(c *gin.Context) {
	reference := c.Query("reference")
	if reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference is required"})
		return
	}

	status, err := h.paymentService.GetStatus(reference)
	if err != nil {
		if errors.Is(err, services.ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
			return
		}
		h.logger.WithError(err).Error("Failed to get payment status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get payment status"})
		return
	}

	c.JSON(http.StatusOK, status)
}
