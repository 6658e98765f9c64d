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

// BookingHandler handles the booking wizard endpoints
type BookingHandler struct {
	bookingService *services.BookingService
	receiptService *services.ReceiptService
	logger         *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookingService *services.BookingService, receiptService *services.ReceiptService, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		bookingService: bookingService,
		receiptService: receiptService,
		logger:         logger,
	}
}

// ============================================================================
// UPSERT - POST /api/bookings
// ============================================================================

// UpsertBooking creates the user's booking on a ride or adjusts its seats
// @Summary Create or update a booking
// @Description One active booking per user per ride. A second request adjusts the seat count instead of creating a duplicate.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param Idempotency-Key header string false "Client-generated key for safe retries"
// @Param request body models.UpsertBookingRequest true "Booking request"
// @Success 200 {object} models.BookingResponse
// @Failure 400 {object} map[string]interface{} "Validation error or seats unavailable"
// @Failure 409 {object} map[string]interface{} "Booking locked by a pending payment"
// @Router /bookings [post]
func (h *BookingHandler) UpsertBooking(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.UpsertBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	// The header wins over the body so clients can retry a POST verbatim
	if key := c.GetHeader("Idempotency-Key"); key != "" {
		req.IdempotencyKey = &key
	}

	response, err := h.bookingService.UpsertBooking(c.Request.Context(), userCtx.UserID, &req)
	if err != nil {
		var lockedErr *models.BookingLockedError
		if errors.As(err, &lockedErr) {
			c.JSON(http.StatusConflict, gin.H{
				"error":             "booking_locked",
				"message":           "A payment for this booking is still being processed",
				"booking_id":        lockedErr.BookingID,
				"payment_reference": lockedErr.PaymentReference,
			})
			return
		}

		var seatsErr *models.SeatsUnavailableError
		if errors.As(err, &seatsErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     "seats_unavailable",
				"message":   seatsErr.Error(),
				"requested": seatsErr.Requested,
				"available": seatsErr.Available,
			})
			return
		}

		switch {
		case errors.Is(err, services.ErrRideNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "ride not found"})
		case errors.Is(err, services.ErrRideNotBookable):
			c.JSON(http.StatusBadRequest, gin.H{"error": "ride is no longer accepting bookings"})
		case errors.Is(err, services.ErrSeatsBelowPaid):
			c.JSON(http.StatusBadRequest, gin.H{"error": "seat count cannot drop below seats already paid for"})
		default:
			h.logger.WithError(err).Error("Failed to upsert booking")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save booking"})
		}
		return
	}

	status := http.StatusOK
	if response.Created {
		status = http.StatusCreated
	}
	c.JSON(status, response)
}

// ============================================================================
// EXISTING - GET /api/bookings/existing?ride_id=
// ============================================================================

// GetExistingBooking checks for the user's active booking on a ride
// @Summary Check for an existing booking
// @Description Called before the wizard opens so it can resume an active booking instead of creating a duplicate
// @Tags Bookings
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param ride_id query string true "Ride ID"
// @Success 200 {object} models.ExistingBookingResponse
// @Router /bookings/existing [get]
func (h *BookingHandler) GetExistingBooking(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	rideID, err := uuid.Parse(c.Query("ride_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ride_id"})
		return
	}

	booking, err := h.bookingService.GetExistingBooking(c.Request.Context(), userCtx.UserID, rideID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to check existing booking")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check existing booking"})
		return
	}

	c.JSON(http.StatusOK, models.ExistingBookingResponse{
		Exists:  booking != nil,
		Booking: booking,
	})
}

// ============================================================================
// GET / LIST / CANCEL
// ============================================================================

// GetBooking returns one booking
// @Summary Get booking details
// @Tags Bookings
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param id path string true "Booking ID"
// @Success 200 {object} models.Booking
// @Router /bookings/{id} [get]
func (h *BookingHandler) GetBooking(c *gin.Context) {
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

	booking, err := h.bookingService.GetBooking(userCtx.UserID, bookingID)
	if err != nil {
		h.respondBookingError(c, err, "Failed to get booking")
		return
	}

	c.JSON(http.StatusOK, booking)
}

// ListBookings returns the user's booking history
// @Summary List my bookings
// @Tags Bookings
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Success 200 {object} map[string]interface{}
// @Router /bookings [get]
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	bookings, err := h.bookingService.ListUserBookings(userCtx.UserID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list bookings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list bookings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

// CancelBooking cancels the user's booking and releases paid seats
// @Summary Cancel a booking
// @Tags Bookings
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param id path string true "Booking ID"
// @Success 200 {object} models.Booking
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) CancelBooking(c *gin.Context) {
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

	booking, err := h.bookingService.CancelBooking(c.Request.Context(), userCtx.UserID, bookingID)
	if err != nil {
		h.respondBookingError(c, err, "Failed to cancel booking")
		return
	}

	c.JSON(http.StatusOK, booking)
}

// ============================================================================
// RECEIPT - GET /api/bookings/:id/receipt
// ============================================================================

// GetReceipt returns the booking's payment receipt as a PDF
// @Summary Download booking receipt
// @Tags Bookings
// @Produce application/pdf
// @Param Authorization header string true "Bearer token"
// @Param id path string true "Booking ID"
// @Success 200 {file} binary
// @Router /bookings/{id}/receipt [get]
func (h *BookingHandler) GetReceipt(c *gin.Context) {
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

	pdfBytes, filename, err := h.receiptService.Generate(userCtx.UserID, bookingID)
	if err != nil {
		if errors.Is(err, services.ErrReceiptNotAvailable) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no paid seats on this booking yet"})
			return
		}
		h.respondBookingError(c, err, "Failed to generate receipt")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", pdfBytes)
}

func (h *BookingHandler) respondBookingError(c *gin.Context, err error, logMsg string) {
	switch {
	case errors.Is(err, services.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
	case errors.Is(err, services.ErrNotBookingOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "booking belongs to another user"})
	case errors.Is(err, services.ErrBookingNotActive):
		c.JSON(http.StatusBadRequest, gin.H{"error": "booking is no longer active"})
	default:
		h.logger.WithError(err).Error(logMsg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
