package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/swiftride/booking-backend/internal/models"
	"github.com/swiftride/booking-backend/internal/services"
)

// RideHandler handles ride search and detail endpoints
type RideHandler struct {
	bookingService *services.BookingService
	logger         *logrus.Logger
}

// NewRideHandler creates a new RideHandler
func NewRideHandler(bookingService *services.BookingService, logger *logrus.Logger) *RideHandler {
	return &RideHandler{
		bookingService: bookingService,
		logger:         logger,
	}
}

// ListRides returns bookable rides matching the search filters
// @Summary Search rides
// @Description Lists active rides with seats left, filtered by origin, destination and date
// @Tags Rides
// @Produce json
// @Param origin query string false "Origin city (partial match)"
// @Param destination query string false "Destination city (partial match)"
// @Param date query string false "Departure date (YYYY-MM-DD)"
// @Param min_seats query int false "Minimum seats available"
// @Success 200 {object} map[string]interface{}
// @Router /rides [get]
func (h *RideHandler) ListRides(c *gin.Context) {
	var req models.ListRidesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query: " + err.Error()})
		return
	}

	rides, err := h.bookingService.ListRides(&req)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list rides")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rides"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rides": rides,
		"count": len(rides),
	})
}

// GetRide returns one ride by ID
// @Summary Get ride details
// @Tags Rides
// @Produce json
// @Param id path string true "Ride ID"
// @Success 200 {object} models.Ride
// @Failure 404 {object} map[string]interface{} "Ride not found"
// @Router /rides/{id} [get]
func (h *RideHandler) GetRide(c *gin.Context) {
	rideID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ride id"})
		return
	}

	ride, err := h.bookingService.GetRide(rideID)
	if err != nil {
		if err == services.ErrRideNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "ride not found"})
			return
		}
		h.logger.WithError(err).Error("Failed to get ride")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get ride"})
		return
	}

	c.JSON(http.StatusOK, ride)
}
