package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/swiftride/booking-backend/internal/websocket"
	"github.com/swiftride/booking-backend/pkg/jwt"
)

// WSHandler upgrades authenticated clients to a websocket connection on
// the notification hub
type WSHandler struct {
	hub        *websocket.Hub
	jwtService *jwt.Service
	logger     *logrus.Logger
}

// NewWSHandler creates a new WSHandler
func NewWSHandler(hub *websocket.Hub, jwtService *jwt.Service, logger *logrus.Logger) *WSHandler {
	return &WSHandler{
		hub:        hub,
		jwtService: jwtService,
		logger:     logger,
	}
}

// Connect upgrades the request to a websocket. Browsers cannot set an
// Authorization header on the upgrade request, so the token is also
// accepted as a query parameter.
// @Summary Open the realtime notification socket
// @Tags Notifications
// @Param token query string false "Access token (alternative to Authorization header)"
// @Router /ws [get]
func (h *WSHandler) Connect(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			tokenString = strings.TrimSpace(parts[1])
		}
	}
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token is required"})
		return
	}

	claims, err := h.jwtService.ValidateAccessToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if err := h.hub.HandleConnection(c.Writer, c.Request, claims.UserID); err != nil {
		h.logger.WithError(err).WithField("user_id", claims.UserID).Warn("Websocket upgrade failed")
		// The upgrader already wrote an HTTP error to the client
	}
}
