package websocket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/swiftride/booking-backend/internal/middleware"
	"github.com/swiftride/booking-backend/internal/models"
)

// Client is one websocket connection belonging to an authenticated user.
// A user can hold several connections (multiple tabs or devices).
type Client struct {
	UserID uuid.UUID
	conn   *websocket.Conn
	send   chan []byte
}

// Hub routes realtime messages to connected clients by user id
type Hub struct {
	mu            sync.RWMutex
	clientsByUser map[uuid.UUID]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	stopCh     chan struct{}
	logger     *logrus.Logger
}

// NewHub creates a new Hub
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clientsByUser: make(map[uuid.UUID]map[*Client]struct{}),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		stopCh:        make(chan struct{}),
		logger:        logger,
	}
}

// Start runs the hub loop until Stop is called
func (h *Hub) Start() {
	go h.run()
	h.logger.Info("Websocket hub started")
}

// Stop shuts the hub down and closes all client connections
func (h *Hub) Stop() {
	close(h.stopCh)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.clientsByUser {
		for client := range clients {
			client.conn.Close()
		}
	}
	h.clientsByUser = make(map[uuid.UUID]map[*Client]struct{})
	h.logger.Info("Websocket hub stopped")
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clientsByUser[client.UserID] == nil {
				h.clientsByUser[client.UserID] = make(map[*Client]struct{})
			}
			h.clientsByUser[client.UserID][client] = struct{}{}
			h.mu.Unlock()
			middleware.WebsocketConnections.Inc()
			h.logger.WithField("user_id", client.UserID).Debug("Websocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clientsByUser[client.UserID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					middleware.WebsocketConnections.Dec()
					if len(clients) == 0 {
						delete(h.clientsByUser, client.UserID)
					}
				}
			}
			h.mu.Unlock()
			h.logger.WithField("user_id", client.UserID).Debug("Websocket client disconnected")

		case <-h.stopCh:
			return
		}
	}
}

// SendToUser delivers a message to every open connection of a user.
// Returns false when the user has no connection.
func (h *Hub) SendToUser(userID uuid.UUID, msg models.WSMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal websocket message")
		return false
	}

	h.mu.RLock()
	clients := h.clientsByUser[userID]
	delivered := false
	for client := range clients {
		select {
		case client.send <- data:
			delivered = true
		default:
			// Slow consumer, drop rather than block the hub
		}
	}
	h.mu.RUnlock()
	return delivered
}

// IsOnline reports whether the user has at least one open connection
func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clientsByUser[userID]) > 0
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleConnection upgrades an HTTP request to a websocket connection
// for the given user and pumps messages until the peer disconnects
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, 32),
	}
	select {
	case h.register <- client:
	case <-h.stopCh:
		conn.Close()
		return fmt.Errorf("hub is shutting down")
	}

	go client.writePump()
	go client.readPump(h)
	return nil
}

func (c *Client) writePump() {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump discards inbound frames; the socket is server-to-client only.
// Reading is still required to process pings and detect disconnects.
func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.stopCh:
		}
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
