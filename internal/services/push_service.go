package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/swiftride/booking-backend/internal/config"
	"github.com/swiftride/booking-backend/internal/models"
)

// PushService delivers notifications to devices through FCM
type PushService struct {
	enabled   bool
	serverKey string
	endpoint  string
	client    *http.Client
	logger    *logrus.Logger
}

// NewPushService creates a new PushService
func NewPushService(cfg config.PushConfig, logger *logrus.Logger) *PushService {
	return &PushService{
		enabled:   cfg.Enabled,
		serverKey: cfg.ServerKey,
		endpoint:  cfg.Endpoint,
		logger:    logger,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled reports whether push delivery is configured
func (s *PushService) Enabled() bool {
	return s.enabled
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound,omitempty"`
}

type fcmPayload struct {
	To               string            `json:"to"`
	Notification     *fcmNotification  `json:"notification,omitempty"`
	Data             map[string]string `json:"data,omitempty"`
	Priority         string            `json:"priority"`
	ContentAvailable bool              `json:"content_available,omitempty"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		Error string `json:"error,omitempty"`
	} `json:"results,omitempty"`
}

// Send delivers one notification to a device token. Silent notifications
// are sent as data-only messages so the device refreshes state without
// surfacing an alert.
func (s *PushService) Send(ctx context.Context, token string, n *models.Notification) error {
	if !s.enabled {
		return nil
	}
	if token == "" {
		return fmt.Errorf("no device token for user %s", n.UserID)
	}

	data := map[string]string{
		"kind":            string(n.Kind),
		"notification_id": n.ID,
	}
	for k, v := range n.Data {
		data[k] = v
	}

	payload := fcmPayload{
		To:       token,
		Data:     data,
		Priority: "high",
	}
	if n.Silent {
		payload.ContentAvailable = true
	} else {
		payload.Notification = &fcmNotification{
			Title: n.Title,
			Body:  n.Body,
			Sound: "default",
		}
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+s.serverKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("push rejected with status %d: %s", resp.StatusCode, string(body))
	}

	var fcmResp fcmResponse
	if err := json.NewDecoder(resp.Body).Decode(&fcmResp); err != nil {
		return fmt.Errorf("failed to parse push response: %w", err)
	}
	if fcmResp.Failure > 0 {
		reason := "unknown"
		if len(fcmResp.Results) > 0 && fcmResp.Results[0].Error != "" {
			reason = fcmResp.Results[0].Error
		}
		return fmt.Errorf("push delivery failed: %s", reason)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": n.UserID,
		"kind":    n.Kind,
		"silent":  n.Silent,
	}).Debug("Push notification delivered")

	return nil
}
