package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swiftride/booking-backend/internal/models"
)

func queuedNotification(userID uuid.UUID, attempts int, age time.Duration) string {
	n := models.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Kind:      models.NotificationPaymentReceived,
		Title:     "Paiement reçu",
		Body:      "2 place(s) payée(s)",
		Attempts:  attempts,
		CreatedAt: time.Now().Add(-age),
	}
	data, _ := json.Marshal(&n)
	return string(data)
}

func TestRetryQueueRedeliver(t *testing.T) {
	userID := uuid.New()
	ctx := context.Background()

	t.Run("Delivers And Drops Entry", func(t *testing.T) {
		push := &fakePush{enabled: true}
		tokens := &fakeTokens{tokens: map[uuid.UUID]string{userID: "device-token"}}
		queue := NewRetryQueue(nil, notifyConfig(), push, tokens, testLogger())

		requeue := queue.redeliver(ctx, queuedNotification(userID, 1, time.Minute))

		assert.Nil(t, requeue)
		assert.Len(t, push.sent, 1)
	})

	t.Run("Requeues With Incremented Attempts", func(t *testing.T) {
		push := &fakePush{enabled: true, err: errors.New("fcm unreachable")}
		tokens := &fakeTokens{tokens: map[uuid.UUID]string{userID: "device-token"}}
		queue := NewRetryQueue(nil, notifyConfig(), push, tokens, testLogger())

		requeue := queue.redeliver(ctx, queuedNotification(userID, 1, time.Minute))

		require.NotNil(t, requeue)
		var n models.Notification
		require.NoError(t, json.Unmarshal(requeue, &n))
		assert.Equal(t, 2, n.Attempts)
	})

	t.Run("Gives Up After Max Attempts", func(t *testing.T) {
		push := &fakePush{enabled: true, err: errors.New("fcm unreachable")}
		tokens := &fakeTokens{tokens: map[uuid.UUID]string{userID: "device-token"}}
		cfg := notifyConfig()
		queue := NewRetryQueue(nil, cfg, push, tokens, testLogger())

		requeue := queue.redeliver(ctx, queuedNotification(userID, cfg.MaxAttempts-1, time.Minute))

		assert.Nil(t, requeue)
	})

	t.Run("Drops Expired Entries Without Sending", func(t *testing.T) {
		push := &fakePush{enabled: true}
		tokens := &fakeTokens{tokens: map[uuid.UUID]string{userID: "device-token"}}
		cfg := notifyConfig()
		queue := NewRetryQueue(nil, cfg, push, tokens, testLogger())

		requeue := queue.redeliver(ctx, queuedNotification(userID, 0, cfg.RetryMaxAge+time.Hour))

		assert.Nil(t, requeue)
		assert.Empty(t, push.sent)
	})

	t.Run("Drops Malformed Entries", func(t *testing.T) {
		push := &fakePush{enabled: true}
		tokens := &fakeTokens{tokens: map[uuid.UUID]string{}}
		queue := NewRetryQueue(nil, notifyConfig(), push, tokens, testLogger())

		assert.Nil(t, queue.redeliver(ctx, "not json"))
		assert.Empty(t, push.sent)
	})
}

func TestRetryQueueDisabledWithoutRedis(t *testing.T) {
	push := &fakePush{enabled: true}
	tokens := &fakeTokens{tokens: map[uuid.UUID]string{}}
	queue := NewRetryQueue(nil, notifyConfig(), push, tokens, testLogger())

	queue.Start()
	queue.Enqueue(context.Background(), &models.Notification{UserID: uuid.New()})
	queue.Stop() // must not block or panic

	assert.Empty(t, push.sent)
}
