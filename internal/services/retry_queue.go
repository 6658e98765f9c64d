package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/swiftride/booking-backend/internal/config"
	"github.com/swiftride/booking-backend/internal/models"
)

const retryQueueKey = "notifications:retry"

type pushSender interface {
	Send(ctx context.Context, token string, n *models.Notification) error
	Enabled() bool
}

type deviceTokenStore interface {
	GetByUserID(userID uuid.UUID) (string, error)
}

// RetryQueue holds notifications whose delivery failed and replays them
// on a fixed interval. Entries age out after RetryMaxAge or MaxAttempts,
// whichever comes first, and the queue itself is capped at RetryMaxSize
// so a long push outage cannot grow Redis without bound.
type RetryQueue struct {
	client *redis.Client
	cfg    config.NotifyConfig
	push   pushSender
	tokens deviceTokenStore
	logger *logrus.Logger
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRetryQueue creates a new RetryQueue. A nil Redis client disables
// queueing entirely; Enqueue becomes a no-op.
func NewRetryQueue(client *redis.Client, cfg config.NotifyConfig, push pushSender, tokens deviceTokenStore, logger *logrus.Logger) *RetryQueue {
	return &RetryQueue{
		client: client,
		cfg:    cfg,
		push:   push,
		tokens: tokens,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background replay loop
func (q *RetryQueue) Start() {
	if q.client == nil {
		close(q.doneCh)
		return
	}
	go q.run()
	q.logger.WithField("interval", q.cfg.RetryInterval).Info("Notification retry queue started")
}

// Stop shuts down the replay loop and waits for it to finish
func (q *RetryQueue) Stop() {
	select {
	case <-q.stopCh:
	default:
		close(q.stopCh)
	}
	<-q.doneCh
}

// Enqueue stores a failed notification for later redelivery
func (q *RetryQueue) Enqueue(ctx context.Context, n *models.Notification) {
	if q.client == nil {
		return
	}

	data, err := json.Marshal(n)
	if err != nil {
		q.logger.WithError(err).Warn("Failed to marshal notification for retry")
		return
	}

	pipe := q.client.Pipeline()
	pipe.LPush(ctx, retryQueueKey, data)
	pipe.LTrim(ctx, retryQueueKey, 0, int64(q.cfg.RetryMaxSize)-1)
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.WithError(err).Warn("Failed to enqueue notification for retry")
		return
	}

	q.logger.WithFields(logrus.Fields{
		"user_id":  n.UserID,
		"kind":     n.Kind,
		"attempts": n.Attempts,
	}).Debug("Notification queued for retry")
}

func (q *RetryQueue) run() {
	defer close(q.doneCh)

	ticker := time.NewTicker(q.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.drain()
		}
	}
}

// drain pops every queued entry and attempts redelivery. Entries that
// fail again and are still within their age and attempt budget are put
// back at the tail of the queue.
func (q *RetryQueue) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.RetryInterval)
	defer cancel()

	size, err := q.client.LLen(ctx, retryQueueKey).Result()
	if err != nil {
		q.logger.WithError(err).Warn("Failed to read retry queue length")
		return
	}

	for i := int64(0); i < size; i++ {
		raw, err := q.client.RPop(ctx, retryQueueKey).Result()
		if err == redis.Nil {
			return
		}
		if err != nil {
			q.logger.WithError(err).Warn("Failed to pop notification from retry queue")
			return
		}

		if requeue := q.redeliver(ctx, raw); requeue != nil {
			q.client.LPush(ctx, retryQueueKey, requeue)
		}
	}
}

// redeliver attempts one queued entry and returns the payload to put
// back on the queue, or nil when the entry is done with (delivered,
// expired, over budget, or unreadable).
func (q *RetryQueue) redeliver(ctx context.Context, raw string) []byte {
	var n models.Notification
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		q.logger.WithError(err).Warn("Dropping malformed retry queue entry")
		return nil
	}

	if time.Since(n.CreatedAt) > q.cfg.RetryMaxAge {
		q.logger.WithFields(logrus.Fields{
			"user_id": n.UserID,
			"kind":    n.Kind,
		}).Info("Dropping expired notification from retry queue")
		return nil
	}

	if err := q.deliver(ctx, &n); err != nil {
		n.Attempts++
		if n.Attempts >= q.cfg.MaxAttempts {
			q.logger.WithFields(logrus.Fields{
				"user_id":  n.UserID,
				"kind":     n.Kind,
				"attempts": n.Attempts,
			}).Warn("Giving up on notification after max attempts")
			return nil
		}
		data, marshalErr := json.Marshal(&n)
		if marshalErr != nil {
			return nil
		}
		return data
	}

	q.logger.WithFields(logrus.Fields{
		"user_id":  n.UserID,
		"kind":     n.Kind,
		"attempts": n.Attempts,
	}).Info("Redelivered notification from retry queue")
	return nil
}

func (q *RetryQueue) deliver(ctx context.Context, n *models.Notification) error {
	token, err := q.tokens.GetByUserID(n.UserID)
	if err != nil {
		return err
	}
	return q.push.Send(ctx, token, n)
}
