package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/swiftride/booking-backend/internal/config"
)

// RateLimiter throttles payment initiations per user with a fixed window
// counter in Redis. With no Redis client it fails open: mobile money
// charges still require subscriber approval on the handset, so the
// limiter is abuse protection, not a correctness guarantee.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	logger *logrus.Logger
}

// NewRateLimiter creates a new RateLimiter
func NewRateLimiter(client *redis.Client, cfg config.RateLimitConfig, logger *logrus.Logger) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  cfg.PaymentRequests,
		window: time.Duration(cfg.WindowSeconds) * time.Second,
		logger: logger,
	}
}

// Allow reports whether the key has budget left in the current window
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.client == nil {
		return true, nil
	}

	redisKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		l.logger.WithError(err).Warn("Rate limiter unavailable, allowing request")
		return true, nil
	}
	if count == 1 {
		l.client.Expire(ctx, redisKey, l.window)
	}

	return count <= int64(l.limit), nil
}
