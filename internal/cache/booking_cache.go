package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/swiftride/booking-backend/internal/models"
)

// BookingCache caches existing-booking lookups so the wizard's
// pre-open check does not hit Postgres on every ride card render
type BookingCache struct {
	client  *redis.Client
	ttl     time.Duration
	enabled bool
	logger  *logrus.Logger
}

// NewBookingCache creates a booking cache. A nil client disables
// caching; all lookups fall through to the database.
func NewBookingCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *BookingCache {
	return &BookingCache{
		client:  client,
		ttl:     ttl,
		enabled: client != nil,
		logger:  logger,
	}
}

// Enabled reports whether the cache is backed by a live Redis client
func (c *BookingCache) Enabled() bool {
	return c.enabled
}

func bookingKey(userID, rideID uuid.UUID) string {
	return fmt.Sprintf("booking:user:%s:ride:%s", userID, rideID)
}

// GetUserBooking returns the cached active booking for a user on a ride.
// The second return value reports a cache hit; a cached "no booking"
// marker hits with a nil booking.
func (c *BookingCache) GetUserBooking(ctx context.Context, userID, rideID uuid.UUID) (*models.Booking, bool) {
	if !c.enabled {
		return nil, false
	}

	data, err := c.client.Get(ctx, bookingKey(userID, rideID)).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).Warn("Booking cache read failed")
		return nil, false
	}

	if data == "null" {
		return nil, true
	}

	var booking models.Booking
	if err := json.Unmarshal([]byte(data), &booking); err != nil {
		c.logger.WithError(err).Warn("Booking cache entry corrupt, ignoring")
		return nil, false
	}
	return &booking, true
}

// SetUserBooking caches the active booking for a user on a ride. Pass a
// nil booking to cache the absence of one.
func (c *BookingCache) SetUserBooking(ctx context.Context, userID, rideID uuid.UUID, booking *models.Booking) {
	if !c.enabled {
		return
	}

	data, err := json.Marshal(booking)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to marshal booking for cache")
		return
	}

	if err := c.client.Set(ctx, bookingKey(userID, rideID), data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("Booking cache write failed")
	}
}

// Invalidate drops the cached booking after any write to it
func (c *BookingCache) Invalidate(ctx context.Context, userID, rideID uuid.UUID) {
	if !c.enabled {
		return
	}

	if err := c.client.Del(ctx, bookingKey(userID, rideID)).Err(); err != nil {
		c.logger.WithError(err).Warn("Booking cache invalidation failed")
	}
}
