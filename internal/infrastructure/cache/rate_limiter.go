package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter is a sliding-window limiter over Redis sorted sets, shared by
// every API instance.
type RateLimiter struct {
	client *redis.Client
	logger *zap.Logger
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter allows limit requests per key within each window
func NewRateLimiter(client *redis.Client, limit int, window time.Duration, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: logger,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records a request for key and reports whether it fits in the window
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := r.now()
	windowStart := now.Add(-r.window)
	rateLimitKey := RateLimitPrefix + key
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()[:8]

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, rateLimitKey, "-inf", strconv.FormatInt(windowStart.UnixNano(), 10))
	countCmd := pipe.ZCard(ctx, rateLimitKey)
	pipe.ZAdd(ctx, rateLimitKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	pipe.Expire(ctx, rateLimitKey, r.window+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("rate limiter pipeline failed",
			zap.String("key", key),
			zap.Error(err))
		return false, fmt.Errorf("rate limiter pipeline failed: %w", err)
	}

	if countCmd.Val() >= int64(r.limit) {
		// the rejected request must not count against the window
		r.client.ZRem(ctx, rateLimitKey, member)
		r.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("current_count", countCmd.Val()),
			zap.Int("limit", r.limit))
		return false, nil
	}
	return true, nil
}

// Reset clears the window for key
func (r *RateLimiter) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, RateLimitPrefix+key).Err(); err != nil {
		return fmt.Errorf("rate limiter reset failed: %w", err)
	}
	return nil
}
