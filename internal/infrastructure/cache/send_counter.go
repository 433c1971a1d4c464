package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/errors"
)

// sendCounterTTL keeps a day bucket alive across every timezone offset
const sendCounterTTL = 48 * time.Hour

// SendCounter counts messages per contact per tenant-local day
type SendCounter struct {
	client *redis.Client
	logger *zap.Logger
}

// NewSendCounter creates a Redis-backed send counter
func NewSendCounter(client *redis.Client, logger *zap.Logger) *SendCounter {
	return &SendCounter{client: client, logger: logger}
}

// Count returns the number of sends recorded for the day, zero if none
func (c *SendCounter) Count(ctx context.Context, tenantID, contactID uuid.UUID, day string) (int64, error) {
	n, err := c.client.Get(ctx, sendKey(tenantID, contactID, day)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, errors.NewInternalError("failed to read send counter").WithCause(err)
	}
	return n, nil
}

// Increment records one send and returns the new count for the day
func (c *SendCounter) Increment(ctx context.Context, tenantID, contactID uuid.UUID, day string) (int64, error) {
	key := sendKey(tenantID, contactID, day)

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, sendCounterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Error("send counter increment failed",
			zap.String("key", key),
			zap.Error(err))
		return 0, errors.NewInternalError("failed to increment send counter").WithCause(err)
	}
	return incr.Val(), nil
}

func sendKey(tenantID, contactID uuid.UUID, day string) string {
	return SendPrefix + tenantID.String() + ":" + contactID.String() + ":" + day
}
