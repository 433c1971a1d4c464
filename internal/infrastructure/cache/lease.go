package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/errors"
)

// releaseScript deletes the lease only while the caller still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LeaseLocker hands out exclusive, expiring leases stored in Redis
type LeaseLocker struct {
	client *redis.Client
	logger *zap.Logger
}

// NewLeaseLocker creates a Redis lease locker
func NewLeaseLocker(client *redis.Client, logger *zap.Logger) *LeaseLocker {
	return &LeaseLocker{client: client, logger: logger}
}

// TryAcquire sets the lease key if nobody holds it. The returned release func
// is a no-op once the lease expired and someone else took it.
func (l *LeaseLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	leaseKey := LeasePrefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, leaseKey, token, ttl).Result()
	if err != nil {
		return nil, false, errors.NewInternalError("failed to acquire lease").WithCause(err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{leaseKey}, token).Int64()
		if err != nil {
			return errors.NewInternalError("failed to release lease").WithCause(err)
		}
		if n == 0 {
			l.logger.Warn("lease expired before release", zap.String("key", leaseKey))
		}
		return nil
	}
	return release, true, nil
}
