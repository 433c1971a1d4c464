package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/compliance"
)

// ConfigCache is a read-through Redis cache in front of a ConfigRepository.
// Redis failures degrade to the underlying repository.
type ConfigCache struct {
	next   compliance.ConfigRepository
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

var _ compliance.ConfigRepository = (*ConfigCache)(nil)

// NewConfigCache wraps next with a cache whose entries live for ttl
func NewConfigCache(next compliance.ConfigRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *ConfigCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ConfigCache{
		next:   next,
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

func (c *ConfigCache) Get(ctx context.Context, tenantID uuid.UUID) (*compliance.Config, error) {
	if cfg := c.load(ctx, tenantID); cfg != nil {
		return cfg, nil
	}

	cfg, err := c.next.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, cfg)
	return cfg, nil
}

func (c *ConfigCache) CreateIfAbsent(ctx context.Context, cfg *compliance.Config) (*compliance.Config, error) {
	stored, err := c.next.CreateIfAbsent(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.store(ctx, stored)
	return stored, nil
}

func (c *ConfigCache) Save(ctx context.Context, cfg *compliance.Config) error {
	if err := c.next.Save(ctx, cfg); err != nil {
		return err
	}
	if err := c.client.Del(ctx, configKey(cfg.TenantID)).Err(); err != nil {
		c.logger.Warn("config cache invalidation failed",
			zap.String("tenant_id", cfg.TenantID.String()),
			zap.Error(err))
	}
	return nil
}

func (c *ConfigCache) ListTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	return c.next.ListTenantIDs(ctx)
}

func (c *ConfigCache) load(ctx context.Context, tenantID uuid.UUID) *compliance.Config {
	data, err := c.client.Get(ctx, configKey(tenantID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("config cache read failed",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err))
		}
		return nil
	}

	var cfg compliance.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		c.logger.Warn("discarding corrupt config cache entry",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		c.client.Del(ctx, configKey(tenantID))
		return nil
	}
	return &cfg
}

func (c *ConfigCache) store(ctx context.Context, cfg *compliance.Config) {
	data, err := json.Marshal(cfg)
	if err != nil {
		c.logger.Warn("config cache encode failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, configKey(cfg.TenantID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("config cache write failed",
			zap.String("tenant_id", cfg.TenantID.String()),
			zap.Error(err))
	}
}

func configKey(tenantID uuid.UUID) string {
	return ConfigPrefix + tenantID.String()
}
