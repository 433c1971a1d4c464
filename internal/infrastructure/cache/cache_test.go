package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/compliance"
	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/errors"
	"github.com/davidleathers/tcpa-compliance-engine/internal/infrastructure/config"
	"github.com/davidleathers/tcpa-compliance-engine/internal/infrastructure/memstore"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := NewClient(config.RedisConfig{
		URL:          mr.Addr(),
		PoolSize:     5,
		MinIdleConns: 1,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestNewClient(t *testing.T) {
	t.Run("accepts redis url", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := NewClient(config.RedisConfig{URL: "redis://" + mr.Addr() + "/2"}, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer client.Close()
		assert.Equal(t, 2, client.Options().DB)
	})

	t.Run("requires url", func(t *testing.T) {
		_, err := NewClient(config.RedisConfig{}, zaptest.NewLogger(t))
		assert.Error(t, err)
	})

	t.Run("fails when server is unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		_, err := NewClient(config.RedisConfig{URL: addr, DialTimeout: 200 * time.Millisecond}, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "redis connection failed")
	})
}

func TestConfigCache(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := memstore.New()
	repo := NewConfigCache(store.Configs(), client, time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()
	tenantID := uuid.New()
	now := time.Date(2026, 6, 10, 16, 0, 0, 0, time.UTC)

	t.Run("miss propagates not found", func(t *testing.T) {
		_, err := repo.Get(ctx, tenantID)
		assert.True(t, errors.IsNotFound(err))
		assert.False(t, mr.Exists(configKey(tenantID)))
	})

	t.Run("create populates the cache", func(t *testing.T) {
		cfg := compliance.DefaultConfig(tenantID, now)
		cfg.CustomRules.ProhibitedKeywords = []string{"free money"}
		_, err := repo.CreateIfAbsent(ctx, cfg)
		require.NoError(t, err)

		assert.True(t, mr.Exists(configKey(tenantID)))
		assert.Equal(t, time.Minute, mr.TTL(configKey(tenantID)))

		got, err := repo.Get(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, []string{"free money"}, got.CustomRules.ProhibitedKeywords)
		assert.True(t, got.CreatedAt.Equal(now))
	})

	t.Run("save invalidates", func(t *testing.T) {
		cfg, err := repo.Get(ctx, tenantID)
		require.NoError(t, err)
		cfg.ComplianceMode = compliance.ModePermissive
		require.NoError(t, repo.Save(ctx, cfg))
		assert.False(t, mr.Exists(configKey(tenantID)))

		got, err := repo.Get(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, compliance.ModePermissive, got.ComplianceMode)
		assert.True(t, mr.Exists(configKey(tenantID)))
	})

	t.Run("corrupt entry falls through to the store", func(t *testing.T) {
		require.NoError(t, mr.Set(configKey(tenantID), "{not json"))

		got, err := repo.Get(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, tenantID, got.TenantID)
	})

	t.Run("redis outage degrades to the store", func(t *testing.T) {
		mr.SetError("LOADING")
		defer mr.SetError("")

		got, err := repo.Get(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, compliance.ModePermissive, got.ComplianceMode)
	})

	t.Run("list passes through", func(t *testing.T) {
		ids, err := repo.ListTenantIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{tenantID}, ids)
	})
}

func TestSendCounter(t *testing.T) {
	client, mr := setupTestRedis(t)
	counter := NewSendCounter(client, zaptest.NewLogger(t))
	ctx := context.Background()
	tenantID, contactID := uuid.New(), uuid.New()

	n, err := counter.Count(ctx, tenantID, contactID, "2026-06-10")
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := int64(1); i <= 3; i++ {
		n, err = counter.Increment(ctx, tenantID, contactID, "2026-06-10")
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	n, err = counter.Count(ctx, tenantID, contactID, "2026-06-10")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = counter.Count(ctx, tenantID, contactID, "2026-06-11")
	require.NoError(t, err)
	assert.Zero(t, n)

	key := sendKey(tenantID, contactID, "2026-06-10")
	assert.Equal(t, sendCounterTTL, mr.TTL(key))

	mr.FastForward(sendCounterTTL + time.Second)
	n, err = counter.Count(ctx, tenantID, contactID, "2026-06-10")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLeaseLocker(t *testing.T) {
	client, mr := setupTestRedis(t)
	locker := NewLeaseLocker(client, zaptest.NewLogger(t))
	ctx := context.Background()

	release, ok, err := locker.TryAcquire(ctx, "consent-sweep:a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryAcquire(ctx, "consent-sweep:a", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = locker.TryAcquire(ctx, "consent-sweep:b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists(LeasePrefix+"consent-sweep:a"))

	t.Run("stale release leaves the new holder alone", func(t *testing.T) {
		stale, ok, err := locker.TryAcquire(ctx, "consent-sweep:c", time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		mr.FastForward(2 * time.Second)
		_, ok, err = locker.TryAcquire(ctx, "consent-sweep:c", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, stale(ctx))
		assert.True(t, mr.Exists(LeasePrefix+"consent-sweep:c"))
	})
}

func TestRateLimiter(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewRateLimiter(client, 2, time.Second, zaptest.NewLogger(t))
	ctx := context.Background()

	now := time.Date(2026, 6, 10, 16, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "tenant-a")
		require.NoError(t, err)
		assert.True(t, ok)
		now = now.Add(time.Millisecond)
	}

	ok, err := limiter.Allow(ctx, "tenant-a")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = limiter.Allow(ctx, "tenant-b")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	ok, err = limiter.Allow(ctx, "tenant-a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, limiter.Reset(ctx, "tenant-a"))
}
