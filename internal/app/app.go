// Package app assembles the compliance engine from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/davidleathers/tcpa-compliance-engine/internal/api/rest"
	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/compliance"
	"github.com/davidleathers/tcpa-compliance-engine/internal/infrastructure/cache"
	"github.com/davidleathers/tcpa-compliance-engine/internal/infrastructure/config"
	"github.com/davidleathers/tcpa-compliance-engine/internal/infrastructure/database"
	"github.com/davidleathers/tcpa-compliance-engine/internal/infrastructure/events"
	"github.com/davidleathers/tcpa-compliance-engine/internal/infrastructure/memstore"
	"github.com/davidleathers/tcpa-compliance-engine/internal/metrics"
	service "github.com/davidleathers/tcpa-compliance-engine/internal/service/compliance"
)

const healthTimeout = 2 * time.Second

// App holds the wired service graph
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Service  *service.Service
	Sweeper  *service.Sweeper
	Hub      *events.Hub
	Health   *rest.HealthService
	Registry *prometheus.Registry

	// Store is set when no database is configured
	Store *memstore.Store

	handler http.Handler
	closers []func() error
}

type stores struct {
	configs    compliance.ConfigRepository
	contacts   compliance.ContactRepository
	consents   compliance.ConsentRepository
	violations compliance.ViolationRepository
}

// New connects to the configured backends and builds the service graph.
// Postgres, Redis and Kafka are each optional; without them the engine runs
// on in-process equivalents.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Health:   rest.NewHealthService(healthTimeout),
		Registry: prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	var (
		counter service.SendCounter
		locker  service.LeaseLocker
		limiter rest.Limiter
	)

	if cfg.Redis.URL != "" {
		client, err := cache.NewClient(cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		a.Health.Register("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})

		st.configs = cache.NewConfigCache(st.configs, client, cfg.Compliance.ConfigCacheTTL, logger)
		counter = cache.NewSendCounter(client, logger)
		locker = cache.NewLeaseLocker(client, logger)
		limiter = cache.NewRateLimiter(client, cfg.Security.RateLimit.RequestsPerSecond, time.Second, logger)
	} else {
		counter = memstore.NewSendCounter()
		locker = memstore.NewLocker()
		limiter = rest.NewLocalLimiter(cfg.Security.RateLimit.RequestsPerSecond, cfg.Security.RateLimit.BurstSize)
	}

	a.Hub = events.NewHub(logger, events.DefaultHubConfig())
	a.closers = append(a.closers, a.Hub.Close)
	notifier := events.MultiNotifier{a.Hub}

	if len(cfg.Kafka.Brokers) > 0 {
		kc, err := events.NewKafkaClient(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { kc.Close(); return nil })
		a.Health.Register("kafka", kc.Ping)
		notifier = append(notifier, events.NewKafkaPublisher(kc, cfg.Kafka.Topic, logger))
	}

	registry, err := metrics.NewRegistry("tcpa-compliance-engine")
	if err != nil {
		return nil, fmt.Errorf("creating metrics registry: %w", err)
	}

	a.Service = service.NewService(logger.Named("compliance"), service.Dependencies{
		Configs:     st.configs,
		Contacts:    st.contacts,
		Consents:    st.consents,
		Violations:  st.violations,
		Notifier:    notifier,
		SendCounter: counter,
		Metrics:     registry,
	}, service.ServiceConfig{
		ImplicitConsentForActiveContacts: cfg.Compliance.ImplicitConsentForActiveContacts,
	})

	a.Sweeper = service.NewSweeper(logger.Named("sweeper"), st.configs, st.consents, locker, registry, service.SweeperConfig{
		Concurrency: cfg.Compliance.Sweeper.Concurrency,
		LeaseTTL:    cfg.Compliance.Sweeper.LeaseTTL,
		DryRun:      cfg.Compliance.Sweeper.DryRun,
	})

	a.handler = rest.NewRouter(rest.RouterConfig{
		Service:  a.Service,
		Stream:   a.Hub,
		Health:   a.Health,
		Auth:     rest.NewAuthMiddleware(cfg.Security.JWTSecret, logger),
		Limiter:  limiter,
		Registry: a.Registry,
		Logger:   logger,
	})

	return a, nil
}

func (a *App) openStores(ctx context.Context) (*stores, error) {
	if a.Config.Database.URL == "" {
		a.Logger.Warn("no database configured, using in-memory store")
		a.Store = memstore.New()
		return &stores{
			configs:    a.Store.Configs(),
			contacts:   a.Store.Contacts(),
			consents:   a.Store.Consents(),
			violations: a.Store.Violations(),
		}, nil
	}

	pool, err := database.Connect(ctx, a.Config.Database, a.Logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	a.Health.Register("postgres", pool.Ping)

	repos := database.NewRepositories(pool)
	return &stores{
		configs:    repos.Configs,
		contacts:   repos.Contacts,
		consents:   repos.Consents,
		violations: repos.Violations,
	}, nil
}

// Handler returns the HTTP API
func (a *App) Handler() http.Handler {
	return a.handler
}

// Close releases backend connections in reverse order of opening
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
