package compliance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/compliance"
	"github.com/davidleathers/tcpa-compliance-engine/internal/metrics"
)

// LeaseLocker grants time-bounded exclusive leases so only one instance
// sweeps a tenant at a time.
type LeaseLocker interface {
	// TryAcquire returns a release func when the lease was granted, or
	// acquired=false when another holder owns it.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}

// SweeperConfig controls a consent maintenance run
type SweeperConfig struct {
	Concurrency int           `koanf:"concurrency"`
	LeaseTTL    time.Duration `koanf:"lease_ttl"`
	DryRun      bool          `koanf:"dry_run"`
}

// DefaultSweeperConfig returns default sweeper settings
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Concurrency: 4,
		LeaseTTL:    10 * time.Minute,
	}
}

// SweepReport summarises a sweeper run
type SweepReport struct {
	TenantsScanned int   `json:"tenants_scanned"`
	TenantsSkipped int   `json:"tenants_skipped"`
	Deactivated    int64 `json:"deactivated"`
	Purged         int64 `json:"purged"`
}

// Sweeper deactivates consent past each tenant's expiration window and
// purges inactive records past the retention period.
type Sweeper struct {
	logger   *zap.Logger
	configs  compliance.ConfigRepository
	consents compliance.ConsentRepository
	locker   LeaseLocker
	metrics  *metrics.Registry
	config   SweeperConfig
	now      func() time.Time
}

// NewSweeper creates a consent maintenance sweeper
func NewSweeper(
	logger *zap.Logger,
	configs compliance.ConfigRepository,
	consents compliance.ConsentRepository,
	locker LeaseLocker,
	registry *metrics.Registry,
	config SweeperConfig,
) *Sweeper {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &Sweeper{
		logger:   logger,
		configs:  configs,
		consents: consents,
		locker:   locker,
		metrics:  registry,
		config:   config,
		now:      time.Now,
	}
}

// Run sweeps every tenant that has a compliance config.
func (sw *Sweeper) Run(ctx context.Context) (*SweepReport, error) {
	tenants, err := sw.configs.ListTenantIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}

	var (
		mu     sync.Mutex
		report SweepReport
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sw.config.Concurrency)

	for _, tenantID := range tenants {
		tenantID := tenantID
		g.Go(func() error {
			res, skipped, err := sw.sweepTenant(gctx, tenantID)
			if err != nil {
				return fmt.Errorf("tenant %s: %w", tenantID, err)
			}

			mu.Lock()
			defer mu.Unlock()
			report.TenantsScanned++
			if skipped {
				report.TenantsSkipped++
			}
			report.Deactivated += res.Deactivated
			report.Purged += res.Purged
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return &report, err
	}

	sw.logger.Info("Consent sweep completed",
		zap.Int("tenants_scanned", report.TenantsScanned),
		zap.Int("tenants_skipped", report.TenantsSkipped),
		zap.Int64("deactivated", report.Deactivated),
		zap.Int64("purged", report.Purged),
		zap.Bool("dry_run", sw.config.DryRun),
	)

	return &report, nil
}

func (sw *Sweeper) sweepTenant(ctx context.Context, tenantID uuid.UUID) (SweepReport, bool, error) {
	var res SweepReport

	release, acquired, err := sw.locker.TryAcquire(ctx, leaseKey(tenantID), sw.config.LeaseTTL)
	if err != nil {
		return res, false, fmt.Errorf("acquiring lease: %w", err)
	}
	if !acquired {
		sw.logger.Debug("Tenant sweep already running elsewhere", zap.String("tenant_id", tenantID.String()))
		return res, true, nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			sw.logger.Warn("Failed to release sweep lease", zap.String("tenant_id", tenantID.String()), zap.Error(err))
		}
	}()

	cfg, err := sw.configs.Get(ctx, tenantID)
	if err != nil {
		return res, false, fmt.Errorf("loading config: %w", err)
	}

	now := sw.now()

	if cfg.ConsentExpirationDays != nil {
		cutoff := now.Add(-time.Duration(*cfg.ConsentExpirationDays) * 24 * time.Hour)
		if !sw.config.DryRun {
			n, err := sw.consents.DeactivateCreatedBefore(ctx, tenantID, cutoff)
			if err != nil {
				return res, false, fmt.Errorf("deactivating expired consent: %w", err)
			}
			res.Deactivated = n
			sw.metrics.RecordSweep(ctx, "deactivate", n)
		}
	}

	if cfg.MaintainConsentRecords && cfg.ConsentRecordRetentionDays > 0 {
		cutoff := now.Add(-time.Duration(cfg.ConsentRecordRetentionDays) * 24 * time.Hour)
		if !sw.config.DryRun {
			n, err := sw.consents.PurgeInactiveBefore(ctx, tenantID, cutoff)
			if err != nil {
				return res, false, fmt.Errorf("purging consent records: %w", err)
			}
			res.Purged = n
			sw.metrics.RecordSweep(ctx, "purge", n)
		}
	}

	return res, false, nil
}

func leaseKey(tenantID uuid.UUID) string {
	return "consent-sweep:" + tenantID.String()
}
