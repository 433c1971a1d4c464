package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/davidleathers/tcpa-compliance-engine/internal/app"
	"github.com/davidleathers/tcpa-compliance-engine/internal/infrastructure/config"
	"github.com/davidleathers/tcpa-compliance-engine/internal/infrastructure/telemetry"
)

// Command-line flags
var (
	configPath = flag.String("config", "", "Path to configuration file")
	once       = flag.Bool("once", false, "Run a single sweep and exit")
	dryRun     = flag.Bool("dry-run", false, "Scan tenants without changing consent records")
)

func main() {
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *dryRun {
		cfg.Compliance.Sweeper.DryRun = true
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	logger = logger.Named("sweeper")
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	if *once {
		err = sweep(ctx, a, logger)
	} else {
		err = loop(ctx, a, cfg.Compliance.Sweeper.Interval, logger)
	}
	if err != nil {
		logger.Error("sweep failed", zap.Error(err))
		_ = a.Close()
		_ = logger.Sync()
		os.Exit(1)
	}

	logger.Info("sweeper stopped")
}

func loop(ctx context.Context, a *app.App, interval time.Duration, logger *zap.Logger) error {
	if interval <= 0 {
		return fmt.Errorf("compliance.sweeper.interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := sweep(ctx, a, logger); err != nil {
			logger.Error("sweep failed, retrying next interval", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func sweep(ctx context.Context, a *app.App, logger *zap.Logger) error {
	start := time.Now()
	report, err := a.Sweeper.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("sweep completed",
		zap.Int("tenants_scanned", report.TenantsScanned),
		zap.Int("tenants_skipped", report.TenantsSkipped),
		zap.Int64("deactivated", report.Deactivated),
		zap.Int64("purged", report.Purged),
		zap.Bool("dry_run", a.Config.Compliance.Sweeper.DryRun),
		zap.Duration("duration", time.Since(start)))
	return nil
}
