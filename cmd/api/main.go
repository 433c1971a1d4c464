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

	"github.com/davidleathers/tcpa-compliance-engine/internal/api/rest"
	"github.com/davidleathers/tcpa-compliance-engine/internal/app"
	"github.com/davidleathers/tcpa-compliance-engine/internal/infrastructure/config"
	"github.com/davidleathers/tcpa-compliance-engine/internal/infrastructure/database"
	"github.com/davidleathers/tcpa-compliance-engine/internal/infrastructure/telemetry"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		migrate    = flag.Bool("migrate", false, "Apply database migrations before serving")
		sweep      = flag.Bool("sweep", true, "Run the consent sweeper on its configured interval")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, *migrate, *sweep); err != nil {
		logger.Error("application failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, migrate, sweep bool) error {
	provider, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Version, cfg.Environment)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	if migrate && cfg.Database.URL != "" {
		if err := database.Migrate(cfg.Database.URL, cfg.Database.MigrationsPath, database.Up, logger); err != nil {
			return err
		}
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing backends failed", zap.Error(err))
		}
	}()

	logger.Info("starting TCPA compliance engine",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Server.Port))

	if sweep && cfg.Compliance.Sweeper.Interval > 0 {
		go runSweeper(ctx, a, cfg.Compliance.Sweeper.Interval, logger)
	}

	return rest.NewServer(cfg.Server, a.Handler(), logger).Run(ctx)
}

func runSweeper(ctx context.Context, a *app.App, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := a.Sweeper.Run(ctx)
			if err != nil {
				logger.Error("consent sweep failed", zap.Error(err))
				continue
			}
			logger.Info("consent sweep completed",
				zap.Int("tenants_scanned", report.TenantsScanned),
				zap.Int("tenants_skipped", report.TenantsSkipped),
				zap.Int64("deactivated", report.Deactivated),
				zap.Int64("purged", report.Purged))
		}
	}
}
