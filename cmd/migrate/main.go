package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/davidleathers/tcpa-compliance-engine/internal/infrastructure/config"
	"github.com/davidleathers/tcpa-compliance-engine/internal/infrastructure/database"
	"github.com/davidleathers/tcpa-compliance-engine/internal/infrastructure/telemetry"
)

func main() {
	var (
		action     = flag.String("action", "up", "Migration action: up, down, status")
		configPath = flag.String("config", "", "Path to configuration file")
		source     = flag.String("source", "", "Migration source URL, e.g. file://migrations (default: embedded)")
	)
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

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Database.URL == "" {
		logger.Fatal("database.url is required")
	}

	sourceURL := *source
	if sourceURL == "" {
		sourceURL = cfg.Database.MigrationsPath
	}

	if err := run(*action, cfg.Database.URL, sourceURL, logger); err != nil {
		logger.Error("migration failed", zap.String("action", *action), zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(action, databaseURL, sourceURL string, logger *zap.Logger) error {
	switch action {
	case "up":
		return database.Migrate(databaseURL, sourceURL, database.Up, logger)
	case "down":
		return database.Migrate(databaseURL, sourceURL, database.Down, logger)
	case "status":
		version, dirty, err := database.Version(databaseURL, sourceURL)
		if err != nil {
			return err
		}
		fmt.Printf("version: %d\ndirty: %t\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown action: %s", action)
	}
}
