package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Direction selects which way Migrate moves the schema.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Migrate applies the schema migrations to databaseURL. An empty sourceURL
// uses the migrations embedded in the binary.
func Migrate(databaseURL, sourceURL string, dir Direction, logger *zap.Logger) error {
	m, err := newMigrator(databaseURL, sourceURL)
	if err != nil {
		return err
	}
	defer m.Close()

	switch dir {
	case Up:
		err = m.Up()
	case Down:
		err = m.Down()
	default:
		return fmt.Errorf("unknown migration direction %q", dir)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("database schema already up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrating %s: %w", dir, err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("reading schema version: %w", verr)
	}
	logger.Info("database migrated",
		zap.String("direction", string(dir)),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty))

	return nil
}

// Version reports the applied schema version. A database with no
// migrations applied returns version 0.
func Version(databaseURL, sourceURL string) (version uint, dirty bool, err error) {
	m, err := newMigrator(databaseURL, sourceURL)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading schema version: %w", err)
	}
	return version, dirty, nil
}

func newMigrator(databaseURL, sourceURL string) (*migrate.Migrate, error) {
	if sourceURL != "" {
		m, err := migrate.New(sourceURL, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening migrations %s: %w", sourceURL, err)
		}
		return m, nil
	}

	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}
