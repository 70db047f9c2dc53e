// Package postgres provides the PostgreSQL connection pool and schema
// migrations for the session store. Migrations are applied on startup when
// database.auto_migrate is set and can be driven from the CLI.
package postgres

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file:// source driver

	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
)

// migrationRunner is the subset of *migrate.Migrate the Migrator drives.
type migrationRunner interface {
	Up() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	Close() (error, error)
}

// Migrator applies the versioned SQL files under a migrate source URL
// (for example "file://migrations") to the connected database.
type Migrator struct {
	runner migrationRunner
	logger logging.Logger
}

// NewMigrator binds the migration source to an open connection.
func NewMigrator(conn *Connection, sourceURL string, log logging.Logger) (*Migrator, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	driver, err := migratepgx.WithInstance(conn.DB(), &migratepgx.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(sourceURL, "pgx5", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return &Migrator{runner: m, logger: log}, nil
}

// Up applies every pending migration. Having nothing to apply is not an error.
func (m *Migrator) Up() error {
	if err := m.runner.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		version, dirty, _ := m.runner.Version()
		return fmt.Errorf("failed to run migrations (version %d, dirty %t): %w", version, dirty, err)
	}
	version, dirty, err := m.Status()
	if err != nil {
		m.logger.Warn("failed to read migration version", logging.Err(err))
		return nil
	}
	m.logger.Info("database migrations applied",
		logging.Int64("version", int64(version)),
		logging.Bool("dirty", dirty),
	)
	return nil
}

// Down rolls back the given number of migrations.
func (m *Migrator) Down(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be greater than 0, got %d", steps)
	}
	if err := m.runner.Steps(-steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("no migrations to roll back")
		}
		return fmt.Errorf("failed to roll back %d step(s): %w", steps, err)
	}
	m.logger.Info("database migrations rolled back", logging.Int("steps", steps))
	return nil
}

// Status returns the applied version (0 when none) and whether a previous
// migration failed half-way.
func (m *Migrator) Status() (version uint, dirty bool, err error) {
	version, dirty, err = m.runner.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// Force records version as applied without running anything. It is the
// recovery path for a dirty schema.
func (m *Migrator) Force(version int) error {
	if err := m.runner.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	m.logger.Warn("migration version forced", logging.Int("version", version))
	return nil
}

// Close releases the source. The connection pool stays open.
func (m *Migrator) Close() error {
	srcErr, _ := m.runner.Close()
	return srcErr
}
