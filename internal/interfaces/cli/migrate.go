package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/ContactScope/internal/infrastructure/database/postgres"
)

// schemaMigrator is the part of postgres.Migrator the migrate commands use.
type schemaMigrator interface {
	Up() error
	Down(steps int) error
	Status() (uint, bool, error)
	Force(version int) error
	Close() error
}

// openMigrator connects to the configured database. Tests replace it.
var openMigrator = func(cc *CLIContext) (schemaMigrator, func() error, error) {
	cfg := cc.Config.Database
	conn, err := postgres.NewConnection(cfg, cc.Logger)
	if err != nil {
		return nil, nil, err
	}
	m, err := postgres.NewMigrator(conn, cfg.MigrationPath, cc.Logger)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return m, conn.Close, nil
}

// NewMigrateCmd creates the migrate command group for the session store
// schema.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL session store schema",
		Long:  "Apply or roll back the versioned SQL files at database.migration_path.",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(m schemaMigrator) error {
				if err := m.Down(steps); err != nil {
					return err
				}
				return printMigrationStatus(cmd, m)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd, func(m schemaMigrator) error {
					if err := m.Up(); err != nil {
						return err
					}
					return printMigrationStatus(cmd, m)
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd, func(m schemaMigrator) error {
					return printMigrationStatus(cmd, m)
				})
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Mark a version as applied without running it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				return withMigrator(cmd, func(m schemaMigrator) error {
					if err := m.Force(version); err != nil {
						return err
					}
					return printMigrationStatus(cmd, m)
				})
			},
		},
	)
	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(schemaMigrator) error) error {
	cc, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	m, closeConn, err := openMigrator(cc)
	if err != nil {
		return fmt.Errorf("open migrator: %w", err)
	}
	defer func() {
		m.Close()
		if closeConn != nil {
			closeConn()
		}
	}()
	return fn(m)
}

// MigrationStatus is the printable schema state.
type MigrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func (s MigrationStatus) String() string {
	if s.Dirty {
		return fmt.Sprintf("schema version %d (dirty: fix the failed migration, then migrate force)\n", s.Version)
	}
	if s.Version == 0 {
		return "no migrations applied\n"
	}
	return fmt.Sprintf("schema version %d\n", s.Version)
}

func printMigrationStatus(cmd *cobra.Command, m schemaMigrator) error {
	version, dirty, err := m.Status()
	if err != nil {
		return err
	}
	return PrintResult(cmd, MigrationStatus{Version: version, Dirty: dirty})
}
