// Command docchatctl runs maintenance tasks against the docchat database:
// schema migrations and the retention sweep of the token ledger.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Fawas-Anayat/Document-Processing-System/internal/logging"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/config"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/repositories/repomanager"
	"github.com/Fawas-Anayat/Document-Processing-System/internal/server/services"
)

type migrator interface {
	RunMigrations(context.Context, *sql.DB) error
	RollbackMigration(context.Context, *sql.DB) error
	MigrationStatus(context.Context, *sql.DB) error
}

// Seams for testing.
var (
	openDB     = server.OpenDB
	newManager = func() *repomanager.PostgresRepositoryManager {
		return repomanager.NewPostgresRepositoryManager()
	}
	newMigrator = func() migrator { return newManager() }
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type globalOptions struct {
	configFile string
	dsn        string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "docchatctl",
		Short:         "Maintenance utility for the docchat server database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Path to the server JSON config file")
	cmd.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN, overrides the configured one")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newPurgeCommand(opts))
	return cmd
}

// load resolves the server configuration the same way the server does.
// Secrets are not required here, so the result is not validated.
func (o *globalOptions) load(ctx context.Context) (*config.Config, error) {
	var args []string
	if o.configFile != "" {
		args = append(args, "-c", o.configFile)
	}
	if o.dsn != "" {
		args = append(args, "-d", o.dsn)
	}

	cfg, err := config.Resolve(ctx, args)
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	return cfg, nil
}

func (o *globalOptions) withDB(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, db *sql.DB) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := o.load(ctx)
	if err != nil {
		return err
	}
	db, err := openDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(ctx, cfg, db)
}

func newMigrateCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Schema migration operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	steps := []struct {
		use, short string
		run        func(migrator, context.Context, *sql.DB) error
	}{
		{"up", "Apply all pending migrations", migrator.RunMigrations},
		{"down", "Roll back the most recent migration", migrator.RollbackMigration},
		{"status", "Print the state of every migration", migrator.MigrationStatus},
	}
	for _, s := range steps {
		cmd.AddCommand(&cobra.Command{
			Use:   s.use,
			Short: s.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withDB(cmd, func(ctx context.Context, _ *config.Config, db *sql.DB) error {
					if err := s.run(newMigrator(), ctx, db); err != nil {
						return fmt.Errorf("migrate %s: %w", s.use, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: ok\n", s.use)
					return nil
				})
			},
		})
	}
	return cmd
}

func newPurgeCommand(opts *globalOptions) *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired refresh tokens and blacklist entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if grace < 0 {
				return fmt.Errorf("grace must not be negative")
			}
			return opts.withDB(cmd, func(ctx context.Context, cfg *config.Config, db *sql.DB) error {
				log, err := logging.New(cfg.LogFormat, cfg.LogLevel, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				// Sweep touches only the ledger, so no users or codec are wired.
				sessions := services.NewSessionService(db, newManager(), nil, nil, nil, log)

				refresh, blacklisted, err := sessions.Sweep(ctx, grace)
				if err != nil {
					return fmt.Errorf("purge: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d refresh tokens, %d blacklist entries\n", refresh, blacklisted)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&grace, "grace", 24*time.Hour, "Keep rows that expired less than this long ago")
	return cmd
}
