package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ocd-calaccess/internal/config"
	"github.com/ocd-calaccess/internal/db"
	"github.com/ocd-calaccess/internal/logger"
	"github.com/ocd-calaccess/internal/store/sqlstore"
	"github.com/ocd-calaccess/internal/telemetry"
)

var (
	cfg config.Config
	log *logger.Logger

	// Opened on first use; scrape --out runs without a database.
	dbConn *db.Connection
	st     *sqlstore.Store

	shutdownTracing func(context.Context) error
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:               "ocdpipe",
		Short:             "CAL-ACCESS to Open Civic Data processing pipeline",
		Long:              `Loads raw CAL-ACCESS records, resolves them into OCD elections, contests, candidacies and persons, and exports the result`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return teardown(cmd.Context())
		},
	}

	rootCmd.AddCommand(createPingCmd())
	rootCmd.AddCommand(createMigrateCmd())
	rootCmd.AddCommand(createLoadCmd())
	rootCmd.AddCommand(createScrapeCmd())
	rootCmd.AddCommand(createProcessCmd())
	rootCmd.AddCommand(createExportCmd())
	rootCmd.AddCommand(createVersionsCmd())
	rootCmd.AddCommand(createSuggestCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if log != nil {
			_ = teardown(context.Background())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	if cfg, err = config.Load(); err != nil {
		return err
	}
	if log, err = logger.New(cfg.LogMode); err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	shutdownTracing, err = telemetry.Setup(cmd.Context(), log, "ocdpipe", cfg.TelemetryStdout, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	return nil
}

func teardown(ctx context.Context) error {
	var err error
	if shutdownTracing != nil {
		err = shutdownTracing(ctx)
		shutdownTracing = nil
	}
	if dbConn != nil {
		_ = dbConn.Close()
		dbConn, st = nil, nil
	}
	log.Sync()
	return err
}

// openStore connects to the configured database.
func openStore(ctx context.Context) (*sqlstore.Store, error) {
	if st != nil {
		return st, nil
	}
	conn, err := db.NewConnection(ctx, cfg.DBDriver, cfg.DSN())
	if err != nil {
		return nil, err
	}
	dbConn = conn
	st = sqlstore.New(conn, log)
	return st, nil
}

// createPingCmd creates a command to test database connectivity
func createPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Test database connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := s.Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("Database connection successful (%s)\n", cfg.DBDriver)

			stats, err := s.Stats(cmd.Context())
			if err != nil {
				log.Warn("could not count rows; run migrate first", "error", err)
				return nil
			}
			for _, table := range sqlstore.StatTables() {
				fmt.Printf("%-22s %d\n", table, stats[table])
			}
			return nil
		},
	}
}

func createMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := s.Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info("schema migrated", "driver", cfg.DBDriver)
			return nil
		},
	}
}
