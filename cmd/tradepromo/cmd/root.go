package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/solatis/tradepromo/internal/core/config"
	"github.com/solatis/tradepromo/internal/core/db"
	"github.com/solatis/tradepromo/internal/logging"
	"github.com/spf13/cobra"
)

// Version is the tradepromo release version.
const Version = "0.1.0"

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:           "tradepromo",
	Short:         "Trade promotion rule engine",
	Long:          `tradepromo evaluates customer purchases against ordered promotion rules and applies flat, slab and free product discounts.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !logging.ValidLevel(logLevel) {
			return fmt.Errorf("invalid --log-level %q (expected debug, info, warn, error)", logLevel)
		}
		if logFormat != logging.FormatJSON && logFormat != logging.FormatText {
			return fmt.Errorf("invalid --log-format %q (expected json, text)", logFormat)
		}
		slog.SetDefault(logging.NewWithWriter(logLevel, logFormat, cmd.ErrOrStderr()))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads configuration with the command's flags taking precedence.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openStore opens the configured database, requires all migrations and
// returns the store. Callers close the returned connection.
func openStore(cfg *config.Config) (*sqlx.DB, *db.Store, error) {
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("database URL required (--db-url or TP_DATABASE_URL)")
	}
	conn, err := db.Open(cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.RequireMigrations(context.Background(), conn); err != nil {
		conn.Close()
		return nil, nil, err
	}
	store, err := db.NewStore(conn)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return conn, store, nil
}

// commandContext returns the command's context, or Background when run
// outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
