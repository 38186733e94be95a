package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/solatis/tradepromo/internal/core/api"
	"github.com/solatis/tradepromo/internal/core/auth"
	"github.com/solatis/tradepromo/internal/core/config"
	"github.com/solatis/tradepromo/internal/core/server"
	"github.com/solatis/tradepromo/internal/metrics"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC promotion service",
	Long: `Serve evaluates customers over gRPC. Requests authenticate with an
x-api-key issued by 'tradepromo apikey create'. SIGHUP reloads the rule set.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50061, "gRPC server port")
	serveCmd.Flags().String("metrics-addr", ":9090", "Prometheus metrics listen address (empty disables)")
	serveCmd.Flags().String("data-dir", "./data", "directory for the evaluation journal")
	serveCmd.Flags().String("rules-dir", "", "directory of rule documents")
	serveCmd.Flags().String("rule-source", "", "rule source (dir, db)")
	serveCmd.Flags().Bool("stop-on-first-trigger", false, "default stop policy for requests that do not set one")
	serveCmd.Flags().Bool("strict", false, "report discount configurations that have no effect as errors")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	logger := slog.Default()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	conn, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set TP_HMAC_SECRET environment variable)")
	}

	m := metrics.New()
	metrics.RegisterPoolMetrics(m.Registry, conn)

	source, err := ruleSourceFor(cfg, store)
	if err != nil {
		return err
	}
	service, err := api.NewPromotionService(ctx, api.Options{
		Source:        source,
		Store:         store,
		Metrics:       m,
		Logger:        logger,
		DataDir:       cfg.Server.DataDir,
		StrictActions: cfg.Engine.StrictActions,
	})
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	authenticator := auth.NewAuthenticator(secrets, store.Queries(), m, logger)

	grpcServer, err := server.NewGRPCServer(cfg, service, authenticator, m, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("starting tradepromo", "version", Version, "host", cfg.Server.Host, "port", cfg.Server.Port, "rule_source", source.String())
	errChan := make(chan error, 1)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case err := <-errChan:
			return err
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				// Reload logs its own failure and keeps the old rules
				_, _ = service.Reload(ctx)
				continue
			}
			logger.Info("shutting down gracefully", "signal", sig.String())
			return grpcServer.Shutdown(context.Background())
		}
	}
}
