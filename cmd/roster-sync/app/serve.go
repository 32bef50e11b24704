package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/memberhub/roster-sync/internal/app"
	"github.com/memberhub/roster-sync/internal/logging"
	"github.com/memberhub/roster-sync/internal/telemetry"
)

const defaultGracefulTimeout = 30 * time.Second

func newServeCmd(logger *logging.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reconciliation scheduler and the ops API",
		Long: `Start the reconciliation scheduler and the operational HTTP API.

The configuration file (--config) sets the remote roster API, the credential
strategy, the cron schedule, the database and the optional run lock and
event publisher. See examples/ for a sample configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, logger)
		},
	}

	cmd.Flags().String("address", ":8080", "Address to listen on")
	addConfigFlag(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, logger *logging.Logger) error {
	ctx := context.Background()

	address, err := cmd.Flags().GetString("address")
	if err != nil {
		return fmt.Errorf("failed to get address flag: %w", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("failed to initialise telemetry: %w", err)
	}
	defer shutdownTelemetry(tel)

	rosterApp, err := app.NewRosterApp(ctx,
		app.WithConfig(cfg),
		app.WithAddress(address),
		app.WithLogger(logger.Slog),
		app.WithCronLogger(logger.Logr),
		app.WithTelemetry(tel),
	)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- rosterApp.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if stopErr := rosterApp.Stop(defaultGracefulTimeout); stopErr != nil {
			slog.Error("Failed to stop after serve error", "error", stopErr)
		}
		return err
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig.String())
	}

	return rosterApp.Stop(defaultGracefulTimeout)
}

func shutdownTelemetry(tel *telemetry.Telemetry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		slog.Error("Failed to shut down telemetry", "error", err)
	}
}
