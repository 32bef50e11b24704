package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/memberhub/roster-sync/internal/app"
	"github.com/memberhub/roster-sync/internal/logging"
	"github.com/memberhub/roster-sync/internal/telemetry"
)

func newReconcileCmd(logger *logging.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass and exit",
		Long: `Run a single reconciliation pass synchronously. The command exits with a
non-zero status when the run aborts. Tenant and record failures are reported
but do not fail the command. The run honours the configured run lock, so it
is refused while a scheduled run holds it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReconcile(cmd, logger)
		},
	}

	cmd.Flags().String("format", "table", "Report format (table, json)")
	addConfigFlag(cmd)
	return cmd
}

func runReconcile(cmd *cobra.Command, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
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
		app.WithLogger(logger.Slog),
		app.WithCronLogger(logger.Logr),
		app.WithTelemetry(tel),
	)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	defer rosterApp.Close()

	run, runErr := rosterApp.RunOnce(ctx)
	if run != nil {
		if err := printRun(cmd.OutOrStdout(), run, format); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("reconciliation failed: %w", runErr)
	}
	return nil
}
