package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/memberhub/roster-sync/internal/app/storage"
	"github.com/memberhub/roster-sync/internal/status"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the report of the latest reconciliation run",
		RunE:  runStatus,
	}

	cmd.Flags().String("format", "table", "Output format (table, json)")
	addConfigFlag(cmd)
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	factory, err := storage.NewStorageFactory(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer factory.Cleanup()

	persistence, err := factory.CreateStatusPersistence(ctx)
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}

	run, err := persistence.LoadLatest(ctx)
	if err != nil {
		return err
	}
	if run == nil {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "No reconciliation run recorded yet.")
		return err
	}
	return printRun(cmd.OutOrStdout(), run, format)
}

// printRun writes a run report as a table or as JSON.
func printRun(w io.Writer, run *status.RunStatus, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	case "table", "":
	default:
		return fmt.Errorf("unsupported format %q", format)
	}

	finished := "-"
	if run.FinishedAt != nil {
		finished = run.FinishedAt.Format(time.RFC3339)
	}
	succeeded, failed := run.TenantCounts()

	if _, err := fmt.Fprintf(w,
		"Run:         %s\nTrigger:     %s\nPhase:       %s\nStarted:     %s\nFinished:    %s\nDeactivated: %d\nTenants:     %d succeeded, %d failed\n",
		run.RunID, run.Trigger, run.Phase, run.StartedAt.Format(time.RFC3339), finished,
		run.Deactivated, succeeded, failed); err != nil {
		return err
	}
	if run.Message != "" {
		if _, err := fmt.Fprintf(w, "Message:     %s\n", run.Message); err != nil {
			return err
		}
	}
	if len(run.Tenants) == 0 {
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("Tenant", "Result", "Fetched", "Upserted", "Duplicates", "Invalid", "Failed", "Error")
	for _, t := range run.Tenants {
		result := "ok"
		if !t.Succeeded {
			result = "failed: " + t.Stage
		}
		name := t.TenantName
		if name == "" {
			name = t.TenantID
		}
		if err := table.Append([]string{
			name,
			result,
			strconv.Itoa(t.Records.Fetched),
			strconv.Itoa(t.Records.Upserted),
			strconv.Itoa(t.Records.Duplicates),
			strconv.Itoa(t.Records.Invalid),
			strconv.Itoa(t.Records.Failed),
			t.Error,
		}); err != nil {
			return fmt.Errorf("failed to render run report: %w", err)
		}
	}
	return table.Render()
}
