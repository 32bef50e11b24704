package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/memberhub/roster-sync/internal/app/storage"
	"github.com/memberhub/roster-sync/internal/membership"
	"github.com/memberhub/roster-sync/internal/seed"
)

func newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load tenants from a YAML file into the database",
		Long: `Create or replace the tenants listed in a tenants file. Tenants are active
and remotely sourced unless the file says otherwise.

With --prompt-tokens, every remotely sourced tenant listed without a token
has its token read from the terminal.`,
		RunE: runSeed,
	}

	cmd.Flags().String("file", "", "Path to the tenants file (required)")
	cmd.Flags().Bool("prompt-tokens", false, "Read missing tenant tokens from the terminal")
	if err := cmd.MarkFlagRequired("file"); err != nil {
		panic(err)
	}
	addConfigFlag(cmd)
	return cmd
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	file, err := cmd.Flags().GetString("file")
	if err != nil {
		return fmt.Errorf("failed to get file flag: %w", err)
	}
	promptTokens, err := cmd.Flags().GetBool("prompt-tokens")
	if err != nil {
		return fmt.Errorf("failed to get prompt-tokens flag: %w", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Database == nil {
		return fmt.Errorf("database configuration is required, in-memory tenants are loaded from tenantsFile at startup")
	}

	tenants, err := seed.LoadFile(file)
	if err != nil {
		return err
	}
	if promptTokens {
		if err := promptMissingTokens(cmd, tenants); err != nil {
			return err
		}
	}

	factory, err := storage.NewStorageFactory(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer factory.Cleanup()

	repo, err := factory.CreateRepository(ctx)
	if err != nil {
		return fmt.Errorf("failed to open membership store: %w", err)
	}

	n, err := seed.Apply(ctx, repo, tenants)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d tenant(s)\n", n)
	return err
}

func promptMissingTokens(cmd *cobra.Command, tenants []membership.Tenant) error {
	stdin, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(stdin.Fd())) {
		return fmt.Errorf("--prompt-tokens requires a terminal")
	}

	for i := range tenants {
		if !tenants[i].RemotelySourced || tenants[i].RemoteToken != "" {
			continue
		}
		token, err := readToken(cmd.ErrOrStderr(), stdin, tenants[i].ID)
		if err != nil {
			return err
		}
		tenants[i].RemoteToken = token
	}
	return nil
}

func readToken(out io.Writer, stdin *os.File, tenantID string) (string, error) {
	_, _ = fmt.Fprintf(out, "Token for tenant %s: ", tenantID)
	raw, err := term.ReadPassword(int(stdin.Fd()))
	_, _ = fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}

	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", fmt.Errorf("token for tenant %s cannot be empty", tenantID)
	}
	return token, nil
}
