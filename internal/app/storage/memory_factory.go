package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/memberhub/roster-sync/internal/config"
	"github.com/memberhub/roster-sync/internal/seed"
	"github.com/memberhub/roster-sync/internal/status"
	"github.com/memberhub/roster-sync/internal/store"
	"github.com/memberhub/roster-sync/internal/store/inmemory"
)

// MemoryFactory keeps members in process memory and run records in a file
// under the data directory. Members are lost on restart; it serves local
// trials against a remote roster.
type MemoryFactory struct {
	dataDir string
	repo    *inmemory.Store
}

var _ Factory = (*MemoryFactory)(nil)

// NewMemoryFactory creates a MemoryFactory rooted at dataDir. Tenants
// listed in cfg.TenantsFile are loaded into the store.
func NewMemoryFactory(ctx context.Context, cfg *config.Config, dataDir string) (*MemoryFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}

	slog.Warn("No database configured, members are kept in memory", "data_dir", dataDir)
	repo := inmemory.New()

	if cfg.TenantsFile != "" {
		tenants, err := seed.LoadFile(cfg.TenantsFile)
		if err != nil {
			return nil, err
		}
		n, err := seed.Apply(ctx, repo, tenants)
		if err != nil {
			return nil, err
		}
		slog.Info("Loaded tenants", "file", cfg.TenantsFile, "count", n)
	}

	return &MemoryFactory{
		dataDir: dataDir,
		repo:    repo,
	}, nil
}

// CreateRepository implements Factory. Every call returns the same store.
func (m *MemoryFactory) CreateRepository(_ context.Context) (store.Repository, error) {
	return m.repo, nil
}

// CreateStatusPersistence implements Factory.
func (m *MemoryFactory) CreateStatusPersistence(_ context.Context) (status.Persistence, error) {
	return status.NewFileStatusPersistence(m.dataDir), nil
}

// Cleanup implements Factory.
func (*MemoryFactory) Cleanup() {}
