// Package storage creates the storage-dependent components of the
// application as a compatible family: the membership repository and the
// run status persistence.
package storage

import (
	"context"
	"fmt"

	"github.com/memberhub/roster-sync/internal/config"
	"github.com/memberhub/roster-sync/internal/status"
	"github.com/memberhub/roster-sync/internal/store"
)

// Factory creates storage-dependent components.
//
// Implementations ensure that all components share a backend: either
// PostgreSQL for both, or process memory for members and a status file.
type Factory interface {
	// CreateRepository returns the membership repository.
	CreateRepository(ctx context.Context) (store.Repository, error)

	// CreateStatusPersistence returns where run records are kept.
	CreateStatusPersistence(ctx context.Context) (status.Persistence, error)

	// Cleanup releases resources held by the factory, such as the
	// connection pool.
	Cleanup()
}

// NewStorageFactory returns a DatabaseFactory when a database is
// configured and a MemoryFactory otherwise.
func NewStorageFactory(ctx context.Context, cfg *config.Config, opts ...DatabaseFactoryOption) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Database != nil {
		return NewDatabaseFactory(ctx, cfg, opts...)
	}
	return NewMemoryFactory(ctx, cfg, cfg.GetDataDir())
}
