package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"github.com/memberhub/roster-sync/internal/config"
	"github.com/memberhub/roster-sync/internal/status"
	"github.com/memberhub/roster-sync/internal/store"
	"github.com/memberhub/roster-sync/internal/store/postgres"
)

// DatabaseFactory creates PostgreSQL-backed components sharing one pool.
type DatabaseFactory struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

var _ Factory = (*DatabaseFactory)(nil)

// DatabaseFactoryOption configures a DatabaseFactory.
type DatabaseFactoryOption func(*DatabaseFactory)

// WithTracer enables spans on store queries.
func WithTracer(tracer trace.Tracer) DatabaseFactoryOption {
	return func(f *DatabaseFactory) {
		f.tracer = tracer
	}
}

// WithPool reuses an existing pool instead of dialling one.
func WithPool(pool *pgxpool.Pool) DatabaseFactoryOption {
	return func(f *DatabaseFactory) {
		f.pool = pool
	}
}

// NewDatabaseFactory connects to the configured database.
func NewDatabaseFactory(ctx context.Context, cfg *config.Config, opts ...DatabaseFactoryOption) (*DatabaseFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	factory := &DatabaseFactory{}
	for _, opt := range opts {
		opt(factory)
	}

	if factory.pool == nil {
		if cfg.Database == nil {
			return nil, fmt.Errorf("database configuration is required")
		}
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to create database connection pool: %w", err)
		}
		factory.pool = pool
	}

	slog.Info("Using database-backed storage")
	return factory, nil
}

// CreateRepository implements Factory.
func (d *DatabaseFactory) CreateRepository(_ context.Context) (store.Repository, error) {
	opts := []postgres.Option{postgres.WithConnectionPool(d.pool)}
	if d.tracer != nil {
		opts = append(opts, postgres.WithTracer(d.tracer))
	}
	return postgres.New(opts...)
}

// CreateStatusPersistence implements Factory.
func (d *DatabaseFactory) CreateStatusPersistence(_ context.Context) (status.Persistence, error) {
	return status.NewDBStatusPersistence(d.pool), nil
}

// Pool returns the shared connection pool.
func (d *DatabaseFactory) Pool() *pgxpool.Pool {
	return d.pool
}

// Cleanup closes the connection pool.
func (d *DatabaseFactory) Cleanup() {
	if d.pool != nil {
		slog.Info("Closing database connection pool")
		d.pool.Close()
	}
}
