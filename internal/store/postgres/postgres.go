// Package postgres is the PostgreSQL backed membership store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/memberhub/roster-sync/internal/config"
	"github.com/memberhub/roster-sync/internal/membership"
	"github.com/memberhub/roster-sync/internal/otel"
	"github.com/memberhub/roster-sync/internal/store"
)

// TracerName is the name of the store tracer.
const TracerName = "github.com/memberhub/roster-sync/store/postgres"

const (
	defaultMaxConns        = 25
	defaultMinConns        = 5
	defaultConnMaxLifetime = 5 * time.Minute
)

// Postgres error codes.
const (
	codeUniqueViolation = "23505"
	codeCheckViolation  = "23514"
	codeForeignKey      = "23503"
	classDataException  = "22"
)

const nationalIDConstraint = "members_national_id_key"

// options holds configuration for the store.
type options struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// Option configures the store.
type Option func(*options) error

// WithConnectionPool sets the pgx pool. The caller owns the pool.
func WithConnectionPool(pool *pgxpool.Pool) Option {
	return func(o *options) error {
		if pool == nil {
			return fmt.Errorf("pgx pool is required")
		}
		o.pool = pool
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer. Tracing is disabled when unset.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		o.tracer = tracer
		return nil
	}
}

// Store implements store.Repository on PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

var _ store.Repository = (*Store)(nil)

// New creates a store from the given options.
func New(opts ...Option) (*Store, error) {
	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.pool == nil {
		return nil, fmt.Errorf("pgx pool is required")
	}
	return &Store{pool: o.pool, tracer: o.tracer}, nil
}

// NewPool opens a connection pool from the database configuration and
// verifies it with a ping.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}

	connStr, err := cfg.GetConnectionString()
	if err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database configuration: %w", err)
	}

	poolCfg.MaxConns = defaultMaxConns
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = cfg.MaxOpenConns
	}
	poolCfg.MinConns = min(int32(defaultMinConns), poolCfg.MaxConns)
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = min(cfg.MaxIdleConns, poolCfg.MaxConns)
	}
	poolCfg.MaxConnLifetime = defaultConnMaxLifetime
	if d := cfg.GetConnMaxLifetime(); d > 0 {
		poolCfg.MaxConnLifetime = d
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %v", store.ErrStorageUnavailable, err)
	}

	slog.Info("Database connection established",
		"user", cfg.User,
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database)
	return pool, nil
}

// Ping implements store.Repository.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
	}
	return nil
}

// DeactivateAllRemoteSourced implements store.Store.
func (s *Store) DeactivateAllRemoteSourced(ctx context.Context) (_ int64, retErr error) {
	ctx, span := s.startSpan(ctx, "postgres.DeactivateAllRemoteSourced")
	defer func() { endSpan(span, retErr) }()

	tag, err := s.pool.Exec(ctx, `
		UPDATE members
		   SET status = 'INACTIVE', updated_at = now()
		 WHERE remotely_sourced AND status = 'ACTIVE'`)
	if err != nil {
		return 0, classify(err)
	}
	span.SetAttributes(otel.AttrResultCount.Int64(tag.RowsAffected()))
	return tag.RowsAffected(), nil
}

const upsertMember = `
INSERT INTO members (
    tenant_id, national_id, holder_national_id, name, email, phone, birth_date,
    postal_code, street, street_number, complement, district, city, state,
    status, remotely_sourced
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 'ACTIVE', TRUE
)
ON CONFLICT ON CONSTRAINT members_national_id_key DO UPDATE SET
    tenant_id          = EXCLUDED.tenant_id,
    holder_national_id = COALESCE(NULLIF(EXCLUDED.holder_national_id, ''), members.holder_national_id),
    name               = COALESCE(NULLIF(EXCLUDED.name, ''), members.name),
    email              = COALESCE(NULLIF(EXCLUDED.email, ''), members.email),
    phone              = COALESCE(NULLIF(EXCLUDED.phone, ''), members.phone),
    birth_date         = COALESCE(EXCLUDED.birth_date, members.birth_date),
    postal_code        = COALESCE(NULLIF(EXCLUDED.postal_code, ''), members.postal_code),
    street             = COALESCE(NULLIF(EXCLUDED.street, ''), members.street),
    street_number      = COALESCE(NULLIF(EXCLUDED.street_number, ''), members.street_number),
    complement         = COALESCE(NULLIF(EXCLUDED.complement, ''), members.complement),
    district           = COALESCE(NULLIF(EXCLUDED.district, ''), members.district),
    city               = COALESCE(NULLIF(EXCLUDED.city, ''), members.city),
    state              = COALESCE(NULLIF(EXCLUDED.state, ''), members.state),
    status             = 'ACTIVE',
    remotely_sourced   = TRUE,
    updated_at         = now()`

// UpsertByNaturalKey implements store.Store.
func (s *Store) UpsertByNaturalKey(ctx context.Context, tenantID string, rec membership.Record) error {
	if rec.NationalID == "" {
		return fmt.Errorf("%w: missing national id", membership.ErrInvalidRecord)
	}

	_, err := s.pool.Exec(ctx, upsertMember,
		tenantID,
		rec.NationalID,
		rec.HolderNationalID,
		rec.Name,
		rec.Email,
		rec.Phone,
		rec.BirthDate,
		rec.PostalCode,
		rec.Address.Street,
		rec.Address.Number,
		rec.Address.Complement,
		rec.Address.District,
		rec.Address.City,
		rec.Address.State,
	)
	if err != nil {
		return classify(err)
	}
	return nil
}

// FindEligibleTenants implements store.Store.
func (s *Store) FindEligibleTenants(ctx context.Context) (_ []membership.Tenant, retErr error) {
	ctx, span := s.startSpan(ctx, "postgres.FindEligibleTenants")
	defer func() { endSpan(span, retErr) }()

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, status, remotely_sourced, remote_token, created_at, updated_at
		  FROM tenants
		 WHERE status = 'ACTIVE' AND remotely_sourced AND btrim(remote_token) <> ''
		 ORDER BY name, id`)
	if err != nil {
		return nil, classify(err)
	}

	tenants, err := pgx.CollectRows(rows, scanTenant)
	if err != nil {
		return nil, classify(err)
	}
	span.SetAttributes(otel.AttrResultCount.Int(len(tenants)))
	return tenants, nil
}

// PutTenant implements store.Repository.
func (s *Store) PutTenant(ctx context.Context, t membership.Tenant) (membership.Tenant, error) {
	if t.Status == "" {
		t.Status = membership.StatusActive
	}

	var id *string
	if t.ID != "" {
		id = &t.ID
	}

	rows, err := s.pool.Query(ctx, `
		INSERT INTO tenants (id, name, status, remotely_sourced, remote_token)
		VALUES (COALESCE($1::uuid, gen_random_uuid()), $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
		    name = EXCLUDED.name,
		    status = EXCLUDED.status,
		    remotely_sourced = EXCLUDED.remotely_sourced,
		    remote_token = EXCLUDED.remote_token,
		    updated_at = now()
		RETURNING id, name, status, remotely_sourced, remote_token, created_at, updated_at`,
		id, t.Name, string(t.Status), t.RemotelySourced, t.RemoteToken)
	if err != nil {
		return membership.Tenant{}, classify(err)
	}

	saved, err := pgx.CollectExactlyOneRow(rows, scanTenant)
	if err != nil {
		return membership.Tenant{}, classify(err)
	}
	return saved, nil
}

const memberColumns = `id, tenant_id, national_id, holder_national_id, name, email, phone,
    birth_date, postal_code, street, street_number, complement, district, city, state,
    status, remotely_sourced, created_at, updated_at`

// PutMember implements store.Repository.
func (s *Store) PutMember(ctx context.Context, m membership.Member) (membership.Member, error) {
	if m.NationalID == "" {
		return membership.Member{}, fmt.Errorf("%w: missing national id", membership.ErrInvalidRecord)
	}
	if m.Status == "" {
		m.Status = membership.StatusActive
	}

	rows, err := s.pool.Query(ctx, `
		INSERT INTO members (
		    tenant_id, national_id, holder_national_id, name, email, phone, birth_date,
		    postal_code, street, street_number, complement, district, city, state,
		    status, remotely_sourced
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT ON CONSTRAINT members_national_id_key DO UPDATE SET
		    tenant_id = EXCLUDED.tenant_id,
		    holder_national_id = EXCLUDED.holder_national_id,
		    name = EXCLUDED.name,
		    email = EXCLUDED.email,
		    phone = EXCLUDED.phone,
		    birth_date = EXCLUDED.birth_date,
		    postal_code = EXCLUDED.postal_code,
		    street = EXCLUDED.street,
		    street_number = EXCLUDED.street_number,
		    complement = EXCLUDED.complement,
		    district = EXCLUDED.district,
		    city = EXCLUDED.city,
		    state = EXCLUDED.state,
		    status = EXCLUDED.status,
		    remotely_sourced = EXCLUDED.remotely_sourced,
		    updated_at = now()
		RETURNING `+memberColumns,
		m.TenantID, m.NationalID, m.HolderNationalID, m.Name, m.Email, m.Phone, m.BirthDate,
		m.PostalCode, m.Address.Street, m.Address.Number, m.Address.Complement,
		m.Address.District, m.Address.City, m.Address.State,
		string(m.Status), m.RemotelySourced)
	if err != nil {
		return membership.Member{}, classify(err)
	}

	saved, err := pgx.CollectExactlyOneRow(rows, scanMember)
	if err != nil {
		return membership.Member{}, classify(err)
	}
	return saved, nil
}

// GetMember implements store.Repository.
func (s *Store) GetMember(ctx context.Context, nationalID string) (membership.Member, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+memberColumns+` FROM members WHERE national_id = $1`, nationalID)
	if err != nil {
		return membership.Member{}, classify(err)
	}

	m, err := pgx.CollectExactlyOneRow(rows, scanMember)
	if errors.Is(err, pgx.ErrNoRows) {
		return membership.Member{}, fmt.Errorf("member %s: %w", nationalID, store.ErrNotFound)
	}
	if err != nil {
		return membership.Member{}, classify(err)
	}
	return m, nil
}

// ListMembers implements store.Repository.
func (s *Store) ListMembers(ctx context.Context, tenantID string) ([]membership.Member, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+memberColumns+` FROM members WHERE tenant_id = $1 ORDER BY national_id`, tenantID)
	if err != nil {
		return nil, classify(err)
	}

	members, err := pgx.CollectRows(rows, scanMember)
	if err != nil {
		return nil, classify(err)
	}
	return members, nil
}

func scanTenant(row pgx.CollectableRow) (membership.Tenant, error) {
	var (
		t      membership.Tenant
		status string
	)
	err := row.Scan(&t.ID, &t.Name, &status, &t.RemotelySourced, &t.RemoteToken, &t.CreatedAt, &t.UpdatedAt)
	t.Status = membership.Status(status)
	return t, err
}

func scanMember(row pgx.CollectableRow) (membership.Member, error) {
	var (
		m      membership.Member
		status string
	)
	err := row.Scan(
		&m.ID, &m.TenantID, &m.NationalID, &m.HolderNationalID, &m.Name, &m.Email, &m.Phone,
		&m.BirthDate, &m.PostalCode, &m.Address.Street, &m.Address.Number, &m.Address.Complement,
		&m.Address.District, &m.Address.City, &m.Address.State,
		&status, &m.RemotelySourced, &m.CreatedAt, &m.UpdatedAt,
	)
	m.Status = membership.Status(status)
	return m, err
}

// classify maps driver errors onto the store's sentinel errors.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation && pgErr.ConstraintName != nationalIDConstraint:
			return fmt.Errorf("%w: %s", store.ErrDuplicateRecord, pgErr.ConstraintName)
		case pgErr.Code == codeCheckViolation,
			pgErr.Code == codeForeignKey,
			len(pgErr.Code) >= 2 && pgErr.Code[:2] == classDataException:
			return fmt.Errorf("%w: %s", membership.ErrInvalidRecord, pgErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
}

func (s *Store) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.StartSpan(ctx, s.tracer, name, trace.WithAttributes(semconv.DBSystemPostgreSQL))
}

func endSpan(span trace.Span, err error) {
	otel.RecordError(span, err)
	span.End()
}
