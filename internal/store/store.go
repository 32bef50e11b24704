// Package store defines the local membership store used by the
// reconciliation engine.
package store

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store,Repository

import (
	"context"
	"errors"

	"github.com/memberhub/roster-sync/internal/membership"
)

var (
	// ErrStorageUnavailable is returned when the backing store cannot be
	// reached or fails unexpectedly.
	ErrStorageUnavailable = errors.New("membership storage unavailable")

	// ErrDuplicateRecord is returned when an upsert would violate a
	// uniqueness constraint other than the natural key.
	ErrDuplicateRecord = errors.New("duplicate member record")

	// ErrNotFound is returned by lookups that match nothing.
	ErrNotFound = errors.New("not found")
)

// Store is the subset of the membership store a reconciliation run needs.
type Store interface {
	// DeactivateAllRemoteSourced flips every active, remotely sourced
	// member to inactive and returns how many rows changed.
	DeactivateAllRemoteSourced(ctx context.Context) (int64, error)

	// UpsertByNaturalKey inserts or updates the member identified by
	// rec.NationalID, assigning it to tenantID and marking it active and
	// remotely sourced. Blank fields in rec never overwrite stored values.
	UpsertByNaturalKey(ctx context.Context, tenantID string, rec membership.Record) error

	// FindEligibleTenants returns the tenants that take part in a run.
	FindEligibleTenants(ctx context.Context) ([]membership.Tenant, error)
}

// Repository extends Store with the administrative operations used for
// seeding and inspection.
type Repository interface {
	Store

	// PutTenant creates the tenant, or replaces it when its ID exists.
	// A blank ID is assigned.
	PutTenant(ctx context.Context, tenant membership.Tenant) (membership.Tenant, error)

	// PutMember creates or replaces a member keyed by its national id.
	PutMember(ctx context.Context, member membership.Member) (membership.Member, error)

	// GetMember returns the member with the given national id.
	GetMember(ctx context.Context, nationalID string) (membership.Member, error)

	// ListMembers returns the members of a tenant ordered by national id.
	ListMembers(ctx context.Context, tenantID string) ([]membership.Member, error)

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}
