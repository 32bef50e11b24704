// Package inmemory is a process-local membership store.
package inmemory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/memberhub/roster-sync/internal/clock"
	"github.com/memberhub/roster-sync/internal/membership"
	"github.com/memberhub/roster-sync/internal/store"
)

// Store keeps tenants and members in maps guarded by a mutex. It honours
// the same uniqueness rules as the Postgres store.
type Store struct {
	mu      sync.RWMutex
	clock   clock.Clock
	tenants map[string]membership.Tenant
	members map[string]membership.Member // keyed by national id
}

var _ store.Repository = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		clock:   clock.NewSystem(),
		tenants: make(map[string]membership.Tenant),
		members: make(map[string]membership.Member),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DeactivateAllRemoteSourced implements store.Store.
func (s *Store) DeactivateAllRemoteSourced(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var n int64
	for key, m := range s.members {
		if m.RemotelySourced && m.Status == membership.StatusActive {
			m.Status = membership.StatusInactive
			m.UpdatedAt = now
			s.members[key] = m
			n++
		}
	}
	return n, nil
}

// UpsertByNaturalKey implements store.Store.
func (s *Store) UpsertByNaturalKey(ctx context.Context, tenantID string, rec membership.Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
	}
	if rec.NationalID == "" {
		return fmt.Errorf("%w: missing national id", membership.ErrInvalidRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[tenantID]; !ok {
		return fmt.Errorf("%w: unknown tenant %s", membership.ErrInvalidRecord, tenantID)
	}

	now := s.clock.Now()
	m, exists := s.members[rec.NationalID]
	if !exists {
		m = membership.Member{ID: uuid.NewString(), CreatedAt: now}
	}
	m.Merge(tenantID, rec)
	m.UpdatedAt = now

	if err := s.checkEmailLocked(m); err != nil {
		return err
	}
	s.members[m.NationalID] = m
	return nil
}

// FindEligibleTenants implements store.Store.
func (s *Store) FindEligibleTenants(ctx context.Context) ([]membership.Tenant, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []membership.Tenant
	for _, t := range s.tenants {
		if t.IsEligible() {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b membership.Tenant) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// PutTenant implements store.Repository.
func (s *Store) PutTenant(_ context.Context, tenant membership.Tenant) (membership.Tenant, error) {
	if tenant.Status == "" {
		tenant.Status = membership.StatusActive
	}
	if !tenant.Status.Valid() {
		return membership.Tenant{}, fmt.Errorf("invalid tenant status %q", tenant.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	if prev, ok := s.tenants[tenant.ID]; ok {
		tenant.CreatedAt = prev.CreatedAt
	} else {
		tenant.CreatedAt = now
	}
	tenant.UpdatedAt = now
	s.tenants[tenant.ID] = tenant
	return tenant, nil
}

// PutMember implements store.Repository.
func (s *Store) PutMember(_ context.Context, member membership.Member) (membership.Member, error) {
	if member.NationalID == "" {
		return membership.Member{}, fmt.Errorf("%w: missing national id", membership.ErrInvalidRecord)
	}
	if member.Status == "" {
		member.Status = membership.StatusActive
	}
	if !member.Status.Valid() {
		return membership.Member{}, fmt.Errorf("%w: invalid status %q", membership.ErrInvalidRecord, member.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[member.TenantID]; !ok {
		return membership.Member{}, fmt.Errorf("%w: unknown tenant %s", membership.ErrInvalidRecord, member.TenantID)
	}

	now := s.clock.Now()
	if prev, ok := s.members[member.NationalID]; ok {
		member.ID = prev.ID
		member.CreatedAt = prev.CreatedAt
	} else {
		if member.ID == "" {
			member.ID = uuid.NewString()
		}
		member.CreatedAt = now
	}
	member.UpdatedAt = now

	if err := s.checkEmailLocked(member); err != nil {
		return membership.Member{}, err
	}
	s.members[member.NationalID] = member
	return member, nil
}

// GetMember implements store.Repository.
func (s *Store) GetMember(_ context.Context, nationalID string) (membership.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[nationalID]
	if !ok {
		return membership.Member{}, fmt.Errorf("member %s: %w", nationalID, store.ErrNotFound)
	}
	return m, nil
}

// ListMembers implements store.Repository.
func (s *Store) ListMembers(_ context.Context, tenantID string) ([]membership.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []membership.Member
	for _, m := range s.members {
		if m.TenantID == tenantID {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b membership.Member) int {
		return strings.Compare(a.NationalID, b.NationalID)
	})
	return out, nil
}

// Ping implements store.Repository.
func (*Store) Ping(context.Context) error {
	return nil
}

// checkEmailLocked enforces case-insensitive email uniqueness.
func (s *Store) checkEmailLocked(m membership.Member) error {
	if m.Email == "" {
		return nil
	}
	for key, other := range s.members {
		if key != m.NationalID && strings.EqualFold(other.Email, m.Email) {
			return fmt.Errorf("%w: email already used by another member", store.ErrDuplicateRecord)
		}
	}
	return nil
}
