// Package storetest is a behavioural test suite shared by every
// store.Repository implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memberhub/roster-sync/internal/membership"
	"github.com/memberhub/roster-sync/internal/store"
)

// Factory returns an empty repository for one subtest.
type Factory func(t *testing.T) store.Repository

// Run executes the suite. Subtests run sequentially so factories may
// share a database and reset it between cases.
//
//nolint:thelper // subtests should point at their own lines
func Run(t *testing.T, newRepo Factory) {
	t.Run("FindEligibleTenants", func(t *testing.T) { testEligibleTenants(t, newRepo(t)) })
	t.Run("UpsertInsertsNewMember", func(t *testing.T) { testUpsertInserts(t, newRepo(t)) })
	t.Run("UpsertPreservesBlankFields", func(t *testing.T) { testUpsertPreservesBlanks(t, newRepo(t)) })
	t.Run("UpsertIsIdempotent", func(t *testing.T) { testUpsertIdempotent(t, newRepo(t)) })
	t.Run("UpsertReassignsTenant", func(t *testing.T) { testUpsertReassigns(t, newRepo(t)) })
	t.Run("UpsertDuplicateEmail", func(t *testing.T) { testUpsertDuplicateEmail(t, newRepo(t)) })
	t.Run("DeactivateAllRemoteSourced", func(t *testing.T) { testDeactivate(t, newRepo(t)) })
	t.Run("GetMemberNotFound", func(t *testing.T) { testGetMemberNotFound(t, newRepo(t)) })
}

func mustPutTenant(t *testing.T, repo store.Repository, tenant membership.Tenant) membership.Tenant {
	t.Helper()
	saved, err := repo.PutTenant(context.Background(), tenant)
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)
	return saved
}

func remoteTenant(t *testing.T, repo store.Repository, name string) membership.Tenant {
	t.Helper()
	return mustPutTenant(t, repo, membership.Tenant{
		Name:            name,
		Status:          membership.StatusActive,
		RemotelySourced: true,
		RemoteToken:     "token-" + name,
	})
}

func testEligibleTenants(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	eligibleA := remoteTenant(t, repo, "alpha")
	eligibleB := remoteTenant(t, repo, "bravo")
	mustPutTenant(t, repo, membership.Tenant{Name: "charlie", Status: membership.StatusActive, RemoteToken: "tok"})
	mustPutTenant(t, repo, membership.Tenant{Name: "delta", Status: membership.StatusInactive, RemotelySourced: true, RemoteToken: "tok"})
	mustPutTenant(t, repo, membership.Tenant{Name: "echo", Status: membership.StatusActive, RemotelySourced: true, RemoteToken: "  "})

	tenants, err := repo.FindEligibleTenants(ctx)
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, eligibleA.ID, tenants[0].ID)
	assert.Equal(t, eligibleB.ID, tenants[1].ID)
	for _, tenant := range tenants {
		assert.True(t, tenant.IsEligible())
	}
}

func testUpsertInserts(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	tenant := remoteTenant(t, repo, "alpha")
	birth := time.Date(1990, time.April, 21, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertByNaturalKey(ctx, tenant.ID, membership.Record{
		NationalID: "11122233344",
		Name:       "Ana Lima",
		Email:      "ana@example.com",
		BirthDate:  &birth,
		Address:    membership.Address{City: "Recife", State: "PE"},
	}))

	m, err := repo.GetMember(ctx, "11122233344")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, m.TenantID)
	assert.Equal(t, membership.StatusActive, m.Status)
	assert.True(t, m.RemotelySourced)
	assert.Equal(t, "Ana Lima", m.Name)
	assert.Equal(t, "Recife", m.Address.City)
	require.NotNil(t, m.BirthDate)
	assert.True(t, birth.Equal(*m.BirthDate))
}

func testUpsertPreservesBlanks(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	tenant := remoteTenant(t, repo, "alpha")
	birth := time.Date(1980, time.January, 5, 0, 0, 0, 0, time.UTC)

	_, err := repo.PutMember(ctx, membership.Member{
		TenantID:   tenant.ID,
		NationalID: "55566677788",
		Name:       "Old Name",
		Email:      "kept@example.com",
		Phone:      "81999990000",
		BirthDate:  &birth,
		Address:    membership.Address{Street: "Rua Velha", City: "Olinda"},
		Status:     membership.StatusInactive,
	})
	require.NoError(t, err)

	require.NoError(t, repo.UpsertByNaturalKey(ctx, tenant.ID, membership.Record{
		NationalID: "55566677788",
		Name:       "New Name",
		Address:    membership.Address{City: "Recife"},
	}))

	m, err := repo.GetMember(ctx, "55566677788")
	require.NoError(t, err)
	assert.Equal(t, "New Name", m.Name)
	assert.Equal(t, "kept@example.com", m.Email)
	assert.Equal(t, "81999990000", m.Phone)
	assert.Equal(t, "Rua Velha", m.Address.Street)
	assert.Equal(t, "Recife", m.Address.City)
	require.NotNil(t, m.BirthDate)
	assert.True(t, birth.Equal(*m.BirthDate))
	assert.Equal(t, membership.StatusActive, m.Status)
	assert.True(t, m.RemotelySourced)
}

func testUpsertIdempotent(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	tenant := remoteTenant(t, repo, "alpha")
	rec := membership.Record{NationalID: "99988877766", Name: "Same", Email: "same@example.com"}

	require.NoError(t, repo.UpsertByNaturalKey(ctx, tenant.ID, rec))
	first, err := repo.GetMember(ctx, rec.NationalID)
	require.NoError(t, err)

	require.NoError(t, repo.UpsertByNaturalKey(ctx, tenant.ID, rec))
	second, err := repo.GetMember(ctx, rec.NationalID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, first.Email, second.Email)
	assert.Equal(t, first.Status, second.Status)

	members, err := repo.ListMembers(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func testUpsertReassigns(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	from := remoteTenant(t, repo, "alpha")
	to := remoteTenant(t, repo, "bravo")

	require.NoError(t, repo.UpsertByNaturalKey(ctx, from.ID, membership.Record{NationalID: "12312312312", Name: "Mover"}))
	require.NoError(t, repo.UpsertByNaturalKey(ctx, to.ID, membership.Record{NationalID: "12312312312"}))

	m, err := repo.GetMember(ctx, "12312312312")
	require.NoError(t, err)
	assert.Equal(t, to.ID, m.TenantID)
	assert.Equal(t, "Mover", m.Name)

	left, err := repo.ListMembers(ctx, from.ID)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func testUpsertDuplicateEmail(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	tenant := remoteTenant(t, repo, "alpha")

	require.NoError(t, repo.UpsertByNaturalKey(ctx, tenant.ID, membership.Record{NationalID: "1", Email: "shared@example.com"}))
	err := repo.UpsertByNaturalKey(ctx, tenant.ID, membership.Record{NationalID: "2", Email: "SHARED@example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrDuplicateRecord)

	_, err = repo.GetMember(ctx, "2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDeactivate(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	tenant := remoteTenant(t, repo, "alpha")

	for _, m := range []membership.Member{
		{NationalID: "100", RemotelySourced: true, Status: membership.StatusActive},
		{NationalID: "200", RemotelySourced: true, Status: membership.StatusActive},
		{NationalID: "300", RemotelySourced: true, Status: membership.StatusDefaulting},
		{NationalID: "400", RemotelySourced: false, Status: membership.StatusActive},
	} {
		m.TenantID = tenant.ID
		_, err := repo.PutMember(ctx, m)
		require.NoError(t, err)
	}

	n, err := repo.DeactivateAllRemoteSourced(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	want := map[string]membership.Status{
		"100": membership.StatusInactive,
		"200": membership.StatusInactive,
		"300": membership.StatusDefaulting,
		"400": membership.StatusActive,
	}
	for id, status := range want {
		m, err := repo.GetMember(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, status, m.Status, id)
	}

	n, err = repo.DeactivateAllRemoteSourced(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testGetMemberNotFound(t *testing.T, repo store.Repository) {
	_, err := repo.GetMember(context.Background(), "00000000000")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
