package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/mock/gomock"
	"golang.org/x/oauth2"

	"github.com/memberhub/roster-sync/internal/clock"
	"github.com/memberhub/roster-sync/internal/credentials"
	credmocks "github.com/memberhub/roster-sync/internal/credentials/mocks"
	"github.com/memberhub/roster-sync/internal/logging"
	"github.com/memberhub/roster-sync/internal/membership"
	"github.com/memberhub/roster-sync/internal/roster"
	rostermocks "github.com/memberhub/roster-sync/internal/roster/mocks"
	"github.com/memberhub/roster-sync/internal/store"
	storemocks "github.com/memberhub/roster-sync/internal/store/mocks"
	"github.com/memberhub/roster-sync/internal/telemetry"
)

var (
	tenantA = membership.Tenant{ID: "a", Name: "Alpha", Status: membership.StatusActive, RemotelySourced: true, RemoteToken: "tok-a"}
	tenantB = membership.Tenant{ID: "b", Name: "Bravo", Status: membership.StatusActive, RemotelySourced: true, RemoteToken: "tok-b"}
)

type fixture struct {
	store   *storemocks.MockStore
	creds   *credmocks.MockProvider
	fetcher *rostermocks.MockFetcher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	return fixture{
		store:   storemocks.NewMockStore(ctrl),
		creds:   credmocks.NewMockProvider(ctrl),
		fetcher: rostermocks.NewMockFetcher(ctrl),
	}
}

func (f fixture) orchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(Dependencies{
		Store:       f.store,
		Credentials: f.creds,
		Fetcher:     f.fetcher,
		Logger:      logging.New(logging.WithOutput(io.Discard)).Slog,
		Clock:       clock.NewFake(time.Date(2026, time.March, 1, 1, 15, 0, 0, time.UTC)),
	}, opts...)
	require.NoError(t, err)
	return o
}

func token(s string) *oauth2.Token {
	return &oauth2.Token{AccessToken: s, TokenType: "Bearer"}
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := New(Dependencies{Credentials: f.creds, Fetcher: f.fetcher})
	assert.ErrorContains(t, err, "store")
	_, err = New(Dependencies{Store: f.store, Fetcher: f.fetcher})
	assert.ErrorContains(t, err, "credential")
	_, err = New(Dependencies{Store: f.store, Credentials: f.creds})
	assert.ErrorContains(t, err, "fetcher")

	o, err := New(Dependencies{Store: f.store, Credentials: f.creds, Fetcher: f.fetcher})
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, o.Phase())
}

func TestRun_FatalFailures(t *testing.T) {
	t.Parallel()

	storageDown := errors.New("connection refused")

	tests := []struct {
		name       string
		setup      func(f fixture)
		wantReason string
		wantPhase  Phase
		wantErr    error
	}{
		{
			name: "system login rejected",
			setup: func(f fixture) {
				f.creds.EXPECT().Prepare(gomock.Any()).Return(credentials.ErrAuthenticationFailed)
			},
			wantReason: ReasonAuthenticationFailed,
			wantPhase:  PhaseDeactivating,
			wantErr:    credentials.ErrAuthenticationFailed,
		},
		{
			name: "credential preparation fails otherwise",
			setup: func(f fixture) {
				f.creds.EXPECT().Prepare(gomock.Any()).Return(errors.New("secret file unreadable"))
			},
			wantReason: ReasonCredentialsFailed,
			wantPhase:  PhaseDeactivating,
		},
		{
			name: "deactivation fails",
			setup: func(f fixture) {
				f.creds.EXPECT().Prepare(gomock.Any()).Return(nil)
				f.store.EXPECT().DeactivateAllRemoteSourced(gomock.Any()).Return(int64(0), storageDown)
			},
			wantReason: ReasonDeactivateFailed,
			wantPhase:  PhaseDeactivating,
			wantErr:    storageDown,
		},
		{
			name: "tenant enumeration fails",
			setup: func(f fixture) {
				f.creds.EXPECT().Prepare(gomock.Any()).Return(nil)
				f.store.EXPECT().DeactivateAllRemoteSourced(gomock.Any()).Return(int64(3), nil)
				f.store.EXPECT().FindEligibleTenants(gomock.Any()).Return(nil, store.ErrStorageUnavailable)
			},
			wantReason: ReasonEnumerateFailed,
			wantPhase:  PhaseDeactivating,
			wantErr:    store.ErrStorageUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			tt.setup(f)
			// no tenant is ever contacted
			f.creds.EXPECT().Token(gomock.Any(), gomock.Any()).Times(0)
			f.fetcher.EXPECT().FetchFullRoster(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			f.store.EXPECT().UpsertByNaturalKey(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

			o := f.orchestrator(t)
			result, err := o.Run(context.Background(), "run-1")
			require.Error(t, err)

			var runErr *Error
			require.True(t, errors.As(err, &runErr))
			assert.Equal(t, tt.wantReason, runErr.Reason)
			assert.Equal(t, tt.wantPhase, runErr.Phase)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}

			require.NotNil(t, result)
			assert.True(t, result.Aborted())
			assert.Equal(t, "run-1", result.RunID)
			assert.Empty(t, result.Tenants)
			assert.Equal(t, PhaseAborted, o.Phase())
		})
	}
}

func TestRun_NoEligibleTenants(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.creds.EXPECT().Prepare(gomock.Any()).Return(nil)
	f.store.EXPECT().DeactivateAllRemoteSourced(gomock.Any()).Return(int64(7), nil)
	f.store.EXPECT().FindEligibleTenants(gomock.Any()).Return(nil, nil)

	o := f.orchestrator(t)
	result, err := o.Run(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, PhaseIdle, result.Phase)
	assert.Equal(t, int64(7), result.Deactivated)
	assert.Empty(t, result.Tenants)
	assert.Equal(t, PhaseIdle, o.Phase())
}

func TestRun_TenantIsolation(t *testing.T) {
	t.Parallel()

	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency_%d", concurrency), func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			f.creds.EXPECT().Prepare(gomock.Any()).Return(nil)
			deactivate := f.store.EXPECT().DeactivateAllRemoteSourced(gomock.Any()).Return(int64(2), nil)
			f.store.EXPECT().FindEligibleTenants(gomock.Any()).Return([]membership.Tenant{tenantA, tenantB}, nil)

			f.creds.EXPECT().Token(gomock.Any(), tenantA).Return(token("tok-a"), nil)
			f.creds.EXPECT().Token(gomock.Any(), tenantB).Return(token("tok-b"), nil)
			f.fetcher.EXPECT().FetchFullRoster(gomock.Any(), tenantA, token("tok-a")).
				Return(nil, &roster.FetchError{TenantID: "a", StatusCode: 502, Err: errors.New("bad gateway")})
			f.fetcher.EXPECT().FetchFullRoster(gomock.Any(), tenantB, token("tok-b")).
				Return([]membership.RawRecord{{NationalID: "111"}, {NationalID: "222"}}, nil)

			f.store.EXPECT().UpsertByNaturalKey(gomock.Any(), "b", gomock.Any()).Return(nil).Times(2).After(deactivate)

			o := f.orchestrator(t, WithConcurrency(concurrency))
			result, err := o.Run(context.Background(), "run-iso")
			require.NoError(t, err)

			require.Len(t, result.Tenants, 2)
			a, b := result.Tenants[0], result.Tenants[1]
			assert.Equal(t, "a", a.TenantID)
			assert.False(t, a.Succeeded)
			assert.Equal(t, StageFetch, a.Stage)
			assert.Contains(t, a.Error, "bad gateway")

			assert.Equal(t, "b", b.TenantID)
			assert.True(t, b.Succeeded)
			assert.Equal(t, RecordCounts{Fetched: 2, Upserted: 2}, b.Records)

			succeeded, failed := result.TenantCounts()
			assert.Equal(t, 1, succeeded)
			assert.Equal(t, 1, failed)
		})
	}
}

func TestRun_CredentialUnavailableSkipsTenant(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.creds.EXPECT().Prepare(gomock.Any()).Return(nil)
	f.store.EXPECT().DeactivateAllRemoteSourced(gomock.Any()).Return(int64(0), nil)
	f.store.EXPECT().FindEligibleTenants(gomock.Any()).Return([]membership.Tenant{tenantA, tenantB}, nil)

	f.creds.EXPECT().Token(gomock.Any(), tenantA).Return(nil, credentials.ErrCredentialUnavailable)
	f.creds.EXPECT().Token(gomock.Any(), tenantB).Return(token("tok-b"), nil)
	f.fetcher.EXPECT().FetchFullRoster(gomock.Any(), tenantB, gomock.Any()).Return(nil, nil)

	result, err := f.orchestrator(t).Run(context.Background(), "run")
	require.NoError(t, err)
	require.Len(t, result.Tenants, 2)
	assert.Equal(t, StageCredential, result.Tenants[0].Stage)
	assert.True(t, result.Tenants[1].Succeeded)
	assert.Zero(t, result.Tenants[1].Records.Fetched)
}

func TestRun_AuthenticationFailureInTenantLoopAborts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.creds.EXPECT().Prepare(gomock.Any()).Return(nil)
	f.store.EXPECT().DeactivateAllRemoteSourced(gomock.Any()).Return(int64(4), nil)
	f.store.EXPECT().FindEligibleTenants(gomock.Any()).Return([]membership.Tenant{tenantA, tenantB}, nil)

	loginErr := fmt.Errorf("%w: login rejected", credentials.ErrAuthenticationFailed)
	f.creds.EXPECT().Token(gomock.Any(), tenantA).Return(nil, loginErr)
	f.creds.EXPECT().Token(gomock.Any(), tenantB).Return(nil, loginErr).MaxTimes(1)
	f.fetcher.EXPECT().FetchFullRoster(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	o := f.orchestrator(t)
	result, err := o.Run(context.Background(), "run")
	require.Error(t, err)

	var runErr *Error
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, ReasonAuthenticationFailed, runErr.Reason)
	assert.ErrorIs(t, err, credentials.ErrAuthenticationFailed)
	assert.Equal(t, PhaseAborted, o.Phase())

	require.Len(t, result.Tenants, 2)
	assert.Equal(t, StageCredential, result.Tenants[0].Stage)
	assert.False(t, result.Tenants[1].Succeeded)
	assert.Contains(t, []string{StageCredential, StageCancelled}, result.Tenants[1].Stage)
}

func TestRun_RecordFailuresDoNotStopTenant(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.creds.EXPECT().Prepare(gomock.Any()).Return(nil)
	f.store.EXPECT().DeactivateAllRemoteSourced(gomock.Any()).Return(int64(0), nil)
	f.store.EXPECT().FindEligibleTenants(gomock.Any()).Return([]membership.Tenant{tenantA}, nil)
	f.creds.EXPECT().Token(gomock.Any(), tenantA).Return(token("tok-a"), nil)
	f.fetcher.EXPECT().FetchFullRoster(gomock.Any(), tenantA, gomock.Any()).Return([]membership.RawRecord{
		{NationalID: ""},                            // invalid: no key
		{NationalID: "1", BirthDate: "not-a-date"}, // ok, date dropped
		{NationalID: "2"},                           // duplicate email
		{NationalID: "3"},                           // storage hiccup
		{NationalID: "4"},                           // ok
	}, nil)

	keyIs := func(id string) gomock.Matcher {
		return gomock.Cond(func(x any) bool {
			rec, ok := x.(membership.Record)
			return ok && rec.NationalID == id
		})
	}
	f.store.EXPECT().UpsertByNaturalKey(gomock.Any(), "a", gomock.Cond(func(x any) bool {
		rec, ok := x.(membership.Record)
		return ok && rec.NationalID == "1" && rec.BirthDate == nil
	})).Return(nil)
	f.store.EXPECT().UpsertByNaturalKey(gomock.Any(), "a", keyIs("2")).Return(store.ErrDuplicateRecord)
	f.store.EXPECT().UpsertByNaturalKey(gomock.Any(), "a", keyIs("3")).Return(store.ErrStorageUnavailable)
	f.store.EXPECT().UpsertByNaturalKey(gomock.Any(), "a", keyIs("4")).Return(nil)

	result, err := f.orchestrator(t).Run(context.Background(), "run")
	require.NoError(t, err)
	require.Len(t, result.Tenants, 1)

	tr := result.Tenants[0]
	assert.True(t, tr.Succeeded)
	assert.Equal(t, RecordCounts{Fetched: 5, Upserted: 2, Duplicates: 1, Invalid: 1, Failed: 1}, tr.Records)
	assert.Equal(t, tr.Records, result.Records())
}

// slowFetcher tracks how many fetches overlap.
type slowFetcher struct {
	inflight atomic.Int32
	peak     atomic.Int32
}

func (f *slowFetcher) FetchFullRoster(context.Context, membership.Tenant, *oauth2.Token) ([]membership.RawRecord, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return nil, nil
}

func TestRun_BoundedConcurrency(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tenants := make([]membership.Tenant, 6)
	for i := range tenants {
		tenants[i] = membership.Tenant{ID: string(rune('a' + i)), Status: membership.StatusActive, RemotelySourced: true, RemoteToken: "t"}
	}
	f.creds.EXPECT().Prepare(gomock.Any()).Return(nil)
	f.store.EXPECT().DeactivateAllRemoteSourced(gomock.Any()).Return(int64(0), nil)
	f.store.EXPECT().FindEligibleTenants(gomock.Any()).Return(tenants, nil)
	f.creds.EXPECT().Token(gomock.Any(), gomock.Any()).Return(token("t"), nil).Times(len(tenants))

	fetcher := &slowFetcher{}
	o, err := New(Dependencies{
		Store:       f.store,
		Credentials: f.creds,
		Fetcher:     fetcher,
		Logger:      logging.New(logging.WithOutput(io.Discard)).Slog,
	}, WithConcurrency(2))
	require.NoError(t, err)

	result, err := o.Run(context.Background(), "run")
	require.NoError(t, err)
	assert.Len(t, result.Tenants, len(tenants))
	for i, tr := range result.Tenants {
		assert.Equal(t, tenants[i].ID, tr.TenantID)
	}
	assert.LessOrEqual(t, fetcher.peak.Load(), int32(2))
	assert.GreaterOrEqual(t, fetcher.peak.Load(), int32(1))
}

func TestRun_CancelledDuringTenantLoop(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t)
	f.creds.EXPECT().Prepare(gomock.Any()).Return(nil)
	f.store.EXPECT().DeactivateAllRemoteSourced(gomock.Any()).Return(int64(0), nil)
	f.store.EXPECT().FindEligibleTenants(gomock.Any()).Return([]membership.Tenant{tenantA, tenantB}, nil)
	f.creds.EXPECT().Token(gomock.Any(), tenantA).Return(token("tok-a"), nil)
	f.fetcher.EXPECT().FetchFullRoster(gomock.Any(), tenantA, gomock.Any()).
		DoAndReturn(func(context.Context, membership.Tenant, *oauth2.Token) ([]membership.RawRecord, error) {
			cancel()
			return []membership.RawRecord{{NationalID: "1"}}, nil
		})

	o := f.orchestrator(t)
	result, err := o.Run(ctx, "run")
	require.Error(t, err)

	var runErr *Error
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, ReasonCancelled, runErr.Reason)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, result.Tenants, 2)
	assert.Equal(t, StageCancelled, result.Tenants[0].Stage)
	assert.Equal(t, StageCancelled, result.Tenants[1].Stage)
	assert.Equal(t, PhaseAborted, o.Phase())
}

func TestRun_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	metrics, err := telemetry.NewReconcileMetrics(provider)
	require.NoError(t, err)

	f := newFixture(t)
	f.creds.EXPECT().Prepare(gomock.Any()).Return(nil)
	f.store.EXPECT().DeactivateAllRemoteSourced(gomock.Any()).Return(int64(4), nil)
	f.store.EXPECT().FindEligibleTenants(gomock.Any()).Return([]membership.Tenant{tenantA}, nil)
	f.creds.EXPECT().Token(gomock.Any(), tenantA).Return(token("tok-a"), nil)
	f.fetcher.EXPECT().FetchFullRoster(gomock.Any(), tenantA, gomock.Any()).
		Return([]membership.RawRecord{{NationalID: "1"}}, nil)
	f.store.EXPECT().UpsertByNaturalKey(gomock.Any(), "a", gomock.Any()).Return(nil)

	_, err = f.orchestrator(t, WithMetrics(metrics)).Run(context.Background(), "run")
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["roster_sync_run_duration_seconds"])
	assert.True(t, names["roster_sync_tenants_total"])
	assert.True(t, names["roster_sync_records_total"])
	assert.True(t, names["roster_sync_members_deactivated_total"])
}
