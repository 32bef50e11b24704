// Package reconcile drives reconciliation runs: it deactivates every
// remotely sourced member, then repopulates each eligible tenant from its
// remote roster with failures isolated per tenant and per record.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/memberhub/roster-sync/internal/clock"
	"github.com/memberhub/roster-sync/internal/credentials"
	"github.com/memberhub/roster-sync/internal/membership"
	"github.com/memberhub/roster-sync/internal/otel"
	"github.com/memberhub/roster-sync/internal/roster"
	"github.com/memberhub/roster-sync/internal/store"
	"github.com/memberhub/roster-sync/internal/telemetry"
)

// TracerName is the name of the orchestrator tracer.
const TracerName = "github.com/memberhub/roster-sync/reconcile"

// Runner executes reconciliation runs.
//
//go:generate mockgen -destination=mocks/mock_runner.go -package=mocks github.com/memberhub/roster-sync/internal/reconcile Runner
type Runner interface {
	// Run performs one full reconciliation pass identified by runID. A
	// blank runID is replaced with a fresh UUID. The returned error is an
	// *Error when the run aborted.
	Run(ctx context.Context, runID string) (*Result, error)
}

// Dependencies is the collaborator bundle the orchestrator is built from.
type Dependencies struct {
	Store       store.Store
	Credentials credentials.Provider
	Fetcher     roster.Fetcher
	Logger      *slog.Logger
	Clock       clock.Clock
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency bounds how many tenants are processed at once. Values
// below one mean sequential processing.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithTracer enables run and tenant spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithMetrics records every run on m.
func WithMetrics(m *telemetry.ReconcileMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator is the default Runner.
type Orchestrator struct {
	store   store.Store
	creds   credentials.Provider
	fetcher roster.Fetcher
	logger  *slog.Logger
	clock   clock.Clock

	concurrency int
	tracer      trace.Tracer
	metrics     *telemetry.ReconcileMetrics

	mu    sync.Mutex
	phase Phase
}

var _ Runner = (*Orchestrator)(nil)

// New creates an orchestrator. Store, Credentials and Fetcher are required.
func New(deps Dependencies, opts ...Option) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Credentials == nil {
		return nil, fmt.Errorf("credential provider is required")
	}
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("roster fetcher is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clock.NewSystem()
	}

	o := &Orchestrator{
		store:       deps.Store,
		creds:       deps.Credentials,
		fetcher:     deps.Fetcher,
		logger:      deps.Logger,
		clock:       deps.Clock,
		concurrency: 1,
		phase:       PhaseIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Phase returns the current phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Run implements Runner. Callers must not run it concurrently with itself;
// the scheduler guarantees that.
func (o *Orchestrator) Run(ctx context.Context, runID string) (_ *Result, retErr error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := o.logger.With("run_id", runID)

	ctx, span := otel.StartSpan(ctx, o.tracer, "reconcile.Run",
		trace.WithAttributes(otel.AttrRunID.String(runID)))
	defer func() {
		otel.RecordError(span, retErr)
		span.End()
	}()

	result := &Result{RunID: runID, StartedAt: o.clock.Now()}
	defer func() {
		result.FinishedAt = o.clock.Now()
		o.record(ctx, result)
		o.logSummary(logger, result)
	}()

	o.transition(logger, result, PhaseDeactivating)

	// Credentials are prepared before any member is deactivated.
	if err := o.creds.Prepare(ctx); err != nil {
		reason := ReasonCredentialsFailed
		if credentials.IsFatal(err) {
			reason = ReasonAuthenticationFailed
		}
		return result, o.abort(logger, result, reason, "failed to prepare credentials", err)
	}

	deactivated, err := o.store.DeactivateAllRemoteSourced(ctx)
	if err != nil {
		return result, o.abort(logger, result, ReasonDeactivateFailed, "failed to deactivate remotely sourced members", err)
	}
	result.Deactivated = deactivated
	logger.Info("Deactivated remotely sourced members", "count", deactivated)

	tenants, err := o.store.FindEligibleTenants(ctx)
	if err != nil {
		return result, o.abort(logger, result, ReasonEnumerateFailed, "failed to enumerate eligible tenants", err)
	}
	logger.Info("Found eligible tenants", "count", len(tenants))

	o.transition(logger, result, PhasePerTenantLoop)
	tenantResults, err := o.reconcileTenants(ctx, logger, tenants)
	result.Tenants = tenantResults
	if err != nil {
		return result, o.abort(logger, result, ReasonAuthenticationFailed, "credentials rejected during tenant loop", err)
	}

	if err := ctx.Err(); err != nil {
		return result, o.abort(logger, result, ReasonCancelled, "reconciliation run cancelled", err)
	}

	o.transition(logger, result, PhaseIdle)
	return result, nil
}

// reconcileTenants fans tenants out over a bounded pool. Results keep the
// order of tenants. A fatal credential error cancels the tenants not yet
// finished and is returned.
func (o *Orchestrator) reconcileTenants(
	ctx context.Context,
	logger *slog.Logger,
	tenants []membership.Tenant,
) ([]TenantResult, error) {
	results := make([]TenantResult, len(tenants))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, tenant := range tenants {
		g.Go(func() error {
			var err error
			results[i], err = o.reconcileTenant(gctx, logger, tenant)
			return err
		})
	}
	err := g.Wait()

	return results, err
}

func (o *Orchestrator) reconcileTenant(
	ctx context.Context,
	logger *slog.Logger,
	tenant membership.Tenant,
) (res TenantResult, fatal error) {
	start := o.clock.Now()
	res = TenantResult{TenantID: tenant.ID, TenantName: tenant.Name}
	logger = logger.With("tenant_id", tenant.ID, "tenant_name", tenant.Name)

	ctx, span := otel.StartSpan(ctx, o.tracer, "reconcile.Tenant",
		trace.WithAttributes(
			otel.AttrTenantID.String(tenant.ID),
			otel.AttrTenantName.String(tenant.Name),
		))
	defer func() {
		res.Duration = o.clock.Now().Sub(start)
		span.SetAttributes(otel.AttrResultCount.Int(res.Records.Upserted))
		span.End()
	}()

	fail := func(stage string, err error) TenantResult {
		otel.RecordError(span, err)
		logger.Error("Tenant reconciliation failed", "stage", stage, "error", err)
		res.Stage = stage
		res.Error = err.Error()
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(StageCancelled, err), nil
	}

	token, err := o.creds.Token(ctx, tenant)
	if err != nil {
		if credentials.IsFatal(err) {
			return fail(StageCredential, err), err
		}
		return fail(StageCredential, err), nil
	}

	raws, err := o.fetcher.FetchFullRoster(ctx, tenant, token)
	if err != nil {
		return fail(StageFetch, err), nil
	}
	res.Records.Fetched = len(raws)

	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return fail(StageCancelled, err), nil
		}
		o.upsert(ctx, logger, tenant.ID, raw, &res.Records)
	}

	res.Succeeded = true
	logger.Info("Tenant reconciled",
		"fetched", res.Records.Fetched,
		"upserted", res.Records.Upserted,
		"duplicates", res.Records.Duplicates,
		"invalid", res.Records.Invalid,
		"failed", res.Records.Failed)
	return res, nil
}

// upsert stores one record. Failures are counted and logged, never returned.
func (o *Orchestrator) upsert(
	ctx context.Context,
	logger *slog.Logger,
	tenantID string,
	raw membership.RawRecord,
	counts *RecordCounts,
) {
	rec, err := raw.Normalize()
	if err != nil {
		counts.Invalid++
		logger.Warn("Skipping invalid roster record",
			"national_id", membership.Digits(raw.NationalID),
			"error", err)
		return
	}

	if raw.BirthDateDropped(rec) {
		logger.Warn("Ignoring unparseable birth date",
			"national_id", rec.NationalID,
			"birth_date", raw.BirthDate)
	}

	err = o.store.UpsertByNaturalKey(ctx, tenantID, rec)
	switch {
	case err == nil:
		counts.Upserted++
		return
	case errors.Is(err, store.ErrDuplicateRecord):
		counts.Duplicates++
	case errors.Is(err, membership.ErrInvalidRecord):
		counts.Invalid++
	default:
		counts.Failed++
	}
	logger.Warn("Failed to upsert roster record",
		"national_id", rec.NationalID,
		"error", err)
}

func (o *Orchestrator) transition(logger *slog.Logger, result *Result, to Phase) {
	o.mu.Lock()
	from := o.phase
	o.phase = to
	o.mu.Unlock()

	result.Phase = to
	logger.Info("Reconciliation phase transition", "from", from, "to", to)
}

func (o *Orchestrator) abort(logger *slog.Logger, result *Result, reason, msg string, err error) error {
	from := o.Phase()
	o.transition(logger, result, PhaseAborted)
	logger.Error("Reconciliation run aborted", "reason", reason, "error", err)
	return &Error{
		Err:     err,
		Message: fmt.Sprintf("%s: %v", msg, err),
		Phase:   from,
		Reason:  reason,
	}
}

func (o *Orchestrator) record(ctx context.Context, result *Result) {
	succeeded, failed := result.TenantCounts()
	records := result.Records()
	outcome := ResultCompleted
	if result.Aborted() {
		outcome = ResultAborted
	}
	o.metrics.RecordRun(context.WithoutCancel(ctx), telemetry.RunMetrics{
		Duration:         result.Duration(),
		Result:           outcome,
		Deactivated:      result.Deactivated,
		TenantsSucceeded: succeeded,
		TenantsFailed:    failed,
		Upserted:         records.Upserted,
		Duplicates:       records.Duplicates,
		Invalid:          records.Invalid,
		Failed:           records.Failed,
	})
}

func (*Orchestrator) logSummary(logger *slog.Logger, result *Result) {
	succeeded, failed := result.TenantCounts()
	records := result.Records()
	logger.Info("Reconciliation run finished",
		"phase", result.Phase,
		"duration", result.Duration(),
		"deactivated", result.Deactivated,
		"tenants_succeeded", succeeded,
		"tenants_failed", failed,
		"records_fetched", records.Fetched,
		"records_upserted", records.Upserted,
		"records_duplicate", records.Duplicates,
		"records_invalid", records.Invalid,
		"records_failed", records.Failed)
}
