package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ReconcileMetricsMeterName is the instrumentation scope of run metrics.
const ReconcileMetricsMeterName = "github.com/memberhub/roster-sync/reconcile"

// Tenant outcome attribute values.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// Record result attribute values.
const (
	RecordUpserted  = "upserted"
	RecordDuplicate = "duplicate"
	RecordInvalid   = "invalid"
	RecordFailed    = "failed"
)

// ReconcileMetrics holds the instruments recorded once per reconciliation run.
type ReconcileMetrics struct {
	runDuration        metric.Float64Histogram
	tenantsTotal       metric.Int64Counter
	recordsTotal       metric.Int64Counter
	membersDeactivated metric.Int64Counter
}

// RunMetrics is the subset of a run outcome recorded as metrics.
type RunMetrics struct {
	Duration         time.Duration
	Result           string
	Deactivated      int64
	TenantsSucceeded int
	TenantsFailed    int
	Upserted         int
	Duplicates       int
	Invalid          int
	Failed           int
}

// NewReconcileMetrics creates the run instruments. A nil provider yields
// nil metrics whose methods are no-ops.
func NewReconcileMetrics(provider metric.MeterProvider) (*ReconcileMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(ReconcileMetricsMeterName)

	runDuration, err := meter.Float64Histogram(
		"roster_sync_run_duration_seconds",
		metric.WithDescription("Duration of reconciliation runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600),
	)
	if err != nil {
		return nil, err
	}

	tenantsTotal, err := meter.Int64Counter(
		"roster_sync_tenants_total",
		metric.WithDescription("Tenants processed by reconciliation runs"),
		metric.WithUnit("{tenant}"),
	)
	if err != nil {
		return nil, err
	}

	recordsTotal, err := meter.Int64Counter(
		"roster_sync_records_total",
		metric.WithDescription("Roster records processed by reconciliation runs"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	membersDeactivated, err := meter.Int64Counter(
		"roster_sync_members_deactivated_total",
		metric.WithDescription("Remotely sourced members deactivated before repopulation"),
		metric.WithUnit("{member}"),
	)
	if err != nil {
		return nil, err
	}

	return &ReconcileMetrics{
		runDuration:        runDuration,
		tenantsTotal:       tenantsTotal,
		recordsTotal:       recordsTotal,
		membersDeactivated: membersDeactivated,
	}, nil
}

// RecordRun records the outcome of one reconciliation run.
func (m *ReconcileMetrics) RecordRun(ctx context.Context, run RunMetrics) {
	if m == nil {
		return
	}

	m.runDuration.Record(ctx, run.Duration.Seconds(),
		metric.WithAttributes(attribute.String("result", run.Result)))
	m.membersDeactivated.Add(ctx, run.Deactivated)

	m.addTenants(ctx, OutcomeSucceeded, run.TenantsSucceeded)
	m.addTenants(ctx, OutcomeFailed, run.TenantsFailed)

	m.addRecords(ctx, RecordUpserted, run.Upserted)
	m.addRecords(ctx, RecordDuplicate, run.Duplicates)
	m.addRecords(ctx, RecordInvalid, run.Invalid)
	m.addRecords(ctx, RecordFailed, run.Failed)
}

func (m *ReconcileMetrics) addTenants(ctx context.Context, outcome string, n int) {
	if n > 0 {
		m.tenantsTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (m *ReconcileMetrics) addRecords(ctx context.Context, result string, n int) {
	if n > 0 {
		m.recordsTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String("result", result)))
	}
}
