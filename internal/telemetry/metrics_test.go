package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewReconcileMetrics(t *testing.T) {
	t.Parallel()

	t.Run("returns nil when provider is nil", func(t *testing.T) {
		t.Parallel()

		metrics, err := NewReconcileMetrics(nil)
		require.NoError(t, err)
		assert.Nil(t, metrics)
	})

	t.Run("nil metrics are a no-op", func(t *testing.T) {
		t.Parallel()

		var metrics *ReconcileMetrics
		metrics.RecordRun(context.Background(), RunMetrics{Upserted: 1})
	})
}

func TestReconcileMetrics_RecordRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(ctx) }()

	metrics, err := NewReconcileMetrics(mp)
	require.NoError(t, err)

	metrics.RecordRun(ctx, RunMetrics{
		Duration:         90 * time.Second,
		Result:           "success",
		Deactivated:      12,
		TenantsSucceeded: 3,
		TenantsFailed:    1,
		Upserted:         40,
		Duplicates:       2,
		Failed:           1,
	})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	byName := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		if scope.Scope.Name != ReconcileMetricsMeterName {
			continue
		}
		for _, m := range scope.Metrics {
			byName[m.Name] = m
		}
	}

	require.Contains(t, byName, "roster_sync_run_duration_seconds")
	hist, ok := byName["roster_sync_run_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 90.0, hist.DataPoints[0].Sum, 0.001)

	deactivated, ok := byName["roster_sync_members_deactivated_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, deactivated.DataPoints, 1)
	assert.Equal(t, int64(12), deactivated.DataPoints[0].Value)

	tenants, ok := byName["roster_sync_tenants_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	counts := map[string]int64{}
	for _, dp := range tenants.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("outcome"))
		counts[v.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{OutcomeSucceeded: 3, OutcomeFailed: 1}, counts)

	records, ok := byName["roster_sync_records_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	counts = map[string]int64{}
	for _, dp := range records.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("result"))
		counts[v.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{RecordUpserted: 40, RecordDuplicate: 2, RecordFailed: 1}, counts)
}
