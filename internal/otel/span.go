// Package otel provides span helpers shared by the reconciliation packages.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys recorded on reconciliation spans.
const (
	AttrRunID       = attribute.Key("reconcile.run_id")
	AttrTrigger     = attribute.Key("reconcile.trigger")
	AttrTenantID    = attribute.Key("tenant.id")
	AttrTenantName  = attribute.Key("tenant.name")
	AttrPagination  = attribute.Key("roster.pagination")
	AttrPagePos     = attribute.Key("roster.page_position")
	AttrPageSize    = attribute.Key("roster.page_size")
	AttrResultCount = attribute.Key("result.count")
)

// StartSpan starts a span on tracer, or returns the span already in ctx
// when tracer is nil.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError marks span as failed. The status text stays generic; the
// error itself is attached as an event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
