package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "widgetdomains"

// StartDomainSpan starts a span for a registry operation on one domain
// record. domainID may be empty for operations keyed by name.
func StartDomainSpan(ctx context.Context, op, workspaceID, domainID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("workspace.id", workspaceID)}
	if domainID != "" {
		attrs = append(attrs, attribute.String("domain.id", domainID))
	}
	return otel.Tracer(tracerName).Start(ctx, "registry."+op, trace.WithAttributes(attrs...))
}

// StartDNSSpan starts a span for a CNAME lookup.
func StartDNSSpan(ctx context.Context, domain string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dns.lookup_cname",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("dns.question.name", domain)),
	)
}

// StartCertManagerSpan starts a span for a certificate manager call.
func StartCertManagerSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "certmanager."+op,
		trace.WithSpanKind(trace.SpanKindClient))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
