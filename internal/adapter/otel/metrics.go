package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "widgetdomains"

// Metrics holds the service's metric instruments.
type Metrics struct {
	Verifications       metric.Int64Counter
	CertificatesRequest metric.Int64Counter
	SSLRefreshes        metric.Int64Counter
	DNSLookupDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewMetricsWithMeter creates all metric instruments on meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.Verifications, err = meter.Int64Counter("widgetdomains.verifications",
		metric.WithDescription("DNS verification attempts by result"))
	if err != nil {
		return nil, err
	}

	m.CertificatesRequest, err = meter.Int64Counter("widgetdomains.certificates.requested",
		metric.WithDescription("Certificates requested from the certificate manager"))
	if err != nil {
		return nil, err
	}

	m.SSLRefreshes, err = meter.Int64Counter("widgetdomains.ssl.refreshes",
		metric.WithDescription("Certificate status refreshes by resulting status"))
	if err != nil {
		return nil, err
	}

	m.DNSLookupDuration, err = meter.Float64Histogram("widgetdomains.dns.lookup_duration_seconds",
		metric.WithDescription("CNAME lookup duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordVerification counts one verification with its result
// (verified, mismatch, not_found, temporary).
func (m *Metrics) RecordVerification(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.Verifications.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordCertificateRequested counts one certificate request.
func (m *Metrics) RecordCertificateRequested(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.CertificatesRequest.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordSSLRefresh counts one status refresh.
func (m *Metrics) RecordSSLRefresh(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.SSLRefreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordDNSLookup records how long a CNAME lookup took.
func (m *Metrics) RecordDNSLookup(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.DNSLookupDuration.Record(ctx, d.Seconds())
}
