package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	wdotel "github.com/qbsru/widgetdomains/internal/adapter/otel"
	"github.com/qbsru/widgetdomains/internal/domain/customdomain"
	"github.com/qbsru/widgetdomains/internal/port/cache"
	"github.com/qbsru/widgetdomains/internal/port/certmanager"
	"github.com/qbsru/widgetdomains/internal/resilience"
)

// DefaultRenewalWindow is how long before expiry a certificate is flagged.
const DefaultRenewalWindow = 30 * 24 * time.Hour

const statusCachePrefix = "ssl-status:"

// statusCallTimeout bounds one shared provider status call. The call is
// detached from its first caller, so it needs its own deadline.
const statusCallTimeout = 30 * time.Second

// ProvisionResult is returned by ProvisionSSL. Issuance is asynchronous, so a
// successful result is always pending.
type ProvisionResult struct {
	Success       bool                   `json:"success"`
	Status        customdomain.SSLStatus `json:"status"`
	CertificateID string                 `json:"certificate_id,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

// SSLStatusResult is the normalized view of one certificate.
type SSLStatusResult struct {
	Status         customdomain.SSLStatus `json:"status"`
	ProviderStatus string                 `json:"provider_status"`
	ExpiresAt      *time.Time             `json:"expires_at,omitempty"`
	NeedsRenewal   bool                   `json:"needs_renewal"`

	ValidationRecords []customdomain.ValidationRecord `json:"validation_records,omitempty"`
}

var providerStatuses = map[string]customdomain.SSLStatus{
	"issued":               customdomain.SSLActive,
	"validating":           customdomain.SSLPending,
	"pending":              customdomain.SSLPending,
	"pending_validation":   customdomain.SSLPending,
	"renewing":             customdomain.SSLPending,
	"expired":              customdomain.SSLExpired,
	"invalid":              customdomain.SSLError,
	"revoked":              customdomain.SSLError,
	"failed":               customdomain.SSLError,
	"validation_timed_out": customdomain.SSLError,
	"renewal_failed":       customdomain.SSLError,
	"inactive":             customdomain.SSLError,
}

// MapProviderStatus normalizes a provider status. Unknown values map to
// pending so vocabulary drift reads as "still working".
func MapProviderStatus(providerStatus string) customdomain.SSLStatus {
	key := strings.ToLower(strings.TrimSpace(providerStatus))
	if s, ok := providerStatuses[key]; ok {
		return s
	}
	return customdomain.SSLPending
}

// NeedsRenewal reports whether expiresAt falls within window of now.
func NeedsRenewal(expiresAt *time.Time, now time.Time, window time.Duration) bool {
	if expiresAt == nil {
		return false
	}
	return expiresAt.Sub(now) <= window
}

// SSLProvisioner wraps a certificate manager client. It never touches domain
// storage.
type SSLProvisioner struct {
	client        certmanager.Client
	breaker       *resilience.Breaker
	cache         cache.Cache
	cacheTTL      time.Duration
	renewalWindow time.Duration
	metrics       *wdotel.Metrics
	group         singleflight.Group
	now           func() time.Time
}

// NewSSLProvisioner creates an SSLProvisioner. breaker may be nil.
func NewSSLProvisioner(client certmanager.Client, breaker *resilience.Breaker) *SSLProvisioner {
	return &SSLProvisioner{
		client:        client,
		breaker:       breaker,
		renewalWindow: DefaultRenewalWindow,
		now:           time.Now,
	}
}

// SetCache enables status snapshot caching. A zero ttl disables it.
func (p *SSLProvisioner) SetCache(c cache.Cache, ttl time.Duration) {
	p.cache = c
	p.cacheTTL = ttl
}

// SetRenewalWindow overrides DefaultRenewalWindow.
func (p *SSLProvisioner) SetRenewalWindow(d time.Duration) {
	if d > 0 {
		p.renewalWindow = d
	}
}

// SetMetrics sets the metric instruments.
func (p *SSLProvisioner) SetMetrics(m *wdotel.Metrics) { p.metrics = m }

// RenewalWindow returns the configured renewal warning window.
func (p *SSLProvisioner) RenewalWindow() time.Duration { return p.renewalWindow }

func (p *SSLProvisioner) call(fn func() error) error {
	if p.breaker == nil {
		return fn()
	}
	return p.breaker.Execute(fn)
}

// ProvisionSSL requests a certificate for domain. It does not wait for
// issuance; provider failures come back as an unsuccessful result.
func (p *SSLProvisioner) ProvisionSSL(ctx context.Context, domain string) ProvisionResult {
	ctx, span := wdotel.StartCertManagerSpan(ctx, "request")
	var id string
	err := p.call(func() error {
		var err error
		id, err = p.client.RequestCertificate(ctx, domain)
		return err
	})
	wdotel.EndSpan(span, err)
	p.metrics.RecordCertificateRequested(ctx, err == nil)

	if err != nil {
		slog.ErrorContext(ctx, "certificate request failed", "domain", domain, "error", err)
		return ProvisionResult{
			Status: customdomain.SSLError,
			Error:  fmt.Sprintf("Certificate request failed: %v", err),
		}
	}

	slog.InfoContext(ctx, "certificate requested", "domain", domain, "certificate_id", id)
	return ProvisionResult{Success: true, Status: customdomain.SSLPending, CertificateID: id}
}

// CheckSSLStatus polls the provider for certificateID. Concurrent checks of
// the same certificate share one provider call.
func (p *SSLProvisioner) CheckSSLStatus(ctx context.Context, certificateID string) (*SSLStatusResult, error) {
	snap, err := p.snapshot(ctx, certificateID)
	if err != nil {
		return nil, err
	}
	res := &SSLStatusResult{
		Status:         MapProviderStatus(snap.ProviderStatus),
		ProviderStatus: snap.ProviderStatus,
		ExpiresAt:      snap.ExpiresAt,
		NeedsRenewal:   NeedsRenewal(snap.ExpiresAt, p.now(), p.renewalWindow),
	}
	for _, r := range snap.ValidationRecords {
		res.ValidationRecords = append(res.ValidationRecords, customdomain.ValidationRecord(r))
	}
	return res, nil
}

func (p *SSLProvisioner) snapshot(ctx context.Context, certificateID string) (*certmanager.Status, error) {
	key := statusCachePrefix + certificateID
	if p.cache != nil && p.cacheTTL > 0 {
		if s, ok, err := cache.GetJSON[certmanager.Status](ctx, p.cache, key); err == nil && ok {
			return s, nil
		}
	}

	v, err, _ := p.group.Do(certificateID, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusCallTimeout)
		defer cancel()
		ctx, span := wdotel.StartCertManagerSpan(ctx, "status")
		var st *certmanager.Status
		err := p.call(func() error {
			var err error
			st, err = p.client.GetCertificateStatus(ctx, certificateID)
			return err
		})
		wdotel.EndSpan(span, err)
		if err != nil {
			return nil, err
		}
		if p.cache != nil && p.cacheTTL > 0 {
			if cerr := cache.SetJSON(ctx, p.cache, key, st, p.cacheTTL); cerr != nil {
				slog.WarnContext(ctx, "cache certificate status", "certificate_id", certificateID, "error", cerr)
			}
		}
		return st, nil
	})
	if err != nil {
		return nil, fmt.Errorf("certificate status %s: %w", certificateID, err)
	}
	return v.(*certmanager.Status), nil
}

// DeleteSSL deletes certificateID at the provider. Failures are logged and
// returned as SSL_PROVISION_FAILED; callers treat them as non-fatal.
func (p *SSLProvisioner) DeleteSSL(ctx context.Context, certificateID string) error {
	ctx, span := wdotel.StartCertManagerSpan(ctx, "delete")
	err := p.call(func() error {
		return p.client.DeleteCertificate(ctx, certificateID)
	})
	wdotel.EndSpan(span, err)

	if p.cache != nil {
		_ = p.cache.Delete(ctx, statusCachePrefix+certificateID)
	}

	if err != nil {
		slog.WarnContext(ctx, "certificate delete failed", "certificate_id", certificateID, "error", err)
		return customdomain.Wrap(customdomain.CodeSSLProvisionFailed, "Could not delete the certificate", err)
	}
	return nil
}

// isProviderFailure keeps "no such certificate" answers from tripping the
// breaker.
func isProviderFailure(err error) bool {
	return !errors.Is(err, certmanager.ErrCertificateNotFound)
}

// NewCertManagerBreaker returns a breaker tuned for certificate manager calls.
func NewCertManagerBreaker(maxFailures int, timeout time.Duration) *resilience.Breaker {
	return resilience.NewBreaker(maxFailures, timeout).WithFailurePredicate(isProviderFailure)
}
