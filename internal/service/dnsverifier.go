package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	wdotel "github.com/qbsru/widgetdomains/internal/adapter/otel"
	"github.com/qbsru/widgetdomains/internal/domain/customdomain"
	"github.com/qbsru/widgetdomains/internal/port/dnsresolver"
)

// InstructionsTTL is the TTL suggested to users for the CNAME record.
const InstructionsTTL = 3600

// FailureKind classifies a negative verification result.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureNotFound  FailureKind = "not_found"
	FailureMismatch  FailureKind = "mismatch"
	FailureTemporary FailureKind = "temporary"
)

// VerificationResult is the outcome of one DNS check. A temporary failure is
// still a negative result; Kind tells the caller not to treat it as final.
type VerificationResult struct {
	Verified      bool                         `json:"verified"`
	FoundCNAME    *string                      `json:"found_cname"`
	ExpectedCNAME string                       `json:"expected_cname"`
	Error         string                       `json:"error,omitempty"`
	Kind          FailureKind                  `json:"kind,omitempty"`
	Instructions  customdomain.DNSInstructions `json:"instructions"`
}

// DNSVerifier checks that a domain delegates to the platform through a CNAME
// record. It holds no state besides its resolver.
type DNSVerifier struct {
	resolver dnsresolver.Resolver
	metrics  *wdotel.Metrics
	now      func() time.Time
}

// NewDNSVerifier creates a DNSVerifier. metrics may be nil.
func NewDNSVerifier(resolver dnsresolver.Resolver, metrics *wdotel.Metrics) *DNSVerifier {
	return &DNSVerifier{resolver: resolver, metrics: metrics, now: time.Now}
}

// Verify resolves the CNAME records of domain and compares the first one
// against expected, ignoring case and a trailing root dot.
func (v *DNSVerifier) Verify(ctx context.Context, domain, expected string) VerificationResult {
	res := VerificationResult{
		ExpectedCNAME: expected,
		Instructions:  GenerateDNSInstructions(domain, expected),
	}

	ctx, span := wdotel.StartDNSSpan(ctx, domain)
	start := v.now()
	targets, err := v.resolver.LookupCNAME(ctx, domain)
	v.metrics.RecordDNSLookup(ctx, v.now().Sub(start))
	wdotel.EndSpan(span, err)

	switch {
	case err != nil && errors.Is(err, dnsresolver.ErrTemporary):
		res.Kind = FailureTemporary
		res.Error = "DNS lookup failed temporarily. Please try again in a few minutes."
	case err != nil || len(targets) == 0:
		if err != nil && !errors.Is(err, dnsresolver.ErrNoRecords) {
			slog.WarnContext(ctx, "unclassified dns error", "domain", domain, "error", err)
		}
		res.Kind = FailureNotFound
		res.Error = fmt.Sprintf("No CNAME record found for %s. Add a CNAME record named %q pointing to %s.",
			domain, res.Instructions.Name, expected)
	default:
		found := customdomain.Normalize(targets[0])
		res.FoundCNAME = &found
		if customdomain.EqualHostnames(found, expected) {
			res.Verified = true
		} else {
			res.Kind = FailureMismatch
			res.Error = fmt.Sprintf("CNAME record for %s points to %s, expected %s.", domain, found, expected)
		}
	}

	result := "verified"
	if !res.Verified {
		result = string(res.Kind)
	}
	v.metrics.RecordVerification(ctx, result)
	slog.DebugContext(ctx, "dns verification", "domain", domain, "result", result)

	return res
}

// GenerateDNSInstructions describes the record a user must create so that
// domain delegates to target.
func GenerateDNSInstructions(domain, target string) customdomain.DNSInstructions {
	name := customdomain.RecordName(domain)
	return customdomain.DNSInstructions{
		RecordType: "CNAME",
		Name:       name,
		Value:      target,
		TTL:        InstructionsTTL,
		Text: fmt.Sprintf("At your DNS provider, create a CNAME record with name %q and value %q (TTL %d).",
			name, target, InstructionsTTL),
	}
}
