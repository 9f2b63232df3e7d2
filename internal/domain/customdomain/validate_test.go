package customdomain

import (
	"strings"
	"testing"
)

func TestIsValidDomain(t *testing.T) {
	tests := []struct {
		domain string
		want   bool
	}{
		{"example.com", true},
		{"sub.example.com", true},
		{"careers.acme.com", true},
		{"a-b.example.co", true},
		{"xn--80ak6aa92e.com", true},
		{"-bad.com", false},
		{"bad-.com", false},
		{"no dot", false},
		{"nodot", false},
		{"a..b.com", false},
		{"example.c", false},
		{"example.c0m", false},
		{"exa_mple.com", false},
		{"", false},
		{strings.Repeat("a", 64) + ".com", false},
		{strings.Repeat("a", 63) + ".com", true},
		{strings.Repeat("abcdefghi.", 26) + "com", false},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			if got := IsValidDomain(tt.domain); got != tt.want {
				t.Errorf("IsValidDomain(%q) = %v, want %v", tt.domain, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"  Careers.ACME.com ": "careers.acme.com",
		"example.com.":        "example.com",
		"EXAMPLE.COM":         "example.com",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordName(t *testing.T) {
	tests := []struct {
		domain string
		want   string
	}{
		{"example.com", "@"},
		{"careers.acme.com", "careers"},
		{"jobs.eu.acme.com", "jobs"},
	}
	for _, tt := range tests {
		if got := RecordName(tt.domain); got != tt.want {
			t.Errorf("RecordName(%q) = %q, want %q", tt.domain, got, tt.want)
		}
	}
}

func TestEqualHostnames(t *testing.T) {
	if !EqualHostnames("Widget.HH.QBS.RU.", "widget.hh.qbs.ru") {
		t.Error("expected case and trailing dot to be ignored")
	}
	if EqualHostnames("widget.hh.qbs.ru", "other.hh.qbs.ru") {
		t.Error("expected different hosts to differ")
	}
}

func TestConfigDerivedState(t *testing.T) {
	errMsg := "CNAME record not found"
	certID := "cert-1"

	unverified := &Config{SSLStatus: SSLActive, SSLCertificateID: &certID}
	if unverified.Ready() {
		t.Error("unverified domain must not be ready")
	}
	if got := unverified.EffectiveSSLStatus(); got != SSLPending {
		t.Errorf("expected pending SSL for unverified domain, got %s", got)
	}
	if got := unverified.DNSStatus(); got != DNSPending {
		t.Errorf("expected pending DNS, got %s", got)
	}

	failed := &Config{VerificationError: &errMsg, SSLStatus: SSLPending}
	if got := failed.DNSStatus(); got != DNSError {
		t.Errorf("expected error DNS, got %s", got)
	}

	verified := &Config{Verified: true, SSLStatus: SSLPending}
	if verified.Ready() {
		t.Error("pending certificate must not be ready")
	}
	verified.SSLStatus = SSLActive
	if !verified.Ready() {
		t.Error("verified domain with active certificate must be ready")
	}
	if got := verified.DNSStatus(); got != DNSVerified {
		t.Errorf("expected verified DNS, got %s", got)
	}
}
