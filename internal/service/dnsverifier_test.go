package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/qbsru/widgetdomains/internal/port/dnsresolver"
)

func TestVerify_MatchIgnoresCaseAndTrailingDot(t *testing.T) {
	r := &fakeResolver{targets: []string{"Widget.HH.QBS.RU."}}
	v := NewDNSVerifier(r, nil)

	res := v.Verify(context.Background(), "careers.acme.com", testTarget)
	if !res.Verified {
		t.Fatalf("expected verified, got %+v", res)
	}
	if res.FoundCNAME == nil || *res.FoundCNAME != testTarget {
		t.Fatalf("expected normalized found cname, got %v", res.FoundCNAME)
	}
	if res.Kind != FailureNone || res.Error != "" {
		t.Fatalf("expected no failure, got kind=%q error=%q", res.Kind, res.Error)
	}
}

func TestVerify_UsesFirstRecord(t *testing.T) {
	r := &fakeResolver{targets: []string{"other.example.net", testTarget}}
	res := NewDNSVerifier(r, nil).Verify(context.Background(), "careers.acme.com", testTarget)
	if res.Verified {
		t.Fatal("expected only the first record to be compared")
	}
	if res.Kind != FailureMismatch {
		t.Fatalf("expected mismatch, got %q", res.Kind)
	}
	if res.FoundCNAME == nil || *res.FoundCNAME != "other.example.net" {
		t.Fatalf("expected found cname other.example.net, got %v", res.FoundCNAME)
	}
	if !strings.Contains(res.Error, "other.example.net") || !strings.Contains(res.Error, testTarget) {
		t.Fatalf("expected both values in message, got %q", res.Error)
	}
}

func TestVerify_NoRecords(t *testing.T) {
	r := &fakeResolver{}
	res := NewDNSVerifier(r, nil).Verify(context.Background(), "careers.acme.com", testTarget)
	if res.Verified || res.FoundCNAME != nil {
		t.Fatalf("expected negative result without found cname, got %+v", res)
	}
	if res.Kind != FailureNotFound {
		t.Fatalf("expected not_found, got %q", res.Kind)
	}
	if !strings.Contains(res.Error, `"careers"`) {
		t.Fatalf("expected message to name the missing record, got %q", res.Error)
	}
}

func TestVerify_TemporaryFailure(t *testing.T) {
	r := &fakeResolver{err: fmt.Errorf("lookup careers.acme.com: %w", dnsresolver.ErrTemporary)}
	res := NewDNSVerifier(r, nil).Verify(context.Background(), "careers.acme.com", testTarget)
	if res.Verified {
		t.Fatal("expected negative result")
	}
	if res.Kind != FailureTemporary {
		t.Fatalf("expected temporary, got %q", res.Kind)
	}
	if !strings.Contains(res.Error, "try again") {
		t.Fatalf("expected retry hint, got %q", res.Error)
	}
}

func TestVerify_UnclassifiedErrorIsNotFound(t *testing.T) {
	r := &fakeResolver{err: fmt.Errorf("weird")}
	res := NewDNSVerifier(r, nil).Verify(context.Background(), "careers.acme.com", testTarget)
	if res.Kind != FailureNotFound {
		t.Fatalf("expected not_found, got %q", res.Kind)
	}
}

func TestGenerateDNSInstructions(t *testing.T) {
	tests := []struct {
		domain string
		name   string
	}{
		{"acme.com", "@"},
		{"careers.acme.com", "careers"},
		{"jobs.eu.acme.com", "jobs"},
	}
	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			in := GenerateDNSInstructions(tt.domain, testTarget)
			if in.Name != tt.name {
				t.Errorf("name = %q, want %q", in.Name, tt.name)
			}
			if in.RecordType != "CNAME" || in.Value != testTarget || in.TTL != InstructionsTTL {
				t.Errorf("unexpected instructions %+v", in)
			}
			if in.Text == "" {
				t.Error("expected human-readable text")
			}
		})
	}
}
