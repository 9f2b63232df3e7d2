package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/qbsru/widgetdomains/internal/config"
)

func TestNew(t *testing.T) {
	cfg := config.Logging{Level: "debug", Service: "test-svc"}
	l, closer := New(cfg)
	defer closer.Close()
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewAsync(t *testing.T) {
	cfg := config.Logging{Level: "debug", Service: "test-svc", Async: true}
	l, closer := New(cfg)
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	closer.Close()
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input).String()
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	l, closer := newWithWriter(config.Logging{Level: "info", Service: "widgetdomains"}, &buf)
	defer closer.Close()

	ctx := WithWorkspaceID(WithRequestID(context.Background(), "req-9"), "ws-1")
	l.InfoContext(ctx, "domain registered", "domain", "careers.acme.com")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if rec["service"] != "widgetdomains" {
		t.Errorf("expected service attribute, got %v", rec["service"])
	}
	if rec["request_id"] != "req-9" {
		t.Errorf("expected request_id req-9, got %v", rec["request_id"])
	}
	if rec["workspace_id"] != "ws-1" {
		t.Errorf("expected workspace_id ws-1, got %v", rec["workspace_id"])
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()

	if got := RequestID(ctx); got != "" {
		t.Errorf("expected empty request ID, got %q", got)
	}
	if got := WorkspaceID(ctx); got != "" {
		t.Errorf("expected empty workspace ID, got %q", got)
	}

	ctx = WithRequestID(ctx, "req-123")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("expected req-123, got %q", got)
	}
}
