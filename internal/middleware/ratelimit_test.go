package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/qbsru/widgetdomains/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(h http.Handler, remote, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = remote
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterAllowsBurst(t *testing.T) {
	handler := NewRateLimiter(config.Rate{RequestsPerSecond: 10, Burst: 10}).Handler(okHandler())

	for i := range 10 {
		if rec := doRequest(handler, "192.168.1.1:5000", ""); rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimiterRejectsOverLimit(t *testing.T) {
	handler := NewRateLimiter(config.Rate{RequestsPerSecond: 10, Burst: 5}).Handler(okHandler())

	for range 5 {
		doRequest(handler, "192.168.1.1:5000", "")
	}
	rec := doRequest(handler, "192.168.1.1:5000", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if body := rec.Body.String(); body == "" || rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected JSON error body, got %q", body)
	}
}

func TestRateLimiterKeysByUser(t *testing.T) {
	handler := NewRateLimiter(config.Rate{RequestsPerSecond: 10, Burst: 2}).Handler(okHandler())

	for range 2 {
		doRequest(handler, "10.0.0.1:1", "user-a")
	}
	if rec := doRequest(handler, "10.0.0.1:1", "user-a"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("user-a: expected 429, got %d", rec.Code)
	}
	// Same IP, different user.
	if rec := doRequest(handler, "10.0.0.1:1", "user-b"); rec.Code != http.StatusOK {
		t.Errorf("user-b: expected 200, got %d", rec.Code)
	}
	if rec := doRequest(handler, "10.0.0.2:1", ""); rec.Code != http.StatusOK {
		t.Errorf("anonymous IP: expected 200, got %d", rec.Code)
	}
}

func TestRateLimiterRefillAndCleanup(t *testing.T) {
	rl := NewRateLimiter(config.Rate{RequestsPerSecond: 1, Burst: 1})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if _, _, ok := rl.allow("k"); !ok {
		t.Fatal("expected first request allowed")
	}
	if _, _, ok := rl.allow("k"); ok {
		t.Fatal("expected second request rejected")
	}
	now = now.Add(time.Second)
	if _, _, ok := rl.allow("k"); !ok {
		t.Fatal("expected request allowed after refill")
	}

	now = now.Add(time.Hour)
	rl.cleanup(time.Minute)
	if rl.Len() != 0 {
		t.Fatalf("expected idle bucket removed, got %d", rl.Len())
	}
}
