package acme

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	wdnats "github.com/qbsru/widgetdomains/internal/adapter/nats"
	"github.com/qbsru/widgetdomains/internal/config"
	"github.com/qbsru/widgetdomains/internal/port/certmanager"
)

// testOrderStore runs the revision contract every OrderStore honors.
func testOrderStore(t *testing.T, s OrderStore) {
	t.Helper()
	ctx := context.Background()
	o := &Order{ID: uuid.NewString(), Domain: "careers.acme.com", State: StateValidating, CreatedAt: time.Now().UTC()}

	if err := s.Create(ctx, o); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, o); !errors.Is(err, ErrOrderChanged) {
		t.Fatalf("expected ErrOrderChanged on duplicate create, got %v", err)
	}

	got, rev, err := s.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Domain != o.Domain || got.State != StateValidating {
		t.Fatalf("unexpected order %+v", got)
	}

	o.State = StateIssued
	next, err := s.Update(ctx, o, rev)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := s.Update(ctx, o, rev); !errors.Is(err, ErrOrderChanged) {
		t.Fatalf("expected ErrOrderChanged for a stale update, got %v", err)
	}
	if err := s.Delete(ctx, o.ID, rev); !errors.Is(err, ErrOrderChanged) {
		t.Fatalf("expected ErrOrderChanged for a stale delete, got %v", err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	found := false
	for _, l := range list {
		found = found || (l.ID == o.ID && l.State == StateIssued)
	}
	if !found {
		t.Fatalf("expected issued order in list, got %+v", list)
	}

	if err := s.Delete(ctx, o.ID, next); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Update(ctx, o, next); !errors.Is(err, ErrOrderChanged) {
		t.Fatalf("expected ErrOrderChanged updating a deleted order, got %v", err)
	}
	if _, _, err := s.Get(ctx, o.ID); !errors.Is(err, certmanager.ErrCertificateNotFound) {
		t.Fatalf("expected ErrCertificateNotFound, got %v", err)
	}
}

func TestMemoryOrderStore(t *testing.T) {
	testOrderStore(t, NewMemoryOrderStore())
}

func TestKVOrderStore(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}
	ctx := context.Background()

	cfg := config.Defaults().NATS
	cfg.URL = url
	cfg.AuditStream = "WIDGETDOMAINS_AUDIT_TEST"
	q, err := wdnats.Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })

	kv, err := q.KeyValue(ctx, "test-acme-orders", 0)
	if err != nil {
		t.Fatalf("KeyValue: %v", err)
	}
	testOrderStore(t, NewKVOrderStore(kv))
}
