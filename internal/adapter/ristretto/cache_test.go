package ristretto

import (
	"context"
	"testing"
	"time"
)

func TestCache_SetGetDelete(t *testing.T) {
	c, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "certstatus:abc", []byte(`{"status":"pending"}`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, found, err := c.Get(ctx, "certstatus:abc")
	if err != nil || !found {
		t.Fatalf("expected hit, got found=%v err=%v", found, err)
	}
	if string(val) != `{"status":"pending"}` {
		t.Fatalf("unexpected value %s", val)
	}

	if err := c.Delete(ctx, "certstatus:abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found, _ := c.Get(ctx, "certstatus:abc"); found {
		t.Fatal("expected miss after delete")
	}
}

func TestCache_Miss(t *testing.T) {
	c, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if _, found, err := c.Get(context.Background(), "absent"); found || err != nil {
		t.Fatalf("expected clean miss, got found=%v err=%v", found, err)
	}
}
