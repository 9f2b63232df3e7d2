// Package tiered layers an in-process cache over a shared one.
package tiered

import (
	"context"
	"log/slog"
	"time"

	"github.com/qbsru/widgetdomains/internal/port/cache"
)

// Cache reads the local level first and falls back to the shared level,
// copying shared hits into the local level for l1Expire. Writes go to both.
// The shared level is best effort: its errors are logged and reported as
// misses, since a cached certificate status only saves a round trip to the
// certificate manager.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
}

// New creates a tiered cache over the local l1 and the shared l2.
func New(l1, l2 cache.Cache, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire}
}

// Get returns the local copy when present, otherwise the shared one.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if val, ok, err := c.l1.Get(ctx, key); err != nil || ok {
		return val, ok, err
	}

	val, ok, err := c.l2.Get(ctx, key)
	switch {
	case err != nil:
		slog.WarnContext(ctx, "shared cache read failed", "key", key, "error", err)
		return nil, false, nil
	case !ok:
		return nil, false, nil
	}
	if err := c.l1.Set(ctx, key, val, c.l1Expire); err != nil {
		slog.DebugContext(ctx, "local cache backfill failed", "key", key, "error", err)
	}
	return val, true, nil
}

// Set stores value in both levels with the same ttl.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		slog.WarnContext(ctx, "shared cache write failed", "key", key, "error", err)
	}
	return nil
}

// Delete drops key from both levels.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	if err := c.l2.Delete(ctx, key); err != nil {
		slog.WarnContext(ctx, "shared cache delete failed", "key", key, "error", err)
	}
	return nil
}
