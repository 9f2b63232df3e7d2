package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/qbsru/widgetdomains/internal/domain/customdomain"
)

// sslRefresher is the part of Registry the refresher drives.
type sslRefresher interface {
	ListAwaitingCertificate(ctx context.Context, limit int) ([]customdomain.Config, error)
	RefreshSSLStatus(ctx context.Context, domainID, workspaceID string) (*customdomain.RefreshResult, error)
}

// Refresher periodically polls certificates that are still being issued so
// domains become ready without a user-triggered refresh.
type Refresher struct {
	registry  sslRefresher
	interval  time.Duration
	batchSize int
}

// NewRefresher creates a Refresher. An interval <= 0 disables polling.
func NewRefresher(registry sslRefresher, interval time.Duration, batchSize int) *Refresher {
	if batchSize < 1 {
		batchSize = 100
	}
	return &Refresher{registry: registry, interval: interval, batchSize: batchSize}
}

// Start launches the polling goroutine. It returns immediately and stops
// when ctx is cancelled.
func (r *Refresher) Start(ctx context.Context) {
	if r.interval <= 0 {
		slog.Info("certificate refresher disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.RunOnce(ctx); err != nil {
					slog.Warn("certificate refresher: run failed", "error", err)
				}
			}
		}
	}()
}

// RunOnce refreshes one batch of pending certificates and returns how many
// were refreshed successfully. Per-domain failures are logged and skipped.
func (r *Refresher) RunOnce(ctx context.Context) (int, error) {
	pending, err := r.registry.ListAwaitingCertificate(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for i := range pending {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		d := &pending[i]
		res, err := r.registry.RefreshSSLStatus(ctx, d.ID, d.WorkspaceID)
		if err != nil {
			slog.Warn("certificate refresher: refresh failed",
				"domain_id", d.ID, "workspace_id", d.WorkspaceID, "error", err)
			continue
		}
		refreshed++
		if res.Config.SSLStatus != customdomain.SSLPending {
			slog.Info("certificate refresher: status changed",
				"domain_id", d.ID, "workspace_id", d.WorkspaceID, "ssl_status", res.Config.SSLStatus)
		}
	}

	if len(pending) > 0 {
		slog.Debug("certificate refresher: batch done", "pending", len(pending), "refreshed", refreshed)
	}
	return refreshed, nil
}
