package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/qbsru/widgetdomains/internal/logger"
	"github.com/qbsru/widgetdomains/internal/port/audit"
)

const auditWriteTimeout = 5 * time.Second

// AuditRecorder writes audit events off the request path. Sink failures are
// logged and never reach the caller.
type AuditRecorder struct {
	sink audit.Sink
	wg   sync.WaitGroup
	now  func() time.Time
}

// NewAuditRecorder creates an AuditRecorder. A nil sink logs events instead.
func NewAuditRecorder(sink audit.Sink) *AuditRecorder {
	if sink == nil {
		sink = LogAuditSink{}
	}
	return &AuditRecorder{sink: sink, now: time.Now}
}

// Record sends e in the background. The request id is taken from ctx when
// e does not carry one.
func (a *AuditRecorder) Record(ctx context.Context, e audit.Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = a.now().UTC()
	}
	if e.RequestID == "" {
		e.RequestID = logger.RequestID(ctx)
	}

	// Detach from the request so a finished response does not cancel the write.
	bg := context.WithoutCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		wctx, cancel := context.WithTimeout(bg, auditWriteTimeout)
		defer cancel()
		if err := a.sink.Write(wctx, e); err != nil {
			slog.WarnContext(wctx, "audit write failed",
				"action", e.Action, "workspace_id", e.WorkspaceID, "resource_id", e.ResourceID, "error", err)
		}
	}()
}

// Wait blocks until all pending writes have finished.
func (a *AuditRecorder) Wait() {
	a.wg.Wait()
}

// LogAuditSink writes audit events to the structured log. Used when no
// message broker is configured.
type LogAuditSink struct{}

// Write logs e at info level.
func (LogAuditSink) Write(ctx context.Context, e audit.Event) error {
	attrs := []any{
		"action", e.Action,
		"workspace_id", e.WorkspaceID,
		"user_id", e.UserID,
		"resource_id", e.ResourceID,
		"occurred_at", e.OccurredAt,
	}
	for k, v := range e.Metadata {
		attrs = append(attrs, k, v)
	}
	slog.InfoContext(ctx, "audit", attrs...)
	return nil
}
