package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/qbsru/widgetdomains/internal/port/audit"
	"github.com/qbsru/widgetdomains/internal/port/messagequeue"
)

// AuditSink publishes audit events as JSON on audit.{action}.
type AuditSink struct {
	queue messagequeue.Queue
}

// NewAuditSink creates an audit sink on top of a queue.
func NewAuditSink(q messagequeue.Queue) *AuditSink {
	return &AuditSink{queue: q}
}

// Write implements audit.Sink.
func (s *AuditSink) Write(ctx context.Context, e audit.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return s.queue.Publish(ctx, messagequeue.AuditSubject(e.Action), data)
}
