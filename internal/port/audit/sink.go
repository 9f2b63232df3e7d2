// Package audit defines the audit event sink port (interface).
package audit

import (
	"context"
	"time"
)

// Action names recorded for custom domains.
const (
	ActionDomainRegistered         = "custom_domain.registered"
	ActionDomainVerified           = "custom_domain.verified"
	ActionDomainVerificationFailed = "custom_domain.verification_failed"
	ActionSSLRefreshed             = "custom_domain.ssl_refreshed"
	ActionDomainDeleted            = "custom_domain.deleted"
)

// Event is one audit record.
type Event struct {
	Action      string            `json:"action"`
	WorkspaceID string            `json:"workspace_id"`
	UserID      string            `json:"user_id,omitempty"`
	ResourceID  string            `json:"resource_id,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// Sink receives audit events.
type Sink interface {
	Write(ctx context.Context, e Event) error
}
