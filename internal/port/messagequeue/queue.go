// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a delivered message. The context carries the request ID
// of the publisher when one was set.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and consuming messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject and
	// returns a function that stops delivery.
	Subscribe(ctx context.Context, subject string, handler Handler) (func(), error)

	// Drain gracefully flushes pending publishes before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject prefixes used by the service.
const (
	SubjectAuditPrefix = "audit." // audit.{action}
	SubjectAuditAll    = "audit.>"
)

// AuditSubject returns the subject an audit action is published on.
func AuditSubject(action string) string {
	return SubjectAuditPrefix + action
}
