package logger

import "context"

type contextKey int

const (
	requestIDKey contextKey = iota
	workspaceIDKey
)

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithWorkspaceID stores the workspace a request operates on so that every
// log line emitted while serving it carries the tenant.
func WithWorkspaceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workspaceIDKey, id)
}

// WorkspaceID extracts the workspace ID from the context.
func WorkspaceID(ctx context.Context) string {
	id, _ := ctx.Value(workspaceIDKey).(string)
	return id
}
