package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID contextKey = "trace_id"
	keyScope   contextKey = "scope"
)

// Scope carries per-request identity through every call.
// It is immutable once attached to a context; derive a new one with the With* helpers.
type Scope struct {
	UserID     string
	WorkflowID string
	Repository string
	Branch     string
}

// WithUser returns a copy of the scope with UserID replaced.
func (s Scope) WithUser(userID string) Scope {
	s.UserID = userID
	return s
}

// WithWorkflow returns a copy of the scope with WorkflowID replaced.
func (s Scope) WithWorkflow(workflowID string) Scope {
	s.WorkflowID = workflowID
	return s
}

// WithScope attaches a request scope to the context.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, keyScope, s)
}

// ScopeFrom extracts the request scope from the context.
func ScopeFrom(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(keyScope).(Scope)
	return s, ok
}

// UserID extracts the user ID from the request scope.
func UserID(ctx context.Context) (string, bool) {
	s, ok := ScopeFrom(ctx)
	return s.UserID, ok && s.UserID != ""
}

// WorkflowID extracts the workflow ID from the request scope.
func WorkflowID(ctx context.Context) (string, bool) {
	s, ok := ScopeFrom(ctx)
	return s.WorkflowID, ok && s.WorkflowID != ""
}

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}
