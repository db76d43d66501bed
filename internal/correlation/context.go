// Package correlation carries a CorrelationContext through a request's
// lifetime the idiomatic Go way: as a value on context.Context, rather
// than through the task-local/async-local storage the original design
// assumed. Every suspension point in this codebase already takes a
// context.Context, so this is a natural fit rather than a workaround.
package correlation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ctxKey struct{}

// Context holds the fields propagated across a request and its
// downstream command dispatch, matching the data model's
// CorrelationContext entity.
type Context struct {
	CorrelationID string
	RequestID     string
	TraceID       string
	SpanID        string
	ParentID      string
	UserID        string
	TenantID      string
	SessionID     string
	Timestamp     time.Time
	Properties    map[string]string
}

// New creates a root Context with a freshly generated CorrelationID and
// RequestID.
func New() Context {
	return Context{
		CorrelationID: uuid.NewString(),
		RequestID:     uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		Properties:    map[string]string{},
	}
}

// WithContext returns a new context.Context carrying cc.
func WithContext(ctx context.Context, cc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, cc)
}

// FromContext extracts the Context previously installed by WithContext.
// If none is present, it returns a fresh root Context rather than the
// zero value, so callers never have to special-case a missing
// correlation id.
func FromContext(ctx context.Context) Context {
	if cc, ok := ctx.Value(ctxKey{}).(Context); ok {
		return cc
	}
	return New()
}

// WithChild derives a child Context for a downstream call: a new
// CorrelationID, ParentID set to the parent's CorrelationID, and every
// other identity field (request/user/tenant/session) inherited
// unchanged. It returns both the new context.Context and the derived
// Context value for convenience at call sites that need to read it
// immediately (e.g. to stamp a CommandEnvelope).
func WithChild(ctx context.Context) (context.Context, Context) {
	parent := FromContext(ctx)
	child := Context{
		CorrelationID: uuid.NewString(),
		RequestID:     parent.RequestID,
		TraceID:       parent.TraceID,
		ParentID:      parent.CorrelationID,
		UserID:        parent.UserID,
		TenantID:      parent.TenantID,
		SessionID:     parent.SessionID,
		Timestamp:     time.Now().UTC(),
		Properties:    parent.Properties,
	}
	return WithContext(ctx, child), child
}
