// Package logging carries request-scoped identity and trace information in
// context values shared by middleware, handlers, and the logger.
package logging

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	// TraceIDKey holds the request trace identifier.
	TraceIDKey contextKey = "trace_id"
	// UserIDKey holds the authenticated user identifier.
	UserIDKey contextKey = "user_id"
	// TenantIDKey holds the tenant of the authenticated user.
	TenantIDKey contextKey = "tenant_id"
	// RoleKey holds the authenticated user's role.
	RoleKey contextKey = "role"
)

// NewTraceID generates a fresh trace identifier.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID returns a context carrying the trace identifier.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace identifier from context, or "".
func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

// WithIdentity returns a context carrying the authenticated principal.
func WithIdentity(ctx context.Context, userID, tenantID, role string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	ctx = context.WithValue(ctx, TenantIDKey, tenantID)
	if role != "" {
		ctx = context.WithValue(ctx, RoleKey, role)
	}
	return ctx
}

// GetUserID returns the authenticated user identifier from context, or "".
func GetUserID(ctx context.Context) string {
	return stringValue(ctx, UserIDKey)
}

// GetTenantID returns the tenant identifier from context, or "".
func GetTenantID(ctx context.Context) string {
	return stringValue(ctx, TenantIDKey)
}

// GetRole returns the authenticated user's role from context, or "".
func GetRole(ctx context.Context) string {
	return stringValue(ctx, RoleKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
