// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/tenantgate/pkg/contextkeys"
//	ctx = contextkeys.WithPrincipal(ctx, p)
//	p, ok := ctx.Value(contextkeys.PrincipalKey).(principal.Principal)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains principal.Principal
	// Set by: principal.Middleware (pkg/principal/middleware.go)
	// Required by: permission checks, admin handlers, tenant routes
	// Type: principal.Principal
	PrincipalKey Key = "principal"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: principal.Middleware after token verification
	// Used by: Logger, audit trail, rate limiting
	// Type: string
	UserIDKey Key = "user_id"

	// TenantKey contains the tenant slug a request is scoped to
	// Set by: permissions.TenantMiddleware
	// Used by: tenant-scoped handlers
	// Type: string
	TenantKey Key = "tenant_slug"

	// AuditLoggerKey contains audit.Logger interface
	// Set by: cmd/tenantgate wiring
	// Used by: Handlers that record audit events
	// Type: audit.Logger
	AuditLoggerKey Key = "audit_logger"

	// PermissionMemoKey contains the per-request snapshot memo
	// Set by: permissions.MemoMiddleware
	// Used by: permissions.Resolver
	// Type: *permissions.memo
	PermissionMemoKey Key = "permission_memo"
)

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, p interface{}) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithTenant adds the tenant slug to the context
func WithTenant(ctx context.Context, slug string) context.Context {
	return context.WithValue(ctx, TenantKey, slug)
}

// WithAuditLogger adds audit logger to the context
func WithAuditLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// GetTenant retrieves the tenant slug from context
func GetTenant(ctx context.Context) string {
	if slug, ok := ctx.Value(TenantKey).(string); ok {
		return slug
	}
	return ""
}
