package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// LogAuthorization logs a grant, revoke or denied access check
	LogAuthorization(ctx context.Context, eventType EventType, actorID *string, resourceType ResourceType, resourceID string, status EventStatus, message string) error

	// LogDataMutation logs a control-plane mutation with before/after values
	LogDataMutation(ctx context.Context, eventType EventType, actorID *string, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error

	// LogAdminAction logs an organization-level admin action
	LogAdminAction(ctx context.Context, eventType EventType, actorID *string, organizationID *string, message string) error

	// LogProvisioning logs a tenant namespace or table provisioning step.
	// A non-nil err records the step as failed.
	LogProvisioning(ctx context.Context, eventType EventType, slug, module string, err error) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

// Searcher reads back audit entries
type Searcher interface {
	Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error)
}

// Purger deletes audit entries older than a cutoff
type Purger interface {
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return NoOp()
}

// NoOp returns a logger that discards every event
func NoOp() Logger {
	return &noOpLogger{}
}

// noOpLogger is a logger that does nothing (used when no logger is configured)
type noOpLogger struct{}

func (l *noOpLogger) Log(ctx context.Context, event *AuditEvent) error {
	return nil
}

func (l *noOpLogger) LogAuthorization(ctx context.Context, eventType EventType, actorID *string, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	return nil
}

func (l *noOpLogger) LogDataMutation(ctx context.Context, eventType EventType, actorID *string, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error {
	return nil
}

func (l *noOpLogger) LogAdminAction(ctx context.Context, eventType EventType, actorID *string, organizationID *string, message string) error {
	return nil
}

func (l *noOpLogger) LogProvisioning(ctx context.Context, eventType EventType, slug, module string, err error) error {
	return nil
}

func (l *noOpLogger) Close() error {
	return nil
}

// buildBaseEvent creates a base audit event with common fields populated
func buildBaseEvent(ctx context.Context, eventType EventType, status EventStatus) *AuditEvent {
	event := &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
		Metadata:  make(map[string]interface{}),
	}
	if userID := contextkeys.GetUserID(ctx); userID != "" {
		event.ActorID = &userID
	}
	return event
}

func authorizationEvent(ctx context.Context, eventType EventType, actorID *string, resourceType ResourceType, resourceID string, status EventStatus, message string) *AuditEvent {
	event := buildBaseEvent(ctx, eventType, status)
	if actorID != nil {
		event.ActorID = actorID
	}
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	return event
}

func dataMutationEvent(ctx context.Context, eventType EventType, actorID *string, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) *AuditEvent {
	event := buildBaseEvent(ctx, eventType, EventStatusSuccess)
	if actorID != nil {
		event.ActorID = actorID
	}
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Changes = changes
	event.Message = message
	return event
}

func adminActionEvent(ctx context.Context, eventType EventType, actorID *string, organizationID *string, message string) *AuditEvent {
	event := buildBaseEvent(ctx, eventType, EventStatusSuccess)
	if actorID != nil {
		event.ActorID = actorID
	}
	event.OrganizationID = organizationID
	event.ResourceType = ResourceTypeOrganization
	if organizationID != nil {
		event.ResourceID = *organizationID
	}
	event.Message = message
	return event
}

func provisioningEvent(ctx context.Context, eventType EventType, slug, module string, err error) *AuditEvent {
	status := EventStatusSuccess
	if err != nil {
		status = EventStatusFailure
	}
	event := buildBaseEvent(ctx, eventType, status)
	event.ResourceType = ResourceTypeTenant
	event.ResourceID = slug
	event.ResourceName = module
	if module != "" {
		event.Metadata["module"] = module
		event.Message = fmt.Sprintf("%s %s/%s", eventType, slug, module)
	} else {
		event.Message = fmt.Sprintf("%s %s", eventType, slug)
	}
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	return event
}

// LogSuccess logs a successful event through the logger stored in ctx
func LogSuccess(ctx context.Context, eventType EventType, message string, metadata map[string]interface{}) error {
	event := buildBaseEvent(ctx, eventType, EventStatusSuccess)
	event.Message = message
	if metadata != nil {
		event.Metadata = metadata
	}
	return FromContext(ctx).Log(ctx, event)
}

// LogDenied logs an access denied event through the logger stored in ctx
func LogDenied(ctx context.Context, resourceType ResourceType, resourceID string, reason string) error {
	event := buildBaseEvent(ctx, EventTypeAuthzAccessDenied, EventStatusDenied)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = fmt.Sprintf("Access denied: %s", reason)
	return FromContext(ctx).Log(ctx, event)
}
