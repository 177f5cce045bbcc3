package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authorization events
	EventTypeAuthzPermissionGrant  EventType = "authz.permission_grant"
	EventTypeAuthzPermissionRevoke EventType = "authz.permission_revoke"
	EventTypeAuthzAccessDenied     EventType = "authz.access_denied"

	// Module lifecycle events
	EventTypeModuleRegister EventType = "module.register"
	EventTypeModuleDelete   EventType = "module.delete"
	EventTypeModuleToggle   EventType = "module.toggle"
	EventTypeModuleEnable   EventType = "module.enable"
	EventTypeModuleDisable  EventType = "module.disable"

	// Tenant provisioning events
	EventTypeTenantNamespaceCreate EventType = "tenant.namespace_create"
	EventTypeTenantTablesProvision EventType = "tenant.tables_provision"
	EventTypeTenantNamespaceDrop   EventType = "tenant.namespace_drop"

	// Admin events
	EventTypeAdminOrgCreate     EventType = "admin.org_create"
	EventTypeAdminOrgDeactivate EventType = "admin.org_deactivate"
	EventTypeAdminOrgDelete     EventType = "admin.org_delete"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceTypeModule             ResourceType = "module"
	ResourceTypeModulePage         ResourceType = "module_page"
	ResourceTypeOrganization       ResourceType = "organization"
	ResourceTypeOrganizationModule ResourceType = "organization_module"
	ResourceTypePermission         ResourceType = "permission"
	ResourceTypeTenant             ResourceType = "tenant"
	ResourceTypeUser               ResourceType = "user"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"eventType"`
	Status    EventStatus `json:"status"`

	// Actor information
	ActorID        *string `json:"actorId,omitempty"`
	OrganizationID *string `json:"organizationId,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resourceType,omitempty"`
	ResourceID   string       `json:"resourceId,omitempty"`
	ResourceName string       `json:"resourceName,omitempty"`

	RequestID string `json:"requestId,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	// Changes tracking (before/after for updates)
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	ActorID        *string
	OrganizationID *string

	EventTypes []EventType
	Status     *EventStatus

	ResourceType ResourceType
	ResourceID   string

	Limit  int
	Offset int
}

// DefaultSearchLimit caps a search without an explicit limit
const DefaultSearchLimit = 100
