// Package audit records control-plane decisions and mutations for compliance.
//
// # Overview
//
// Every module registration, organization assignment, permission grant and
// tenant provisioning step appends an entry to audit_logs. Denied access checks
// can be recorded too. Entries carry the acting user, the organization, the
// affected resource and the request id taken from the context.
//
// # Event Types
//
// Authorization: permission_grant, permission_revoke, access_denied
// Module: register, delete, toggle, enable, disable
// Tenant: namespace_create, tables_provision, namespace_drop
// Admin: org_create, org_deactivate, org_delete
//
// # Usage Example
//
//	logger, err := audit.NewDBLogger(db)
//	if err != nil {
//		return err
//	}
//	logger.LogProvisioning(ctx, audit.EventTypeTenantTablesProvision, "club-norte", "booking", nil)
//
// # Retention
//
// Retention purges entries older than the configured number of days on a cron
// schedule:
//
//	r := audit.NewRetention(logger, 90, "@daily", log)
//	r.Start()
//	defer r.Stop()
package audit
