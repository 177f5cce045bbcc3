// Package config loads tenantgate configuration from environment variables.
//
// Every setting has a default except the control-plane database URL and the
// token secret:
//
//	TENANTGATE_DATABASE_URL="postgres://tenantgate@localhost/tenantgate"
//	TENANTGATE_JWT_SECRET="<at least 32 bytes>"
//
// Server:
//
//	TENANTGATE_HOST="0.0.0.0"
//	TENANTGATE_PORT="8080"
//	TENANTGATE_READ_TIMEOUT="15s"
//	TENANTGATE_SHUTDOWN_TIMEOUT="30s"
//
// Tenants:
//
//	TENANTGATE_TENANT_DATABASE_URL   # defaults to TENANTGATE_DATABASE_URL
//	TENANTGATE_TENANT_MAX_CONNS="4"
//	TENANTGATE_PROVISION_TIMEOUT="60s"
//
// Permission cache:
//
//	TENANTGATE_CACHE_BACKEND="memory"  # none, memory, redis
//	TENANTGATE_CACHE_TTL="30s"
//	TENANTGATE_REDIS_URL="redis://localhost:6379/0"
//
// Catalog, audit and rate limiting:
//
//	TENANTGATE_CATALOG_PATH="/etc/tenantgate/catalog.yaml"
//	TENANTGATE_CATALOG_WATCH="true"
//	TENANTGATE_AUDIT_RETENTION_DAYS="90"
//	TENANTGATE_AUDIT_RETENTION_SCHEDULE="@daily"
//	TENANTGATE_RATE_LIMIT_RPS="10"
//	TENANTGATE_RATE_LIMIT_DISTRIBUTED="false"
//
// Usage:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
