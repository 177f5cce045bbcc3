// Package cli implements tenantgate-admin, the operator command line.
//
//	tenantgate-admin migrate
//	tenantgate-admin token -user <id> [-org-id <id> -org-slug <slug>] [-super-admin] [-ttl 1h]
//	tenantgate-admin reconcile [-include-inactive] [-concurrency 4]
//	tenantgate-admin provision <slug> [module...]
//
// Database commands read TENANTGATE_* configuration. token only needs
// TENANTGATE_JWT_SECRET or -secret.
package cli
