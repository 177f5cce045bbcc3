// Package api assembles the tenantgate HTTP surface.
//
//	srv := api.NewServer(api.Config{Principals: verifier, Guard: guard, Audit: auditLog})
//	srv.Caller(permissions.NewHandlers(resolver))
//	srv.Admin(modules.NewHandlers(manager), orgs.NewHandlers(orgService), audit.NewHandlers(auditLog))
//	srv.Tenant(booking.NewHandlers(bookingStore, log))
//
// Route groups:
//
//	/healthz, /readyz, /metrics      public
//	/modules/...                     any authenticated principal
//	/org/{orgSlug}/...               tenant members, checked per page
//	/admin/...                       super-admins, rate limited
package api
