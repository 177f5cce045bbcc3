// Package booking is the court booking module of a tenant: courts,
// reservations and events stored in the tenant's own namespace.
//
// Routes live under /org/{orgSlug}/booking and are guarded page by page:
//
//	h := booking.NewHandlers(booking.NewGatewayStore(gateway), log)
//	h.RegisterRoutes(router, permissions.NewMiddleware(resolver, log))
//
// A court accepts at most one confirmed or completed reservation for any
// instant. Bookings on one court are serialized by locking the court row,
// so two concurrent requests for overlapping ranges cannot both succeed.
package booking
