// Package middleware rate limits the admin API.
//
// RateLimiter keeps a golang.org/x/time/rate token bucket per caller in
// process. DistributedRateLimiter counts fixed windows in Redis so several
// instances share one budget:
//
//	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
//	admin.Use(limiter.Handler)
//
//	shared := middleware.NewDistributedRateLimiter(redisClient, 600, time.Minute, log)
//	admin.Use(shared.Handler)
//
// Callers are keyed by the authenticated principal's user id, falling back
// to the client IP.
package middleware
