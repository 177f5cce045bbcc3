package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// WindowCounter counts hits in a fixed window shared by every instance.
// *postgres.RedisClient implements it.
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// DistributedRateLimiter implements fixed-window rate limiting on Redis so
// limits are shared across instances
type DistributedRateLimiter struct {
	counter WindowCounter
	limit   int64
	window  time.Duration
	prefix  string
	log     *logrus.Logger
}

// NewDistributedRateLimiter allows limit requests per window per key
func NewDistributedRateLimiter(counter WindowCounter, limit int, window time.Duration, log *logrus.Logger) *DistributedRateLimiter {
	if log == nil {
		log = logrus.New()
	}
	if window <= 0 {
		window = time.Minute
	}
	return &DistributedRateLimiter{
		counter: counter,
		limit:   int64(limit),
		window:  window,
		prefix:  "tenantgate:ratelimit",
		log:     log,
	}
}

// Allow reports whether key is still under its limit. Redis errors fail
// open and are returned for logging.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := rl.counter.IncrWindow(ctx, rl.prefix+":"+key, rl.window)
	if err != nil {
		return true, err
	}
	return n <= rl.limit, nil
}

// Handler rejects requests over the limit with 429
func (rl *DistributedRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := RateLimitKey(r)
		allowed, err := rl.Allow(r.Context(), key)
		if err != nil {
			rl.log.WithError(err).WithField("key", key).Warn("rate limit check failed, allowing request")
		}
		if !allowed {
			rateLimitExceeded(w, rl.window)
			return
		}
		next.ServeHTTP(w, r)
	})
}
