package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/principal"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

func TestRateLimiter_Allow(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 3})
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return clock }

	allowed := 0
	for i := 0; i < 10; i++ {
		if limiter.Allow("user:1") {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed, "burst only")
	assert.True(t, limiter.Allow("user:2"), "keys are independent")

	clock = clock.Add(time.Second)
	assert.True(t, limiter.Allow("user:1"), "refilled after a second")
	assert.False(t, limiter.Allow("user:1"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return clock }

	limiter.Allow("a")
	clock = clock.Add(30 * time.Second)
	limiter.Allow("b")
	clock = clock.Add(45 * time.Second)

	assert.Equal(t, 1, limiter.Cleanup())
	assert.Len(t, limiter.buckets, 1)
	assert.Contains(t, limiter.buckets, "b")
}

func TestRateLimiter_Handler(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1})
	handler := limiter.Handler(ok)

	req := httptest.NewRequest("GET", "/admin/modules", nil)
	req = req.WithContext(principal.WithPrincipal(req.Context(), principal.Principal{UserID: "admin-1", IsSuperAdmin: true}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded","retry_after":1}`, rec.Body.String())
}

func TestRateLimitKey(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(r *http.Request) *http.Request
		expect string
	}{
		{
			name: "principal",
			setup: func(r *http.Request) *http.Request {
				return r.WithContext(principal.WithPrincipal(r.Context(), principal.Principal{UserID: "u-7"}))
			},
			expect: "user:u-7",
		},
		{
			name: "forwarded for",
			setup: func(r *http.Request) *http.Request {
				r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
				return r
			},
			expect: "ip:203.0.113.9",
		},
		{
			name: "real ip",
			setup: func(r *http.Request) *http.Request {
				r.Header.Set("X-Real-IP", "198.51.100.4")
				return r
			},
			expect: "ip:198.51.100.4",
		},
		{
			name:   "remote addr",
			setup:  func(r *http.Request) *http.Request { return r },
			expect: "ip:192.0.2.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			assert.Equal(t, tt.expect, RateLimitKey(tt.setup(req)))
		})
	}
}

func TestDistributedRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := postgres.WrapRedisClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { client.Close() })

	limiter := NewDistributedRateLimiter(client, 2, time.Minute, observability.Discard())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "user:1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := limiter.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, allowed)

	assert.True(t, mr.Exists("tenantgate:ratelimit:user:1"))
	mr.FastForward(time.Minute + time.Second)
	allowed, err = limiter.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, allowed, "new window")
}

type failingCounter struct{}

func (failingCounter) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestDistributedRateLimiter_FailsOpen(t *testing.T) {
	limiter := NewDistributedRateLimiter(failingCounter{}, 1, time.Minute, observability.Discard())
	handler := limiter.Handler(ok)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/admin/modules", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
