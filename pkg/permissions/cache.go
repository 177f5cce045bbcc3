package permissions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
)

// ErrCacheMiss is returned by Cache.Get when no entry exists
var ErrCacheMiss = errors.New("permission cache miss")

const snapshotPrefix = "snap:"

// Cache stores permission snapshots between requests. Writers to grants,
// pages or module assignments invalidate through it.
type Cache interface {
	Get(ctx context.Context, key SnapshotKey) (Snapshot, error)
	Set(ctx context.Context, key SnapshotKey, snap Snapshot) error
	InvalidateOrganization(ctx context.Context, orgID string) error
	InvalidateUser(ctx context.Context, userID string) error
	InvalidateAll(ctx context.Context) error
	Backend() string
}

// SnapshotKey addresses one cached snapshot
type SnapshotKey struct {
	OrgID  string
	UserID string
	Module string
	Page   string
}

func (k SnapshotKey) String() string {
	return snapshotPrefix + k.OrgID + ":" + k.UserID + ":" + k.Module + ":" + k.Page
}

// MemoryCache is an in-process LRU with per-entry expiry
type MemoryCache struct {
	cache *lru.LRU[string, Snapshot]
}

// NewMemoryCache creates a cache holding at most size snapshots for ttl
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size < 10 {
		size = 10
	}
	return &MemoryCache{cache: lru.NewLRU[string, Snapshot](size, nil, ttl)}
}

func (c *MemoryCache) Get(ctx context.Context, key SnapshotKey) (Snapshot, error) {
	snap, ok := c.cache.Get(key.String())
	if !ok {
		return Snapshot{}, ErrCacheMiss
	}
	return snap, nil
}

func (c *MemoryCache) Set(ctx context.Context, key SnapshotKey, snap Snapshot) error {
	c.cache.Add(key.String(), snap)
	return nil
}

func (c *MemoryCache) InvalidateOrganization(ctx context.Context, orgID string) error {
	c.removeMatching(func(k string) bool {
		return strings.HasPrefix(k, snapshotPrefix+orgID+":")
	})
	return nil
}

func (c *MemoryCache) InvalidateUser(ctx context.Context, userID string) error {
	c.removeMatching(func(k string) bool {
		parts := strings.SplitN(strings.TrimPrefix(k, snapshotPrefix), ":", 3)
		return len(parts) == 3 && parts[1] == userID
	})
	return nil
}

func (c *MemoryCache) InvalidateAll(ctx context.Context) error {
	c.cache.Purge()
	return nil
}

func (c *MemoryCache) Backend() string { return "memory" }

// Len returns the number of live entries
func (c *MemoryCache) Len() int { return c.cache.Len() }

func (c *MemoryCache) removeMatching(match func(string) bool) {
	for _, k := range c.cache.Keys() {
		if match(k) {
			c.cache.Remove(k)
		}
	}
}

// RedisCache shares snapshots between replicas of the service
type RedisCache struct {
	client *postgres.RedisClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache stores snapshots under prefix for ttl
func NewRedisCache(client *postgres.RedisClient, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key SnapshotKey) (Snapshot, error) {
	var snap Snapshot
	found, err := c.client.GetJSON(ctx, c.prefix+key.String(), &snap)
	if err != nil {
		return Snapshot{}, err
	}
	if !found {
		return Snapshot{}, ErrCacheMiss
	}
	return snap, nil
}

func (c *RedisCache) Set(ctx context.Context, key SnapshotKey, snap Snapshot) error {
	return c.client.SetJSON(ctx, c.prefix+key.String(), snap, c.ttl)
}

func (c *RedisCache) InvalidateOrganization(ctx context.Context, orgID string) error {
	return c.invalidate(ctx, fmt.Sprintf("%s%s%s:*", c.prefix, snapshotPrefix, orgID))
}

func (c *RedisCache) InvalidateUser(ctx context.Context, userID string) error {
	return c.invalidate(ctx, fmt.Sprintf("%s%s*:%s:*", c.prefix, snapshotPrefix, userID))
}

func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	return c.invalidate(ctx, c.prefix+snapshotPrefix+"*")
}

func (c *RedisCache) Backend() string { return "redis" }

func (c *RedisCache) invalidate(ctx context.Context, pattern string) error {
	_, err := c.client.InvalidatePatterns(ctx, pattern)
	return err
}

// NoCache always misses
type NoCache struct{}

func (NoCache) Get(context.Context, SnapshotKey) (Snapshot, error) { return Snapshot{}, ErrCacheMiss }

func (NoCache) Set(context.Context, SnapshotKey, Snapshot) error { return nil }

func (NoCache) InvalidateOrganization(context.Context, string) error { return nil }

func (NoCache) InvalidateUser(context.Context, string) error { return nil }

func (NoCache) InvalidateAll(context.Context) error { return nil }

func (NoCache) Backend() string { return "none" }
