package tenant

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/tenantgate/pkg/apperrors"
	"github.com/platinummonkey/tenantgate/pkg/observability"
)

// Querier is the query surface handed to tenant-scoped code. Both pools and
// transactions satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is a connection pool bound to one tenant namespace.
// *pgxpool.Pool satisfies it.
type Pool interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PoolFactory opens the pool for a tenant namespace
type PoolFactory func(ctx context.Context, slug string) (Pool, error)

// poolOpenTimeout bounds opening and pinging a new tenant pool
const poolOpenTimeout = 10 * time.Second

// NewPgxPoolFactory returns a factory that opens a pgx pool per namespace.
// Every connection of the pool starts with search_path set to the namespace,
// so a connection never changes tenant after it is opened.
func NewPgxPoolFactory(databaseURL string, maxConnsPerTenant int32) PoolFactory {
	return func(ctx context.Context, slug string) (Pool, error) {
		cfg, err := pgxpool.ParseConfig(databaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid tenant database url: %w", err)
		}
		cfg.ConnConfig.RuntimeParams["search_path"] = pq.QuoteIdentifier(slug)
		cfg.ConnConfig.RuntimeParams["application_name"] = "tenantgate:" + slug
		if maxConnsPerTenant > 0 {
			cfg.MaxConns = maxConnsPerTenant
		}

		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return pool, nil
	}
}

// ErrGatewayClosed is returned once Close has been called
var ErrGatewayClosed = apperrors.New(apperrors.KindStoreUnavailable, "", "tenant gateway is closed")

// Gateway hands out tenant-scoped query access. It keeps one pool per
// namespace, created on first use and removed only by Evict or Close.
type Gateway struct {
	factory PoolFactory
	log     *logrus.Logger
	metrics *observability.Metrics

	mu     sync.RWMutex
	pools  map[string]Pool
	closed bool

	group singleflight.Group
}

// NewGateway creates a gateway opening pools with factory
func NewGateway(factory PoolFactory, log *logrus.Logger, metrics *observability.Metrics) *Gateway {
	if log == nil {
		log = logrus.New()
	}
	return &Gateway{
		factory: factory,
		log:     log,
		metrics: metrics,
		pools:   make(map[string]Pool),
	}
}

// WithTenant runs fn with a querier scoped to the namespace of slug.
// A panic inside fn is recovered and returned as an error.
func (g *Gateway) WithTenant(ctx context.Context, slug string, fn func(ctx context.Context, q Querier) error) (err error) {
	pool, err := g.pool(ctx, slug)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = g.panicError(slug, r)
		}
	}()

	return fn(ctx, pool)
}

// WithTenantTx runs fn inside a transaction in the namespace of slug.
// The transaction commits when fn returns nil and rolls back otherwise,
// including when fn panics.
func (g *Gateway) WithTenantTx(ctx context.Context, slug string, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	pool, err := g.pool(ctx, slug)
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return apperrors.Classify(err, "failed to begin tenant transaction")
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			err = g.panicError(slug, r)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Classify(err, "failed to commit tenant transaction")
	}
	return nil
}

// Query runs fn in the namespace of slug and returns its result
func Query[T any](ctx context.Context, g *Gateway, slug string, fn func(ctx context.Context, q Querier) (T, error)) (T, error) {
	var out T
	err := g.WithTenant(ctx, slug, func(ctx context.Context, q Querier) error {
		v, err := fn(ctx, q)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Evict closes and forgets the pool of slug. Used on tenant teardown.
func (g *Gateway) Evict(slug string) {
	g.mu.Lock()
	pool, ok := g.pools[slug]
	delete(g.pools, slug)
	n := len(g.pools)
	g.mu.Unlock()

	if !ok {
		return
	}
	pool.Close()
	g.metrics.SetTenantPools(n)
	g.log.WithField("tenant", slug).Info("tenant pool evicted")
}

// Close closes every pool. The gateway refuses work afterwards.
func (g *Gateway) Close() {
	g.mu.Lock()
	pools := g.pools
	g.pools = make(map[string]Pool)
	g.closed = true
	g.mu.Unlock()

	for _, pool := range pools {
		pool.Close()
	}
	g.metrics.SetTenantPools(0)
}

// Tenants lists the namespaces with an open pool
func (g *Gateway) Tenants() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	slugs := make([]string, 0, len(g.pools))
	for slug := range g.pools {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

func (g *Gateway) pool(ctx context.Context, slug string) (Pool, error) {
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}

	g.mu.RLock()
	pool, ok := g.pools[slug]
	closed := g.closed
	g.mu.RUnlock()
	if closed {
		return nil, ErrGatewayClosed
	}
	if ok {
		return pool, nil
	}

	v, err, _ := g.group.Do(slug, func() (interface{}, error) {
		return g.open(ctx, slug)
	})
	if err != nil {
		return nil, err
	}
	return v.(Pool), nil
}

// open creates the pool for slug unless another caller already did
func (g *Gateway) open(ctx context.Context, slug string) (Pool, error) {
	g.mu.RLock()
	existing, ok := g.pools[slug]
	g.mu.RUnlock()
	if ok {
		return existing, nil
	}

	// callers sharing this flight must not fail because the first one left
	openCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), poolOpenTimeout)
	defer cancel()

	pool, err := g.factory(openCtx, slug)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindStoreUnavailable,
			fmt.Sprintf("failed to open pool for tenant %s", slug))
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		pool.Close()
		return nil, ErrGatewayClosed
	}
	if existing, ok := g.pools[slug]; ok {
		g.mu.Unlock()
		pool.Close()
		return existing, nil
	}
	g.pools[slug] = pool
	n := len(g.pools)
	g.mu.Unlock()

	g.metrics.SetTenantPools(n)
	g.log.WithField("tenant", slug).Debug("tenant pool opened")
	return pool, nil
}

func (g *Gateway) panicError(slug string, r interface{}) error {
	g.log.WithFields(logrus.Fields{
		"tenant": slug,
		"panic":  r,
		"stack":  string(debug.Stack()),
	}).Error("panic in tenant-scoped operation")
	return fmt.Errorf("panic in tenant-scoped operation for %s: %v", slug, r)
}
