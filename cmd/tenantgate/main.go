package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantgate/pkg/api"
	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/booking"
	"github.com/platinummonkey/tenantgate/pkg/config"
	"github.com/platinummonkey/tenantgate/pkg/middleware"
	"github.com/platinummonkey/tenantgate/pkg/modules"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/orgs"
	"github.com/platinummonkey/tenantgate/pkg/permissions"
	"github.com/platinummonkey/tenantgate/pkg/principal"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
	"github.com/platinummonkey/tenantgate/pkg/tenant"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log, err := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err != nil {
		logrus.Fatalf("Failed to create logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Control-plane database
	conns, err := postgres.NewConnectionManager(cfg.Database.Connection(), log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	conns.StartHealthCheckRoutine(ctx, cfg.Database.HealthInterval)
	db := conns.Primary()

	migrator, err := postgres.NewMigrator(db, log)
	if err != nil {
		log.Fatalf("Failed to load migrations: %v", err)
	}
	applied, err := migrator.Up(ctx)
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	if len(applied) > 0 {
		log.WithField("migrations", applied).Info("Applied migrations")
	}

	// Metrics
	var registry *prometheus.Registry
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
	}

	// Redis, shared by the decision cache and the distributed rate limiter
	var redisClient *postgres.RedisClient
	if cfg.Cache.RedisURL != "" && (cfg.Cache.Backend == config.CacheBackendRedis || cfg.RateLimit.Distributed) {
		redisClient, err = postgres.NewRedisClient(cfg.Cache.Redis())
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
	}

	var cache permissions.Cache
	switch cfg.Cache.Backend {
	case config.CacheBackendMemory:
		cache = permissions.NewMemoryCache(cfg.Cache.Size, cfg.Cache.TTL)
	case config.CacheBackendRedis:
		cache = permissions.NewRedisCache(redisClient, "tenantgate:perm", cfg.Cache.TTL)
	}

	// Auditing
	auditLog, err := audit.NewDBLogger(db)
	if err != nil {
		log.Fatalf("Failed to initialize audit log: %v", err)
	}

	// Permission resolution reads the primary: a cached decision must never
	// be filled from a replica that has not yet seen a revoke.
	resolver := permissions.NewResolver(permissions.NewPostgresStore(db), permissions.ResolverConfig{
		Cache:   cache,
		Metrics: metrics,
		Logger:  log,
	})
	guard := permissions.NewMiddleware(resolver, log)

	principals, err := principal.NewJWTResolver(principal.TokenConfig{
		Secret: []byte(cfg.Auth.JWTSecret),
		Issuer: cfg.Auth.Issuer,
		Leeway: cfg.Auth.Leeway,
	})
	if err != nil {
		log.Fatalf("Failed to configure token verification: %v", err)
	}

	// Tenant namespaces
	gateway := tenant.NewGateway(tenant.NewPgxPoolFactory(cfg.Tenant.DatabaseURL, cfg.Tenant.MaxConnsPerPool), log, metrics)
	provisioner := tenant.NewProvisioner(db, tenant.ProvisionerConfig{
		Tables:  tenant.DefaultTableSets(),
		Audit:   auditLog,
		Metrics: metrics,
		Logger:  log,
		Timeout: cfg.Tenant.ProvisionTimeout,
	})

	// Module registry
	catalog := modules.DefaultCatalog()
	if cfg.Catalog.Path != "" {
		catalog, err = modules.LoadCatalog(cfg.Catalog.Path)
		if err != nil {
			log.Fatalf("Failed to load module catalog: %v", err)
		}
		if cfg.Catalog.Watch {
			watcher, err := modules.NewCatalogWatcher(catalog, cfg.Catalog.Path, log)
			if err != nil {
				log.Fatalf("Failed to watch module catalog: %v", err)
			}
			go watcher.Run(ctx)
		}
	}
	manager := modules.NewManager(modules.NewPostgresStore(db), modules.ManagerConfig{
		Catalog:     catalog,
		Provisioner: provisioner,
		Invalidator: resolver,
		Audit:       auditLog,
		Logger:      log,
	})

	organizations := orgs.NewService(orgs.NewPostgresStore(db), orgs.ServiceConfig{
		Namespaces:  provisioner,
		Pools:       gateway,
		Invalidator: resolver,
		Audit:       auditLog,
		Logger:      log,
	})

	retention := audit.NewRetention(auditLog, cfg.Audit.RetentionDays, cfg.Audit.Schedule, log)
	if err := retention.Start(); err != nil {
		log.Fatalf("Failed to schedule audit retention: %v", err)
	}

	// Admin rate limiting
	var adminLimiter func(http.Handler) http.Handler
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.Distributed {
			adminLimiter = middleware.NewDistributedRateLimiter(redisClient, cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window, log).Handler
		} else {
			limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
				RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
				BurstSize:         cfg.RateLimit.Burst,
				IdleTTL:           middleware.DefaultRateLimitConfig().IdleTTL,
			})
			limiter.StartCleanup(ctx, middleware.DefaultRateLimitConfig().IdleTTL)
			adminLimiter = limiter.Handler
		}
	}

	var rawRedis *redis.Client
	if redisClient != nil {
		rawRedis = redisClient.Client()
	}

	server := api.NewServer(api.Config{
		Principals:   principals,
		Guard:        guard,
		Audit:        auditLog,
		Metrics:      metrics,
		Registry:     registry,
		Health:       observability.NewHealthChecker(db, rawRedis, version),
		AdminLimiter: adminLimiter,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Logger:       log,
	}).
		Caller(permissions.NewHandlers(resolver)).
		Admin(modules.NewHandlers(manager), orgs.NewHandlers(organizations), audit.NewHandlers(auditLog)).
		Tenant(booking.NewHandlers(booking.NewGatewayStore(gateway), log))

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(log, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		cancel()
		retention.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		gateway.Close()
		return nil
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return conns.Close()
	})

	go func() {
		log.WithFields(logrus.Fields{
			"addr":    httpServer.Addr,
			"version": version,
			"cache":   cfg.Cache.Backend,
		}).Info("Starting tenantgate server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		log.Errorf("Shutdown completed with errors: %v", err)
		os.Exit(1)
	}
}
