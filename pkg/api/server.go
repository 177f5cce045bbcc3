package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/permissions"
	"github.com/platinummonkey/tenantgate/pkg/principal"
)

// RouteRegistrar is implemented by handler sets that own their paths
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// TenantRouteRegistrar is implemented by module handler sets served under
// /org/{orgSlug} and guarded page by page
type TenantRouteRegistrar interface {
	RegisterRoutes(router *mux.Router, guard *permissions.Middleware)
}

// Config holds the collaborators of the HTTP server
type Config struct {
	// Principals verifies bearer tokens
	Principals principal.Resolver
	// Guard enforces tenant scope and page permissions on module routes
	Guard *permissions.Middleware
	// Audit is attached to every request context
	Audit audit.Logger

	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Health   *observability.HealthChecker

	// AdminLimiter throttles /admin routes when set
	AdminLimiter func(http.Handler) http.Handler
	MaxBodyBytes int64
	Logger       *logrus.Logger
}

// Server routes requests to the caller, tenant and admin handler sets.
// Health and metrics are public; everything else needs a bearer token, and
// /admin additionally needs a super-admin.
type Server struct {
	router *mux.Router
	caller *mux.Router
	admin  *mux.Router
	guard  *permissions.Middleware
}

// NewServer builds the router skeleton. Handler sets are added with
// Caller, Admin and Tenant.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NoOp()
	}

	router := mux.NewRouter()
	router.Use(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(cfg.Logger),
		httputil.LoggingMiddleware(cfg.Logger),
	)
	if cfg.Metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(cfg.Metrics))
	}

	if cfg.Health != nil {
		observability.RegisterHealthRoutes(router, cfg.Health)
	}
	if cfg.Registry != nil {
		router.Handle("/metrics", observability.MetricsHandler(cfg.Registry)).Methods("GET")
	}

	caller := router.NewRoute().Subrouter()
	caller.Use(principal.NewMiddleware(cfg.Principals, false, cfg.Logger).Handler)
	caller.Use(auditContext(cfg.Audit))
	caller.Use(permissions.MemoMiddleware)
	if cfg.MaxBodyBytes > 0 {
		caller.Use(httputil.MaxBytesMiddleware(cfg.MaxBodyBytes))
	}

	// Admin handlers register their full /admin/... paths, so this
	// subrouter matches on the prefix without rewriting templates.
	admin := caller.MatcherFunc(pathPrefix("/admin/")).Subrouter()
	admin.Use(principal.RequireSuperAdmin)
	if cfg.AdminLimiter != nil {
		admin.Use(cfg.AdminLimiter)
	}

	return &Server{router: router, caller: caller, admin: admin, guard: cfg.Guard}
}

// Caller registers routes open to any authenticated principal
func (s *Server) Caller(handlers ...RouteRegistrar) *Server {
	for _, h := range handlers {
		h.RegisterRoutes(s.caller)
	}
	return s
}

// Admin registers super-admin routes
func (s *Server) Admin(handlers ...RouteRegistrar) *Server {
	for _, h := range handlers {
		h.RegisterRoutes(s.admin)
	}
	return s
}

// Tenant registers module routes behind the permission guard
func (s *Server) Tenant(handlers ...TenantRouteRegistrar) *Server {
	for _, h := range handlers {
		h.RegisterRoutes(s.caller, s.guard)
	}
	return s
}

// Router exposes the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func pathPrefix(prefix string) mux.MatcherFunc {
	return func(r *http.Request, _ *mux.RouteMatch) bool {
		return strings.HasPrefix(r.URL.Path, prefix)
	}
}

func auditContext(logger audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(audit.WithLogger(r.Context(), logger)))
		})
	}
}
