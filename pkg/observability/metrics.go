package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Permission metrics
	PermissionDecisionsTotal *prometheus.CounterVec
	CacheHitsTotal           *prometheus.CounterVec
	CacheMissesTotal         *prometheus.CounterVec

	// Provisioning metrics
	ProvisioningOperationsTotal *prometheus.CounterVec
	ProvisioningDuration        *prometheus.HistogramVec
	TenantPoolsActive           prometheus.Gauge

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
	DBConnectionsWait   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantgate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantgate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantgate_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),

		PermissionDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantgate_permission_decisions_total",
				Help: "Permission decisions by reason",
			},
			[]string{"reason"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantgate_permission_cache_hits_total",
				Help: "Permission snapshot cache hits",
			},
			[]string{"backend"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantgate_permission_cache_misses_total",
				Help: "Permission snapshot cache misses",
			},
			[]string{"backend"},
		),

		ProvisioningOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantgate_provisioning_operations_total",
				Help: "Tenant provisioning operations",
			},
			[]string{"operation", "module", "status"},
		),
		ProvisioningDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantgate_provisioning_duration_seconds",
				Help:    "Tenant provisioning duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		TenantPoolsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenantgate_tenant_pools_active",
				Help: "Number of open tenant connection pools",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenantgate_db_connections_active",
				Help: "Control-plane connections in use",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenantgate_db_connections_idle",
				Help: "Idle control-plane connections",
			},
		),
		DBConnectionsWait: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenantgate_db_connections_wait_count",
				Help: "Total number of control-plane connections waited for",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.PermissionDecisionsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ProvisioningOperationsTotal,
		m.ProvisioningDuration,
		m.TenantPoolsActive,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWait,
	)

	return m
}

// The Record helpers accept a nil receiver so components can run without metrics.

// RecordDecision counts a permission decision
func (m *Metrics) RecordDecision(reason string) {
	if m == nil {
		return
	}
	m.PermissionDecisionsTotal.WithLabelValues(reason).Inc()
}

// RecordCacheLookup counts a snapshot cache hit or miss
func (m *Metrics) RecordCacheLookup(backend string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(backend).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(backend).Inc()
}

// RecordProvisioning counts a provisioning operation and its duration
func (m *Metrics) RecordProvisioning(operation, module string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.ProvisioningOperationsTotal.WithLabelValues(operation, module, status).Inc()
	m.ProvisioningDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetTenantPools records the number of open tenant pools
func (m *Metrics) SetTenantPools(n int) {
	if m == nil {
		return
	}
	m.TenantPoolsActive.Set(float64(n))
}

// RecordDBStats copies control-plane pool statistics into the gauges
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWait.Set(float64(stats.WaitCount))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled with the matched route template, not the raw path,
// so tenant slugs and ids do not become label values.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeTemplate(r)
			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
