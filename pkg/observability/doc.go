// Package observability provides the process logger, Prometheus metrics,
// health probes and graceful shutdown.
//
// Logging uses logrus with a JSON formatter:
//
//	log, err := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
//
// Metrics are registered on a dedicated registry and served from /metrics:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// Permission decisions, cache lookups and provisioning operations are counted
// through the Record helpers, which are safe to call on a nil *Metrics.
package observability
