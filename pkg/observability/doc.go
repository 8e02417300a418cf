// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown.
//
// # Structured Logging
//
//	logger, err := observability.NewLogger("info", observability.FormatJSON, os.Stdout)
//	observability.FromContext(ctx, logger).Info("user created")
//	// request_id, user_id and trace ids are attached when present
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	store = observability.InstrumentStore(store, metrics, "postgres")
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// Metrics also implements the middleware recorder for authentication
// attempts and permission checks, and EventSubscriber counts lifecycle
// events.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version)
//	checker.Register("store", store.HealthCheck)
//	checker.RegisterOptional("cache", cache.HealthCheck)
//
// Required dependencies failing make /readyz return 503; optional ones only
// degrade the reported status.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "httpusers",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
