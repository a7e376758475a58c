// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry spans and graceful shutdown for the marketplace tools.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger("info", os.Stderr)
//	logger.WithField("broker", "skillmeat").Info("listings fetched")
//
// Carry it through a context:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).Warn("skipping malformed listing")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RateLimited("skillmeat")
//
// A nil *Metrics is valid and records nothing.
//
// # Tracing
//
//	ctx, span := observability.StartSpan(ctx, "publishing.integrity")
//	defer observability.EndSpan(span, err)
//
// # Related Packages
//
//   - pkg/config: Log level and metrics address
//   - pkg/marketplace/brokers: Broker request metrics
package observability
