package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics encapsulates the Prometheus registry, the engine metrics and the
// HTTP server exposing them.
type Metrics struct {
	// Server defines the HTTP server used to expose the /metrics endpoint.
	Server *http.Server

	// Registry is the Prometheus registry where all metrics are registered.
	// Each service maintains its own isolated registry to prevent metric name collisions.
	Registry *prometheus.Registry

	// registerer applies the constant service label.
	registerer prometheus.Registerer
	namespace  string

	operationsTotal      *prometheus.CounterVec
	operationDuration    *prometheus.HistogramVec
	lockRetriesTotal     *prometheus.CounterVec
	connectionFallbacks  *prometheus.CounterVec
	optimizationsApplied *prometheus.CounterVec
	blueSwitchesTotal    *prometheus.CounterVec
	cacheInvalidations   *prometheus.CounterVec
}

// NewMetrics sets up a dedicated registry wrapped with a constant `service`
// label, registers the engine metrics and creates the /metrics HTTP server.
//
// Example:
//
//	m := metrics.NewMetrics(metrics.Config{
//	    Address:     ":9090",
//	    ServiceName: "vector-engine",
//	})
//	go m.Server.ListenAndServe()
func NewMetrics(cfg Config) *Metrics {
	if cfg.Address == "" {
		cfg.Address = DefaultMetricsAddress
	}

	registry := prometheus.NewRegistry()
	wrappedRegistry := prometheus.WrapRegistererWith(
		prometheus.Labels{"service": cfg.ServiceName},
		registry,
	)

	m := &Metrics{
		Registry:   registry,
		registerer: wrappedRegistry,
		namespace:  cfg.Namespace,
	}

	m.operationsTotal = createCounterVec(cfg.Namespace, "operations_total",
		"Total number of collection operations by outcome", []string{"collection", "operation", "status"})
	m.operationDuration = createHistogramVec(cfg.Namespace, "operation_duration_seconds",
		"Duration of collection operations in seconds", []string{"collection", "operation"}, prometheus.DefBuckets)
	m.lockRetriesTotal = createCounterVec(cfg.Namespace, "lock_retries_total",
		"Row lock acquisitions retried because of contention", []string{"collection"})
	m.connectionFallbacks = createCounterVec(cfg.Namespace, "connection_fallbacks_total",
		"Reads retried on a fresh connection after a connection failure", []string{"outcome"})
	m.optimizationsApplied = createCounterVec(cfg.Namespace, "optimizations_applied_total",
		"Optimizations applied and recorded per collection", []string{"collection", "optimization"})
	m.blueSwitchesTotal = createCounterVec(cfg.Namespace, "blue_switches_total",
		"Blue pointer changes", []string{"kind"})
	m.cacheInvalidations = createCounterVec(cfg.Namespace, "cache_invalidations_total",
		"Collection info cache reloads", []string{"source"})

	wrappedRegistry.MustRegister(
		m.operationsTotal,
		m.operationDuration,
		m.lockRetriesTotal,
		m.connectionFallbacks,
		m.optimizationsApplied,
		m.blueSwitchesTotal,
		m.cacheInvalidations,
	)

	if cfg.EnableDefaultCollectors {
		wrappedRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewBuildInfoCollector(),
		)
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	m.Server = &http.Server{
		Addr:    cfg.Address,
		Handler: handler,
	}
	return m
}
