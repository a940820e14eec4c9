// Package metrics provides Prometheus-based metrics for the vector collection engine.
//
// # Architecture
//
// This package follows the "accept interfaces, return structs" design pattern:
//   - MetricsCollector interface: the surface engine packages depend on
//   - Metrics struct: Prometheus implementation with an isolated registry
//   - Nop: discards everything, used when no collector is wired
//   - FX module: provides *Metrics and MetricsCollector and runs the /metrics server
//
// Every metric carries a constant "service" label. The engine records:
//   - operations_total{collection,operation,status}
//   - operation_duration_seconds{collection,operation}
//   - lock_retries_total{collection}
//   - connection_fallbacks_total{outcome}
//   - optimizations_applied_total{collection,optimization}
//   - blue_switches_total{kind}
//   - cache_invalidations_total{source}
//
// # Direct Usage (Without FX)
//
//	m := metrics.NewMetrics(metrics.Config{
//		Address:                 ":9090",
//		EnableDefaultCollectors: true,
//		ServiceName:             "vector-engine",
//	})
//	go m.Server.ListenAndServe()
//
//	start := time.Now()
//	err := coll.Upsert(ctx, objects, false)
//	m.ObserveOperation("m1", "upsert", start, err)
package metrics
