package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ObserveOperation counts one collection operation and records its duration.
// Example: defer func() { m.ObserveOperation("m1", "upsert", start, err) }()
func (m *Metrics) ObserveOperation(collection, operation string, start time.Time, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.operationsTotal.WithLabelValues(collection, operation, status).Inc()
	m.operationDuration.WithLabelValues(collection, operation).Observe(time.Since(start).Seconds())
}

// IncrementLockRetries counts a lock attempt that hit contention.
func (m *Metrics) IncrementLockRetries(collection string) {
	m.lockRetriesTotal.WithLabelValues(collection).Inc()
}

// IncrementConnectionFallbacks counts a read retried on a fresh connection.
// outcome is StatusSuccess or StatusError.
func (m *Metrics) IncrementConnectionFallbacks(outcome string) {
	m.connectionFallbacks.WithLabelValues(outcome).Inc()
}

// IncrementOptimizationsApplied counts an optimization recorded on a collection.
func (m *Metrics) IncrementOptimizationsApplied(collection, optimization string) {
	m.optimizationsApplied.WithLabelValues(collection, optimization).Inc()
}

// IncrementBlueSwitches counts a blue pointer change; kind is "content" or "query".
func (m *Metrics) IncrementBlueSwitches(kind string) {
	m.blueSwitchesTotal.WithLabelValues(kind).Inc()
}

// IncrementCacheInvalidations counts a metadata cache reload; source is "local" or "remote".
func (m *Metrics) IncrementCacheInvalidations(source string) {
	m.cacheInvalidations.WithLabelValues(source).Inc()
}

// CreateCounter creates a new CounterVec metric and registers it.
func (m *Metrics) CreateCounter(name, help string, labels []string) *prometheus.CounterVec {
	counter := createCounterVec(m.namespace, name, help, labels)
	m.registerer.MustRegister(counter)
	return counter
}

// CreateHistogram creates a new HistogramVec metric and registers it.
func (m *Metrics) CreateHistogram(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	hist := createHistogramVec(m.namespace, name, help, labels, buckets)
	m.registerer.MustRegister(hist)
	return hist
}

// CreateGauge creates a new GaugeVec metric and registers it.
func (m *Metrics) CreateGauge(name, help string, labels []string) *prometheus.GaugeVec {
	gauge := createGaugeVec(m.namespace, name, help, labels)
	m.registerer.MustRegister(gauge)
	return gauge
}

func createCounterVec(namespace, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func createHistogramVec(namespace, name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

func createGaugeVec(namespace, name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}
