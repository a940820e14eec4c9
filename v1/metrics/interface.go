package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector is the metrics surface the engine packages use.
// It is implemented by the concrete *Metrics type.
type MetricsCollector interface {
	ObserveOperation(collection, operation string, start time.Time, err error)
	IncrementLockRetries(collection string)
	IncrementConnectionFallbacks(outcome string)
	IncrementOptimizationsApplied(collection, optimization string)
	IncrementBlueSwitches(kind string)
	IncrementCacheInvalidations(source string)

	// Dynamic metric factories

	CreateCounter(name, help string, labels []string) *prometheus.CounterVec
	CreateHistogram(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec
	CreateGauge(name, help string, labels []string) *prometheus.GaugeVec
}

// Nop discards every observation. Engine packages use it when no collector is wired.
type Nop struct{}

func (Nop) ObserveOperation(string, string, time.Time, error) {}
func (Nop) IncrementLockRetries(string)                       {}
func (Nop) IncrementConnectionFallbacks(string)               {}
func (Nop) IncrementOptimizationsApplied(string, string)      {}
func (Nop) IncrementBlueSwitches(string)                      {}
func (Nop) IncrementCacheInvalidations(string)                {}

func (Nop) CreateCounter(name, help string, labels []string) *prometheus.CounterVec {
	return createCounterVec("", name, help, labels)
}

func (Nop) CreateHistogram(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return createHistogramVec("", name, help, labels, buckets)
}

func (Nop) CreateGauge(name, help string, labels []string) *prometheus.GaugeVec {
	return createGaugeVec("", name, help, labels)
}
