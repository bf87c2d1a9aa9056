package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BakeMetrics contains Prometheus metrics for the annotation baking engine.
type BakeMetrics struct {
	registry *prometheus.Registry

	bakesTotal          *prometheus.CounterVec
	bakeDuration        prometheus.Histogram
	bakeOutputSize      prometheus.Histogram
	annotationsBaked    prometheus.Counter
	bakeQueueWaitTime   prometheus.Histogram
}

// NewBakeMetrics creates and registers new bake engine metrics.
func NewBakeMetrics(registry *prometheus.Registry) (*BakeMetrics, error) {
	m := &BakeMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *BakeMetrics) initMetrics() {
	m.bakesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bake_operations_total",
			Help: "Total number of bake operations",
		},
		[]string{"status"}, // status: success, error
	)

	m.bakeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bake_duration_seconds",
			Help:    "Time taken to bake an annotation set into a document",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	m.bakeOutputSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bake_output_bytes",
			Help:    "Size of baked documents",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
		},
	)

	m.annotationsBaked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bake_annotations_total",
			Help: "Total number of annotations baked into documents",
		},
	)

	m.bakeQueueWaitTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bake_queue_wait_seconds",
			Help:    "Time bake requests spent waiting for a worker slot",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
		},
	)
}

func (m *BakeMetrics) getCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.bakesTotal,
		m.bakeDuration,
		m.bakeOutputSize,
		m.annotationsBaked,
		m.bakeQueueWaitTime,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *BakeMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.getCollectors() {
		collector.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *BakeMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.getCollectors() {
		collector.Collect(ch)
	}
}

// RecordBake records one completed bake operation.
func (m *BakeMetrics) RecordBake(status string, duration float64, outputBytes int, annotations int) {
	m.bakesTotal.WithLabelValues(status).Inc()
	if status == "success" {
		m.bakeDuration.Observe(duration)
		m.bakeOutputSize.Observe(float64(outputBytes))
		m.annotationsBaked.Add(float64(annotations))
	}
}

// RecordQueueWait records how long a bake request waited for a worker slot.
func (m *BakeMetrics) RecordQueueWait(duration float64) {
	m.bakeQueueWaitTime.Observe(duration)
}
