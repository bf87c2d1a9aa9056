package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// ProxyMetrics contains Prometheus metrics for the range-serving proxy.
type ProxyMetrics struct {
	registry *prometheus.Registry

	requestsTotal  *prometheus.CounterVec
	bytesServed    prometheus.Counter
	sizeCacheTotal *prometheus.CounterVec
}

// NewProxyMetrics creates and registers new proxy metrics.
func NewProxyMetrics(registry *prometheus.Registry) (*ProxyMetrics, error) {
	m := &ProxyMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *ProxyMetrics) initMetrics() {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_requests_total",
			Help: "Total number of proxy requests",
		},
		[]string{"variant", "status_code"},
	)

	m.bytesServed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_bytes_served_total",
			Help: "Total number of object bytes relayed to viewers",
		},
	)

	m.sizeCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_size_cache_total",
			Help: "Size cache lookups by outcome",
		},
		[]string{"outcome"}, // outcome: hit, miss, negative_hit
	)
}

func (m *ProxyMetrics) getCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requestsTotal,
		m.bytesServed,
		m.sizeCacheTotal,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *ProxyMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.getCollectors() {
		collector.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *ProxyMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.getCollectors() {
		collector.Collect(ch)
	}
}

// RecordRequest records one proxy response.
func (m *ProxyMetrics) RecordRequest(variant string, statusCode int) {
	m.requestsTotal.WithLabelValues(variant, strconv.Itoa(statusCode)).Inc()
}

// AddBytesServed accumulates the number of payload bytes relayed.
func (m *ProxyMetrics) AddBytesServed(n int64) {
	m.bytesServed.Add(float64(n))
}

// RecordSizeCacheLookup records a size cache lookup outcome.
func (m *ProxyMetrics) RecordSizeCacheLookup(outcome string) {
	m.sizeCacheTotal.WithLabelValues(outcome).Inc()
}
