// Package metrics exports cache activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dev.mingus.money/internal/cache"
)

// StatsSource supplies cache counters for collection, typically the cache
// manager.
type StatsSource interface {
	Stats() cache.Stats
}

// Collector bridges cache stats into Prometheus. Counter and gauge values
// are read from the StatsSource at scrape time; operation timings stream in
// through ObserveOperation.
type Collector struct {
	source StatsSource

	requests    *prometheus.Desc
	hits        *prometheus.Desc
	misses      *prometheus.Desc
	evictions   *prometheus.Desc
	errors      *prometheus.Desc
	entries     *prometheus.Desc
	memoryBytes *prometheus.Desc

	opDuration *prometheus.HistogramVec
}

// NewCollector registers a collector for the given source. A nil registerer
// uses the default registry.
func NewCollector(reg prometheus.Registerer, source StatsSource) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		source: source,
		requests: prometheus.NewDesc(
			"mingus_cache_requests_total",
			"Total cache read requests",
			nil, nil,
		),
		hits: prometheus.NewDesc(
			"mingus_cache_hits_total",
			"Total cache hits by serving tier",
			[]string{"tier"}, nil,
		),
		misses: prometheus.NewDesc(
			"mingus_cache_misses_total",
			"Total cache misses",
			nil, nil,
		),
		evictions: prometheus.NewDesc(
			"mingus_cache_evictions_total",
			"Total memory tier evictions",
			nil, nil,
		),
		errors: prometheus.NewDesc(
			"mingus_cache_errors_total",
			"Total backend faults absorbed by the cache",
			nil, nil,
		),
		entries: prometheus.NewDesc(
			"mingus_cache_entries",
			"Entries resident in the memory tiers",
			nil, nil,
		),
		memoryBytes: prometheus.NewDesc(
			"mingus_cache_memory_bytes",
			"Bytes resident in the memory tiers",
			nil, nil,
		),
		opDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mingus_cache_operation_seconds",
				Help:    "Cache operation duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"op"},
		),
	}

	reg.MustRegister(c)
	return c
}

// ObserveOperation records one operation's duration. Implements
// cache.OperationObserver.
func (c *Collector) ObserveOperation(op string, elapsed time.Duration) {
	c.opDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requests
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.errors
	ch <- c.entries
	ch <- c.memoryBytes
	c.opDuration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()

	memoryHits := s.Hits - s.RedisHits - s.DBHits
	ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(s.Requests))
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(memoryHits), "memory")
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.RedisHits), "redis")
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.DBHits), "durable")
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions))
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.Errors))
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Entries))
	ch <- prometheus.MustNewConstMetric(c.memoryBytes, prometheus.GaugeValue, s.MemoryUsageMB*1024*1024)
	c.opDuration.Collect(ch)
}

// Handler returns the HTTP handler serving the default registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.Handler()
}
