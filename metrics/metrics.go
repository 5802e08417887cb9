// Package metrics exports pool snapshots, health verdicts and load trends as
// Prometheus metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/guileen/leasepool/health"
	"github.com/guileen/leasepool/pool"
	"github.com/guileen/leasepool/stats"
)

// Collector owns a private registry with one label set per pool name
type Collector struct {
	size        *prometheus.GaugeVec
	available   *prometheus.GaugeVec
	inUse       *prometheus.GaugeVec
	utilization *prometheus.GaugeVec
	minSize     *prometheus.GaugeVec
	maxSize     *prometheus.GaugeVec
	status      *prometheus.GaugeVec
	trend       *prometheus.GaugeVec

	acquisitions *prometheus.CounterVec
	releases     *prometheus.CounterVec
	creations    *prometheus.CounterVec
	destructions *prometheus.CounterVec
	timeouts     *prometheus.CounterVec
	errors       *prometheus.CounterVec

	mu   sync.Mutex
	last map[string]pool.Snapshot

	registry *prometheus.Registry
}

// NewCollector creates and registers all metrics under namespace
func NewCollector(namespace string) *Collector {
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{"pool"})
	}
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{"pool"})
	}

	c := &Collector{
		size:        gauge("pool_size", "Current number of leases owned by the pool"),
		available:   gauge("pool_available", "Number of idle leases ready to be acquired"),
		inUse:       gauge("pool_in_use", "Number of leases currently held by callers"),
		utilization: gauge("pool_utilization", "Fraction of pool leases in use (0-1)"),
		minSize:     gauge("pool_min_size", "Configured minimum pool size"),
		maxSize:     gauge("pool_max_size", "Configured maximum pool size"),
		status:      gauge("pool_health_status", "Health status (0 unknown, 1 healthy, 2 degraded, 3 unhealthy)"),
		trend:       gauge("pool_load_trend", "Load trend direction (-1 decreasing, 0 stable or unknown, 1 increasing)"),

		acquisitions: counter("pool_acquisitions_total", "Total number of successful acquisitions"),
		releases:     counter("pool_releases_total", "Total number of accepted releases"),
		creations:    counter("pool_creations_total", "Total number of leases created"),
		destructions: counter("pool_destructions_total", "Total number of leases destroyed"),
		timeouts:     counter("pool_timeouts_total", "Total number of acquisitions that timed out"),
		errors:       counter("pool_errors_total", "Total number of rejected releases and aborted acquisitions"),

		last:     make(map[string]pool.Snapshot),
		registry: prometheus.NewRegistry(),
	}

	c.registry.MustRegister(
		c.size, c.available, c.inUse, c.utilization, c.minSize, c.maxSize,
		c.status, c.trend,
		c.acquisitions, c.releases, c.creations, c.destructions, c.timeouts, c.errors,
	)
	return c
}

// ObserveSnapshot sets the occupancy gauges and advances the counters by the
// change since the previous snapshot of the same pool.
func (c *Collector) ObserveSnapshot(name string, snap pool.Snapshot) {
	c.size.WithLabelValues(name).Set(float64(snap.CurrentSize))
	c.available.WithLabelValues(name).Set(float64(snap.Available))
	c.inUse.WithLabelValues(name).Set(float64(snap.InUse))
	c.utilization.WithLabelValues(name).Set(snap.Utilization)
	c.minSize.WithLabelValues(name).Set(float64(snap.MinSize))
	c.maxSize.WithLabelValues(name).Set(float64(snap.MaxSize))

	c.mu.Lock()
	prev := c.last[name]
	c.last[name] = snap
	c.mu.Unlock()

	c.acquisitions.WithLabelValues(name).Add(delta(prev.Acquisitions, snap.Acquisitions))
	c.releases.WithLabelValues(name).Add(delta(prev.Releases, snap.Releases))
	c.creations.WithLabelValues(name).Add(delta(prev.Creations, snap.Creations))
	c.destructions.WithLabelValues(name).Add(delta(prev.Destructions, snap.Destructions))
	c.timeouts.WithLabelValues(name).Add(delta(prev.Timeouts, snap.Timeouts))
	c.errors.WithLabelValues(name).Add(delta(prev.Errors, snap.Errors))
}

// ObserveVerdict records the health status of a pool
func (c *Collector) ObserveVerdict(name string, v health.Verdict) {
	c.status.WithLabelValues(name).Set(float64(v.Status))
}

// ObserveTrend records the load trend direction of a pool
func (c *Collector) ObserveTrend(name string, t stats.TrendResult) {
	c.trend.WithLabelValues(name).Set(TrendDirection(t.Trend))
}

// Handler serves the collector's registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry exposes the underlying registry for additional collectors
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// TrendDirection maps a trend to -1, 0 or 1
func TrendDirection(t stats.Trend) float64 {
	switch t {
	case stats.TrendIncreasing:
		return 1
	case stats.TrendDecreasing:
		return -1
	default:
		return 0
	}
}

// delta is the counter increment between two cumulative readings. A reading
// below the previous one means the pool was replaced, so it counts from zero.
func delta(prev, cur uint64) float64 {
	if cur < prev {
		return float64(cur)
	}
	return float64(cur - prev)
}
