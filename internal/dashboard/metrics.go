package dashboard

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus counters and histograms for virtdashd.
// All methods are safe on a nil receiver so tests can skip metrics.
type Metrics struct {
	registry               *prometheus.Registry
	powerActionsTotal      *prometheus.CounterVec
	cacheRequestsTotal     *prometheus.CounterVec
	refreshDurationSeconds *prometheus.HistogramVec
	convergencePollsTotal  prometheus.Counter
	watchedServers         prometheus.Gauge
}

// NewMetrics constructs a metrics registry and registers all collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	powerActionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "virtdash",
			Subsystem: "power",
			Name:      "actions_total",
			Help:      "Power actions dispatched, by action and classified result.",
		},
		[]string{"action", "result"},
	)
	cacheRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "virtdash",
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache lookups by category and hit/miss outcome.",
		},
		[]string{"category", "result"},
	)
	refreshDurationSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "virtdash",
			Subsystem: "cache",
			Name:      "refresh_duration_seconds",
			Help:      "Control plane fetch latency per cache category.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"category"},
	)
	convergencePollsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "virtdash",
			Subsystem: "power",
			Name:      "convergence_polls_total",
			Help:      "Snapshot refetches performed while waiting for a power action to converge.",
		},
	)
	watchedServers := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "virtdash",
			Subsystem: "poll",
			Name:      "watched_servers",
			Help:      "Servers currently inside the background poll window.",
		},
	)

	registry.MustRegister(
		powerActionsTotal,
		cacheRequestsTotal,
		refreshDurationSeconds,
		convergencePollsTotal,
		watchedServers,
	)

	return &Metrics{
		registry:               registry,
		powerActionsTotal:      powerActionsTotal,
		cacheRequestsTotal:     cacheRequestsTotal,
		refreshDurationSeconds: refreshDurationSeconds,
		convergencePollsTotal:  convergencePollsTotal,
		watchedServers:         watchedServers,
	}
}

// Handler returns the Prometheus scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PowerAction records one dispatched power action with its result.
func (m *Metrics) PowerAction(action, result string) {
	if m == nil {
		return
	}
	m.powerActionsTotal.WithLabelValues(action, result).Inc()
}

// CacheRequest records a cache lookup outcome ("hit" or "miss").
func (m *Metrics) CacheRequest(category, result string) {
	if m == nil {
		return
	}
	m.cacheRequestsTotal.WithLabelValues(category, result).Inc()
}

// ObserveRefresh records a control plane fetch duration.
func (m *Metrics) ObserveRefresh(category string, d time.Duration) {
	if m == nil {
		return
	}
	m.refreshDurationSeconds.WithLabelValues(category).Observe(d.Seconds())
}

// ConvergencePoll records one refetch inside a convergence window.
func (m *Metrics) ConvergencePoll() {
	if m == nil {
		return
	}
	m.convergencePollsTotal.Inc()
}

// SetWatchedServers records the current background poll set size.
func (m *Metrics) SetWatchedServers(n int) {
	if m == nil {
		return
	}
	m.watchedServers.Set(float64(n))
}
