package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records container activity in a private prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	resolutionsTotal   *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	failuresTotal      *prometheus.CounterVec
	scopesActive       prometheus.Gauge
	scopesDestroyed    *prometheus.CounterVec
}

// Config controls which collectors are registered.
type Config struct {
	Namespace string

	// EnableGo adds the Go runtime and process collectors.
	EnableGo bool
}

// New creates the collectors and registers them.
func New(cfg Config) *Metrics {
	ns := cfg.Namespace
	if ns == "" {
		ns = "ioc"
	}
	m := &Metrics{registry: prometheus.NewRegistry()}

	if cfg.EnableGo {
		m.registry.MustRegister(collectors.NewGoCollector())
		m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	m.resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "resolutions_total",
			Help:      "Total number of resolved expressions by resolution kind",
		},
		[]string{"kind"},
	)
	m.resolutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "resolution_duration_seconds",
			Help:      "Duration of top-level Get calls",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
		[]string{"kind"},
	)
	m.failuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "resolution_failures_total",
			Help:      "Total number of failed Get calls by error code",
		},
		[]string{"code"},
	)
	m.scopesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "scopes_active",
		Help:      "Number of live named scopes",
	})
	m.scopesDestroyed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "scopes_destroyed_total",
			Help:      "Total number of destroyed scopes by teardown result",
		},
		[]string{"result"},
	)

	m.registry.MustRegister(
		m.resolutionsTotal,
		m.resolutionDuration,
		m.failuresTotal,
		m.scopesActive,
		m.scopesDestroyed,
	)
	return m
}

// ObserveResolution counts one resolution of the given kind.
func (m *Metrics) ObserveResolution(kind string, elapsed time.Duration) {
	m.resolutionsTotal.WithLabelValues(kind).Inc()
	if elapsed > 0 {
		m.resolutionDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	}
}

// ObserveFailure counts one failed Get call.
func (m *Metrics) ObserveFailure(code string) {
	if code == "" {
		code = "UNKNOWN"
	}
	m.failuresTotal.WithLabelValues(code).Inc()
}

// ScopeCreated increments the live scope gauge.
func (m *Metrics) ScopeCreated() { m.scopesActive.Inc() }

// ScopeDestroyed decrements the live scope gauge and counts the teardown.
func (m *Metrics) ScopeDestroyed(failed bool) {
	m.scopesActive.Dec()
	result := "ok"
	if failed {
		result = "error"
	}
	m.scopesDestroyed.WithLabelValues(result).Inc()
}

// Registry exposes the underlying prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
