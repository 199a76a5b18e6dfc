// Package monitoring exposes Prometheus metrics for the manifest
// generator, the studio state and the HTTP server.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "buttonstudio"

// Metrics holds the collectors registered on a private registry, so tests
// and multiple servers in one process never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	ManifestGenerations *prometheus.CounterVec
	ManifestDuration    prometheus.Histogram
	RouteConflicts      prometheus.Counter
	ManifestRoutes      prometheus.Gauge
	ManifestIslands     prometheus.Gauge
	CounterChanges      *prometheus.CounterVec
	AudioToggles        prometheus.Counter
	WebSocketClients    prometheus.Gauge
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ManifestGenerations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "manifest",
			Name:      "generations_total",
			Help:      "Manifest generations by result (written, unchanged, failed).",
		}, []string{"result"}),
		ManifestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "manifest",
			Name:      "generation_duration_seconds",
			Help:      "Time to collect and render the manifest.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		RouteConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "manifest",
			Name:      "route_conflicts_total",
			Help:      "Route conflicts detected while collecting.",
		}),
		ManifestRoutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "manifest",
			Name:      "routes",
			Help:      "Routes in the last generated manifest.",
		}),
		ManifestIslands: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "manifest",
			Name:      "islands",
			Help:      "Islands in the last generated manifest.",
		}),
		CounterChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "studio",
			Name:      "counter_changes_total",
			Help:      "Counter steps by direction.",
		}, []string{"direction"}),
		AudioToggles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "studio",
			Name:      "audio_toggles_total",
			Help:      "Audio status toggles.",
		}),
		WebSocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "websocket",
			Name:      "clients",
			Help:      "Connected websocket clients.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ManifestGenerations,
		m.ManifestDuration,
		m.RouteConflicts,
		m.ManifestRoutes,
		m.ManifestIslands,
		m.CounterChanges,
		m.AudioToggles,
		m.WebSocketClients,
		m.HTTPRequests,
		m.HTTPDuration,
	)

	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Generation results.
const (
	ResultWritten   = "written"
	ResultUnchanged = "unchanged"
	ResultFailed    = "failed"
)

// ObserveGeneration records one manifest generation.
func (m *Metrics) ObserveGeneration(result string, routes, islands int, took time.Duration) {
	m.ManifestGenerations.WithLabelValues(result).Inc()
	m.ManifestDuration.Observe(took.Seconds())
	if result != ResultFailed {
		m.ManifestRoutes.Set(float64(routes))
		m.ManifestIslands.Set(float64(islands))
	}
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, took time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(took.Seconds())
}
