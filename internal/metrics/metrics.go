// Package metrics exposes gateway counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Resinat/Dashgate/internal/health"
	"github.com/Resinat/Dashgate/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dashgate"

// Metrics owns a private registry so tests and multiple instances never
// collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	downstreamRequests *prometheus.CounterVec
	downstreamDuration *prometheus.HistogramVec
	gatedSkipped       *prometheus.CounterVec
	modeFallbacks      prometheus.Counter
	probeConnected     *prometheus.GaugeVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Inbound API requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Inbound API request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"method", "route"}),
		downstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downstream_requests_total",
			Help:      "Downstream calls by domain, operation and outcome.",
		}, []string{"domain", "operation", "outcome"}),
		downstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "downstream_request_duration_seconds",
			Help:      "Downstream call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"domain", "operation"}),
		gatedSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gated_skipped_total",
			Help:      "Gated operations skipped because the mode was not production.",
		}, []string{"operation"}),
		modeFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_fallback_total",
			Help:      "Mode lookups that fell back to the default mode.",
		}),
		probeConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "probe_connected",
			Help:      "1 when the last health probe of the domain succeeded.",
		}, []string{"domain"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.downstreamRequests,
		m.downstreamDuration,
		m.gatedSkipped,
		m.modeFallbacks,
		m.probeConnected,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCall records a finished downstream call.
func (m *Metrics) ObserveCall(rec model.CallRecord) {
	m.downstreamRequests.WithLabelValues(rec.Domain, rec.Operation, rec.Outcome).Inc()
	m.downstreamDuration.WithLabelValues(rec.Domain, rec.Operation).Observe(time.Duration(rec.DurationNs).Seconds())
}

// ObserveHTTP records one inbound request. route is the matched mux
// pattern, or "unmatched".
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// GatedSkipped counts a skipped gated operation.
func (m *Metrics) GatedSkipped(operation string) {
	m.gatedSkipped.WithLabelValues(operation).Inc()
}

// ModeFallback counts a mode lookup that used the default.
func (m *Metrics) ModeFallback(error) {
	m.modeFallbacks.Inc()
}

// ObserveProbe updates the connectivity gauge for the probed domain.
func (m *Metrics) ObserveProbe(res health.ProbeResult) {
	v := 0.0
	if res.Connected {
		v = 1
	}
	m.probeConnected.WithLabelValues(string(res.Domain)).Set(v)
}

// RegisterBufferGauge exposes the rolling buffer length.
func (m *Metrics) RegisterBufferGauge(lenFn func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "buffer_points",
		Help:      "Measurements currently held in the rolling buffer.",
	}, func() float64 { return float64(lenFn()) }))
}

// RegisterCallLogDropped exposes the call log overflow counter.
func (m *Metrics) RegisterCallLogDropped(droppedFn func() uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "call_log_dropped_total",
		Help:      "Call records dropped because the call log queue was full.",
	}, func() float64 { return float64(droppedFn()) }))
}
