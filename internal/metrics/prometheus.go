package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for the cache core
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Counters
	commandsTotal          *prometheus.CounterVec
	cacheLookupsTotal      *prometheus.CounterVec
	backendRequestsTotal   *prometheus.CounterVec
	writebackFailuresTotal prometheus.Counter
	probeTotal             *prometheus.CounterVec

	// Histograms
	commandDuration *prometheus.HistogramVec
	backendDuration *prometheus.HistogramVec

	// Gauges
	uptime         prometheus.GaugeFunc
	activeCommands prometheus.Gauge
}

// Default histogram buckets for durations (in milliseconds)
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}
	startTime := time.Now()

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total number of commands handled, by command and status",
			},
			[]string{"command", "status"},
		),

		cacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Read-through cache lookups by result (hit, miss, bypass). Failed lookups count as miss.",
			},
			[]string{"result"},
		),

		backendRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_requests_total",
				Help:      "Requests sent to the remote backend, by method and outcome",
			},
			[]string{"method", "outcome"},
		),

		writebackFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_writeback_failures_total",
				Help:      "Fetched responses that could not be written to the local cache",
			},
		),

		probeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probe_total",
				Help:      "Connectivity probes by result (online, offline)",
			},
			[]string{"result"},
		),

		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_milliseconds",
				Help:      "Duration of commands in milliseconds",
				Buckets:   buckets,
			},
			[]string{"command"},
		),

		backendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_request_duration_milliseconds",
				Help:      "Duration of backend requests in milliseconds",
				Buckets:   buckets,
			},
			[]string{"method"},
		),

		activeCommands: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_commands",
				Help:      "Commands currently in flight",
			},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the process started",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)

	registry.MustRegister(
		pm.commandsTotal,
		pm.cacheLookupsTotal,
		pm.backendRequestsTotal,
		pm.writebackFailuresTotal,
		pm.probeTotal,
		pm.commandDuration,
		pm.backendDuration,
		pm.uptime,
		pm.activeCommands,
	)

	promMetrics = pm
}

// RecordCommand records a finished command
func RecordCommand(command string, success bool, durationMs int64) {
	if promMetrics == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	promMetrics.commandsTotal.WithLabelValues(command, status).Inc()
	promMetrics.commandDuration.WithLabelValues(command).Observe(float64(durationMs))
}

// Cache lookup results
const (
	LookupHit    = "hit"
	LookupMiss   = "miss"
	LookupBypass = "bypass" // no cache key given
)

// RecordCacheLookup records the result of a read-through cache check
func RecordCacheLookup(result string) {
	if promMetrics == nil {
		return
	}
	promMetrics.cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordBackendRequest records one backend round trip.
// outcome: "ok" when a response body was read, "transport_error" otherwise.
func RecordBackendRequest(method, outcome string, durationMs int64) {
	if promMetrics == nil {
		return
	}
	promMetrics.backendRequestsTotal.WithLabelValues(method, outcome).Inc()
	promMetrics.backendDuration.WithLabelValues(method).Observe(float64(durationMs))
}

// RecordWritebackFailure records a swallowed cache write-back error
func RecordWritebackFailure() {
	if promMetrics == nil {
		return
	}
	promMetrics.writebackFailuresTotal.Inc()
}

// RecordProbe records a connectivity probe result
func RecordProbe(online bool) {
	if promMetrics == nil {
		return
	}
	result := "offline"
	if online {
		result = "online"
	}
	promMetrics.probeTotal.WithLabelValues(result).Inc()
}

// IncActiveCommands increments the in-flight commands gauge
func IncActiveCommands() {
	if promMetrics == nil {
		return
	}
	promMetrics.activeCommands.Inc()
}

// DecActiveCommands decrements the in-flight commands gauge
func DecActiveCommands() {
	if promMetrics == nil {
		return
	}
	promMetrics.activeCommands.Dec()
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics scraping
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the prometheus registry (for custom collectors)
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
