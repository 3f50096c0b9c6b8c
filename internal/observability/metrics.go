package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "smprofiler"

type moduleMetrics struct {
	activeSessions     prometheus.Gauge
	sessionsCreated    prometheus.Counter
	sessionsTerminated prometheus.Counter

	fetchTotal    *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	fetchPoints   prometheus.Histogram

	httpRequests *prometheus.CounterVec

	eventClients prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "active_sessions",
					Help:      "Current live profiler session count.",
				},
			),
			sessionsCreated: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "sessions_created_total",
					Help:      "Total profiler sessions created.",
				},
			),
			sessionsTerminated: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "sessions_terminated_total",
					Help:      "Total profiler sessions terminated.",
				},
			),
			fetchTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "fetch_total",
					Help:      "Total dataset fetches by outcome.",
				},
				[]string{"status"},
			),
			fetchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "fetch_duration_seconds",
					Help:      "Dataset fetch duration in seconds, storage read included.",
					Buckets:   prometheus.DefBuckets,
				},
			),
			fetchPoints: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "fetch_points",
					Help:      "Data points returned per successful fetch.",
					Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
				},
			),
			httpRequests: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "http_requests_total",
					Help:      "HTTP requests by route and status code.",
				},
				[]string{"route", "code"},
			),
			eventClients: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "event_clients",
					Help:      "Connected registry event stream clients.",
				},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.sessionsCreated,
			m.sessionsTerminated,
			m.fetchTotal,
			m.fetchDuration,
			m.fetchPoints,
			m.httpRequests,
			m.eventClients,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordSessionCreated(live int) {
	m := getMetrics()
	m.sessionsCreated.Inc()
	m.activeSessions.Set(float64(live))
}

func RecordSessionTerminated(live int) {
	m := getMetrics()
	m.sessionsTerminated.Inc()
	m.activeSessions.Set(float64(live))
}

// RecordFetch tracks one dataset fetch. points is ignored unless status is "success".
func RecordFetch(status string, duration time.Duration, points int) {
	m := getMetrics()
	m.fetchTotal.WithLabelValues(status).Inc()
	m.fetchDuration.Observe(duration.Seconds())
	if status == "success" {
		m.fetchPoints.Observe(float64(points))
	}
}

func RecordHTTPRequest(route string, code int) {
	m := getMetrics()
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func SetEventClients(count int) {
	m := getMetrics()
	m.eventClients.Set(float64(count))
}
