package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels of jmapproxy_session_requests_total.
const (
	resultOK           = "ok"
	resultUnauthorized = "unauthorized"
	resultThrottled    = "throttled"
	resultError        = "error"
)

// metrics lives on its own registry so several servers can coexist in one
// process, as they do in tests.
type metrics struct {
	registry     *prometheus.Registry
	requests     *prometheus.CounterVec
	authFailures prometheus.Counter
	duration     prometheus.Histogram
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &metrics{
		registry: reg,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jmapproxy_session_requests_total",
				Help: "Session requests on gated routes, by result.",
			},
			[]string{"result"},
		),
		authFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "jmapproxy_auth_failures_total",
				Help: "Requests rejected by the credential gate.",
			},
		),
		duration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "jmapproxy_session_request_duration_seconds",
				Help:    "Time spent serving gated requests.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
		),
	}
}

func (m *metrics) observe(result string, elapsed time.Duration) {
	m.requests.WithLabelValues(result).Inc()
	if result == resultUnauthorized {
		m.authFailures.Inc()
	}
	m.duration.Observe(elapsed.Seconds())
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func resultFor(status int) string {
	switch {
	case status == http.StatusOK:
		return resultOK
	case status == http.StatusUnauthorized:
		return resultUnauthorized
	case status == http.StatusTooManyRequests:
		return resultThrottled
	case status >= 500:
		return resultError
	default:
		return strconv.Itoa(status)
	}
}
