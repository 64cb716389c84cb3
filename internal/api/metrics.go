package api

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "code"})

	httpRequestDurationMS = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_ms",
		Help:    "HTTP request latency in milliseconds",
		Buckets: prometheus.ExponentialBuckets(5, 2, 14),
	}, []string{"route"})

	httpPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "http_panics_total",
		Help: "Handler panics recovered by middleware",
	})
)

// routeLabel keeps label cardinality bounded.
func routeLabel(path string) string {
	switch {
	case path == "/ask", path == "/token", path == "/healthz", path == "/readyz", path == "/metrics", path == "/__livereload":
		return path
	case strings.HasPrefix(path, "/events/"):
		return "/events"
	default:
		return "static"
	}
}
