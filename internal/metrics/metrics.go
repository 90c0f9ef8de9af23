// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for request latency. Proxied pages are slower
// than API calls, so the tail reaches further.
var defaultBuckets = []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// Rewrite outcomes used as the "result" label of RewritesTotal.
const (
	RewriteOK       = "ok"
	RewriteFailed   = "failed"
	RewriteDisabled = "disabled"
)

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec
	UpstreamTimeouts  prometheus.Counter

	RewritesTotal    *prometheus.CounterVec
	BudgetRejections prometheus.Counter
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simple_web_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "simple_web_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simple_web_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "simple_web_proxy_upstream_request_duration_seconds",
			Help:    "Time until upstream response headers arrive, in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simple_web_proxy_upstream_responses_total",
			Help: "Total upstream responses by method and status code.",
		}, []string{"method", "status_code"}),

		UpstreamTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simple_web_proxy_upstream_timeouts_total",
			Help: "Upstream exchanges that exceeded the configured timeout.",
		}),

		RewritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simple_web_proxy_rewrites_total",
			Help: "HTML documents passed through the rewriter, by result.",
		}, []string{"result"}),

		BudgetRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simple_web_proxy_budget_rejections_total",
			Help: "Responses rejected for exceeding the content size budget.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.UpstreamTimeouts,
		m.RewritesTotal,
		m.BudgetRejections,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// localPaths are the routes the proxy answers itself.
var localPaths = map[string]bool{
	"/": true, "/favicon.ico": true, "/styles.css": true, "/script.js": true,
	"/healthz": true, "/proxy/status": true, "/metrics": true,
}

// NormalizePath returns a bounded path label for Prometheus metrics. Every
// forwarded request collapses to "/raw" (iframe mode) or "/proxy".
func NormalizePath(path string) string {
	if localPaths[path] {
		return path
	}
	if path == "/raw" || strings.HasPrefix(path, "/raw/") {
		return "/raw"
	}
	return "/proxy"
}
