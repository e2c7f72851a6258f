// Package metrics exposes Prometheus collectors for the orchestration service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	cacheLookupsTotal          *prometheus.CounterVec
	providerCallsTotal         *prometheus.CounterVec
	providerDurationSeconds    *prometheus.HistogramVec
	rateLimitDecisionsTotal    *prometheus.CounterVec
	availabilityLookupsTotal   *prometheus.CounterVec
	responsesTotal             *prometheus.CounterVec
	bulkTargetsTotal           *prometheus.CounterVec
	whoisPacingDelaySeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30},
			},
			[]string{"method", "route"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bizq_cache_lookups_total",
				Help: "Cache lookups, labeled by result (hit, miss, error).",
			},
			[]string{"result"},
		)

		providerCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bizq_provider_calls_total",
				Help: "Generation calls to the AI provider, labeled by backend and outcome.",
			},
			[]string{"backend", "outcome"},
		)

		providerDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bizq_provider_duration_seconds",
				Help:    "Histogram of AI provider call latencies, labeled by backend.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"backend"},
		)

		rateLimitDecisionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bizq_rate_limit_decisions_total",
				Help: "Rate limiter decisions, labeled by decision (allowed, rejected, error).",
			},
			[]string{"decision"},
		)

		availabilityLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bizq_availability_lookups_total",
				Help: "Domain availability lookups, labeled by outcome (available, taken, error).",
			},
			[]string{"outcome"},
		)

		responsesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bizq_responses_total",
				Help: "Orchestrated responses, labeled by provenance source.",
			},
			[]string{"source"},
		)

		bulkTargetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bizq_bulk_targets_total",
				Help: "Bulk dispatch targets processed, labeled by outcome (success, failure).",
			},
			[]string{"outcome"},
		)

		whoisPacingDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bizq_whois_pacing_delay_seconds",
				Help:    "Time spent waiting for a WHOIS token, labeled by TLD.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"tld"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveCacheLookup counts a cache lookup result.
func ObserveCacheLookup(result string) {
	Init()
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveProviderCall records a provider call outcome and latency.
func ObserveProviderCall(backend, outcome string, duration time.Duration) {
	Init()
	providerCallsTotal.WithLabelValues(backend, outcome).Inc()
	providerDurationSeconds.WithLabelValues(backend).Observe(duration.Seconds())
}

// ObserveRateLimit counts a rate limiter decision.
func ObserveRateLimit(decision string) {
	Init()
	rateLimitDecisionsTotal.WithLabelValues(decision).Inc()
}

// ObserveAvailability counts an availability lookup outcome.
func ObserveAvailability(outcome string) {
	Init()
	availabilityLookupsTotal.WithLabelValues(outcome).Inc()
}

// ObserveResponse counts a response by provenance source.
func ObserveResponse(source string) {
	Init()
	responsesTotal.WithLabelValues(source).Inc()
}

// ObserveBulkTarget counts a bulk target outcome.
func ObserveBulkTarget(success bool) {
	Init()
	outcome := "failure"
	if success {
		outcome = "success"
	}
	bulkTargetsTotal.WithLabelValues(outcome).Inc()
}

// ObserveWhoisPacingDelay records how long a lookup waited for its TLD's token.
func ObserveWhoisPacingDelay(tld string, delay time.Duration) {
	Init()
	whoisPacingDelaySeconds.WithLabelValues(tld).Observe(delay.Seconds())
}
