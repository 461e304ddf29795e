// Package metrics registers the gateway's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Gateway metrics - using explicit registration
var (
	// Route counters by answer source and status
	RoutesTotal *prometheus.CounterVec

	// End-to-end route latency
	RouteDuration *prometheus.HistogramVec

	// Per-candidate attempts by outcome
	CandidateAttemptsTotal *prometheus.CounterVec

	// Operation (tool) invocations
	OperationCallsTotal *prometheus.CounterVec

	// Operation execution latency
	OperationDuration *prometheus.HistogramVec

	// Provider connection state gauge (1=connected, 0=not)
	ProviderUp *prometheus.GaugeVec

	// Connection attempts by result
	ProviderConnectsTotal *prometheus.CounterVec

	// Model token usage
	TokensTotal *prometheus.CounterVec

	// Answer cache lookups
	CacheLookupsTotal *prometheus.CounterVec
)

// init creates and registers all metrics with the default registry
func init() {
	RoutesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcp",
			Subsystem: "gateway",
			Name:      "routes_total",
			Help:      "Total number of routed queries",
		},
		[]string{"source", "status"},
	)

	RouteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mcp",
			Subsystem: "gateway",
			Name:      "route_duration_seconds",
			Help:      "End-to-end route latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"source"},
	)

	CandidateAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcp",
			Subsystem: "gateway",
			Name:      "candidate_attempts_total",
			Help:      "Provider attempts during routing, by outcome",
		},
		[]string{"provider", "outcome"},
	)

	OperationCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcp",
			Subsystem: "gateway",
			Name:      "operation_calls_total",
			Help:      "Total provider operation invocations",
		},
		[]string{"provider", "operation", "status"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mcp",
			Subsystem: "gateway",
			Name:      "operation_duration_seconds",
			Help:      "Provider operation execution time in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	ProviderUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mcp",
			Subsystem: "gateway",
			Name:      "provider_up",
			Help:      "Provider connection state (1=connected, 0=not connected)",
		},
		[]string{"provider"},
	)

	ProviderConnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcp",
			Subsystem: "gateway",
			Name:      "provider_connects_total",
			Help:      "Connection attempts per provider, by result",
		},
		[]string{"provider", "status"},
	)

	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcp",
			Subsystem: "gateway",
			Name:      "tokens_total",
			Help:      "Model tokens consumed, by kind",
		},
		[]string{"kind"},
	)

	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcp",
			Subsystem: "gateway",
			Name:      "cache_lookups_total",
			Help:      "Answer cache lookups, by result",
		},
		[]string{"status"},
	)

	prometheus.MustRegister(RoutesTotal)
	prometheus.MustRegister(RouteDuration)
	prometheus.MustRegister(CandidateAttemptsTotal)
	prometheus.MustRegister(OperationCallsTotal)
	prometheus.MustRegister(OperationDuration)
	prometheus.MustRegister(ProviderUp)
	prometheus.MustRegister(ProviderConnectsTotal)
	prometheus.MustRegister(TokensTotal)
	prometheus.MustRegister(CacheLookupsTotal)
	log.Info().Msg("Gateway metrics registered with Prometheus")
}

// RecordRoute records one completed route call.
func RecordRoute(source, status string, durationSec float64) {
	if source == "" {
		source = "unknown"
	}
	RoutesTotal.WithLabelValues(source, status).Inc()
	RouteDuration.WithLabelValues(source).Observe(durationSec)
}

// RecordAttempt records one provider attempt outcome.
func RecordAttempt(provider, outcome string) {
	if provider == "" {
		provider = "unknown"
	}
	CandidateAttemptsTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordOperationCall records one operation invocation.
func RecordOperationCall(provider, operation, status string, durationSec float64) {
	if provider == "" {
		provider = "unknown"
	}
	OperationCallsTotal.WithLabelValues(provider, operation, status).Inc()
	OperationDuration.WithLabelValues(provider).Observe(durationSec)
}

// SetProviderUp sets the connection gauge for a provider.
func SetProviderUp(provider string, up bool) {
	val := 0.0
	if up {
		val = 1.0
	}
	ProviderUp.WithLabelValues(provider).Set(val)
}

// RecordConnect records a connection attempt result.
func RecordConnect(provider string, ok bool) {
	status := "error"
	if ok {
		status = "success"
	}
	ProviderConnectsTotal.WithLabelValues(provider, status).Inc()
}

// RecordTokens records model token usage.
func RecordTokens(prompt, completion int) {
	if prompt > 0 {
		TokensTotal.WithLabelValues("prompt").Add(float64(prompt))
	}
	if completion > 0 {
		TokensTotal.WithLabelValues("completion").Add(float64(completion))
	}
}

// RecordCacheLookup records an answer cache lookup result.
func RecordCacheLookup(status string) {
	CacheLookupsTotal.WithLabelValues(status).Inc()
}
