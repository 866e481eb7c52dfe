// Package metrics defines Prometheus collectors for the balancer gateway.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal tracks individual attempts per group and endpoint.
	// outcome is "success", "retry", or "fatal".
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "failover_attempts_total",
			Help: "Total number of balancer attempts",
		},
		[]string{"group", "endpoint", "outcome"},
	)

	// AttemptLatency tracks per-attempt latency.
	AttemptLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "failover_attempt_latency_seconds",
			Help:    "Attempt latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"group", "endpoint"},
	)

	// RequestsTotal tracks whole balanced requests per group.
	// outcome is "success", "no_result", or "fatal".
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "failover_requests_total",
			Help: "Total number of balanced requests",
		},
		[]string{"group", "outcome"},
	)

	// ProbesTotal tracks health probe results per group and endpoint.
	ProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "failover_probes_total",
			Help: "Total number of health probes",
		},
		[]string{"group", "endpoint", "result"},
	)

	// EndpointState exposes the current health color per endpoint:
	// 0 green, 1 yellow, 2 red, -1 unknown.
	EndpointState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "failover_endpoint_state",
			Help: "Endpoint health color (0 green, 1 yellow, 2 red, -1 unknown)",
		},
		[]string{"group", "endpoint"},
	)
)

// SetEndpointState maps a policy status label onto the EndpointState gauge.
func SetEndpointState(group, endpoint, status string) {
	var v float64
	switch {
	case status == "green":
		v = 0
	case strings.HasPrefix(status, "yellow"):
		v = 1
	case status == "red":
		v = 2
	default:
		v = -1
	}
	EndpointState.WithLabelValues(group, endpoint).Set(v)
}
