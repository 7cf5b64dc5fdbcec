// Package metrics exposes Prometheus collectors for the connector host:
// per-instance operation latency, cache hit/miss counts, circuit breaker
// state, and session reconnect counts.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationLatency tracks how long each Facade operation takes, by
	// instance, operation name, and outcome.
	OperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "connectorhost_operation_latency_seconds",
			Help: "Facade operation latency in seconds",
			Buckets: []float64{
				0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30,
			},
		},
		[]string{"instance", "operation", "status"},
	)

	// CacheResult counts cache lookups by outcome (hit/miss), per instance.
	CacheResult = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connectorhost_cache_result_total",
			Help: "Cache lookups by instance and result (hit/miss)",
		},
		[]string{"instance", "result"},
	)

	// BreakerState reports each instance's circuit breaker state as a
	// gauge: 0=CLOSED, 1=OPEN, 2=HALF_OPEN.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "connectorhost_breaker_state",
			Help: "Circuit breaker state per instance (0=closed, 1=open, 2=half_open)",
		},
		[]string{"instance"},
	)

	// SessionReconnects counts how many reconnect attempts the remote
	// session has made, incremented when a scheduled attempt fires.
	SessionReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "connectorhost_session_reconnects_total",
			Help: "Total number of WebSocket reconnect attempts made",
		},
	)
)

// Timer measures elapsed time for a single operation call.
type Timer struct {
	start time.Time
}

// NewTimer starts a Timer.
func NewTimer() Timer {
	return Timer{start: time.Now()}
}

// ObserveSeconds returns the elapsed time in seconds since NewTimer.
func (t Timer) ObserveSeconds() float64 {
	return time.Since(t.start).Seconds()
}

// BreakerStateValue maps a breaker state's String() form to the gauge
// value BreakerState expects.
func BreakerStateValue(state string) float64 {
	switch state {
	case "OPEN":
		return 1
	case "HALF_OPEN":
		return 2
	default:
		return 0
	}
}
