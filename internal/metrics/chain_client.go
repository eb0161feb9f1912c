// Package metrics exposes prometheus collectors for the engine's
// collaborators.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chainRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vaultwatch",
		Subsystem: "chain_client",
		Name:      "operations_total",
		Help:      "Count of contract read/write operations.",
	}, []string{"operation", "status"})
	chainRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vaultwatch",
		Subsystem: "chain_client",
		Name:      "operation_duration_seconds",
		Help:      "Duration of contract read/write operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "status"})
)

// ChainClient tracks metrics for contract calls.
type ChainClient struct{}

// NewChainClient constructs a metrics collector for contract calls.
func NewChainClient() *ChainClient {
	return &ChainClient{}
}

// Observe records a single contract call outcome and duration.
func (m ChainClient) Observe(operation string, err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}

	chainRequestsTotal.WithLabelValues(operation, status).Inc()
	chainRequestDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}
