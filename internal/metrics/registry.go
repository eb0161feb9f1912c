package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registryRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vaultwatch",
		Subsystem: "registry",
		Name:      "operations_total",
		Help:      "Count of registry operations.",
	}, []string{"operation", "status"})
	registryRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vaultwatch",
		Subsystem: "registry",
		Name:      "operation_duration_seconds",
		Help:      "Duration of registry operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "status"})
)

// Registry tracks metrics for durable registry operations.
type Registry struct{}

// NewRegistry constructs a metrics collector for the registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Observe records a single registry operation outcome and duration.
func (m Registry) Observe(operation string, err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}

	registryRequestsTotal.WithLabelValues(operation, status).Inc()
	registryRequestDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}
