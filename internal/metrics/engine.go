package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vaultwatch",
		Subsystem: "engine",
		Name:      "refresh_cycles_total",
		Help:      "Count of full vault refresh cycles.",
	}, []string{"status"})
	refreshCycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vaultwatch",
		Subsystem: "engine",
		Name:      "refresh_cycle_duration_seconds",
		Help:      "Duration of full vault refresh cycles.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})
	refreshVaultFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vaultwatch",
		Subsystem: "engine",
		Name:      "refresh_vault_failures_total",
		Help:      "Count of per-vault read failures isolated within a refresh cycle.",
	})
	priceRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vaultwatch",
		Subsystem: "engine",
		Name:      "price_refreshes_total",
		Help:      "Count of global price refreshes.",
	}, []string{"status"})
)

// Engine tracks metrics for refresh cycles.
type Engine struct{}

// NewEngine constructs a metrics collector for the engine.
func NewEngine() *Engine {
	return &Engine{}
}

// ObserveRefresh records a full refresh cycle outcome and duration.
func (m Engine) ObserveRefresh(err error, failedVaults int, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}

	refreshCyclesTotal.WithLabelValues(status).Inc()
	refreshCycleDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
	if failedVaults > 0 {
		refreshVaultFailures.Add(float64(failedVaults))
	}
}

// ObservePrice records a global price refresh outcome.
func (m Engine) ObservePrice(priceStatus string) {
	priceRefreshTotal.WithLabelValues(priceStatus).Inc()
}
