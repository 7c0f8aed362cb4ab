package api

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Prometheus counters for the optimization service.
type Metrics struct {
	optimizations *prometheus.CounterVec
	duration      prometheus.Histogram
	rebalances    prometheus.Counter
	sanitized     prometheus.Counter
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics returns the service metrics, registered once on the
// default registry. Collectors cannot be registered twice, so all
// servers in a process share the same set.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = newMetrics()
	})
	return sharedMetrics
}

func newMetrics() *Metrics {
	return &Metrics{
		optimizations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolio_optimizations_total",
			Help: "Total optimization cycles by outcome.",
		}, []string{"status"}),
		duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "portfolio_optimization_duration_seconds",
			Help:    "Optimization cycle duration.",
			Buckets: prometheus.DefBuckets,
		}),
		rebalances: promauto.NewCounter(prometheus.CounterOpts{
			Name: "portfolio_rebalances_total",
			Help: "Optimization cycles that requested rebalancing.",
		}),
		sanitized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "portfolio_weight_sanitations_total",
			Help: "Reports where the final validation zeroed bad weights.",
		}),
	}
}

// ObserveOptimization records one cycle's duration and outcome.
func (m *Metrics) ObserveOptimization(elapsed time.Duration, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.optimizations.WithLabelValues(status).Inc()
	m.duration.Observe(elapsed.Seconds())
}

// IncRebalance counts a cycle that requested rebalancing.
func (m *Metrics) IncRebalance() {
	m.rebalances.Inc()
}

// IncSanitized counts a report that needed weight sanitation.
func (m *Metrics) IncSanitized() {
	m.sanitized.Inc()
}
