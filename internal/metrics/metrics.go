// Package metrics exposes the Prometheus counters and gauges behind the
// /metrics endpoint: bridge_processed_transactions_total (per chain),
// bridge_active_validators, and bridge_pending_signatures.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector wraps the registered metrics so the coordinator and the API
// façade share one set of instruments without reaching for global state.
type Collector struct {
	ProcessedTotal     *prometheus.CounterVec
	ActiveValidators   prometheus.Gauge
	PendingSignatures  prometheus.Gauge
	SubmissionFailures *prometheus.CounterVec
}

// New registers every instrument against registry and returns the
// Collector. Passing a fresh prometheus.NewRegistry() keeps tests isolated
// from the global default registry.
func New(registry prometheus.Registerer) *Collector {
	c := &Collector{
		ProcessedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_processed_transactions_total",
			Help: "Total number of cross-chain transfers effected on the destination chain.",
		}, []string{"chain"}),
		ActiveValidators: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_active_validators",
			Help: "Number of validators the coordinator currently has public shares for.",
		}),
		PendingSignatures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_pending_signatures",
			Help: "Number of signing sessions still accumulating partials.",
		}),
		SubmissionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_submission_failures_total",
			Help: "Total number of destination-chain submission failures, by classification.",
		}, []string{"chain", "class"}),
	}
	registry.MustRegister(c.ProcessedTotal, c.ActiveValidators, c.PendingSignatures, c.SubmissionFailures)
	return c
}
