package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine. Register once in main
// and inject; promauto uses the default registry.
type Metrics struct {
	MembersAttached     prometheus.Counter
	CommissionsCredited *prometheus.CounterVec
	StageCompletions    *prometheus.CounterVec
	WithdrawalsRejected prometheus.Counter
	RequestLatency      *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		MembersAttached: promauto.NewCounter(prometheus.CounterOpts{
			Name: "matrixpay_members_attached_total",
			Help: "Total number of members attached to the network graph",
		}),
		CommissionsCredited: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "matrixpay_commissions_credited_total",
			Help: "Total commissions credited, by stage and kind",
		}, []string{"stage", "kind"}),
		StageCompletions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "matrixpay_stage_completions_total",
			Help: "Total stage completions recorded, by stage",
		}, []string{"stage"}),
		WithdrawalsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "matrixpay_withdrawals_rejected_total",
			Help: "Withdrawal debits refused for insufficient balance",
		}),
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "matrixpay_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}
