package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the capture registry.
type Metrics struct {
	FacilitiesRegistered prometheus.Counter
	CapturesRegistered   prometheus.Counter
	CapturesVerified     prometheus.Counter
	VerifiedAmount       prometheus.Counter
	OperationErrors      *prometheus.CounterVec
}

// New creates and registers all registry metrics on the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on a caller-supplied registerer. Tests pass a
// fresh prometheus.NewRegistry to avoid duplicate registration across cases.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FacilitiesRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "carbonledger_facilities_registered_total",
			Help: "Total number of facilities registered.",
		}),
		CapturesRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "carbonledger_captures_registered_total",
			Help: "Total number of capture events registered.",
		}),
		CapturesVerified: factory.NewCounter(prometheus.CounterOpts{
			Name: "carbonledger_captures_verified_total",
			Help: "Total number of capture events verified by oracles.",
		}),
		VerifiedAmount: factory.NewCounter(prometheus.CounterOpts{
			Name: "carbonledger_verified_amount_total",
			Help: "Cumulative verified CO2 amount across all facilities.",
		}),
		OperationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carbonledger_operation_errors_total",
			Help: "Registry operation failures by error code.",
		}, []string{"code"}),
	}
}
