package usagecontrol

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the usage control collectors
type Metrics struct {
	Decisions   *prometheus.CounterVec
	Obligations *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. A nil reg uses a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "usagecontrol_decisions_total",
			Help: "Total number of policy decisions by result.",
		}, []string{"result"}),

		Obligations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "usagecontrol_obligations_total",
			Help: "Total number of executed post duties by pattern and outcome.",
		}, []string{"pattern", "outcome"}),
	}
}
