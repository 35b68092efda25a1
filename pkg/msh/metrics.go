package msh

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the exchange and dispatch collectors
type Metrics struct {
	// Outbound exchanges by message type and outcome
	Requests *prometheus.CounterVec

	// Outbound exchange latency including audit calls
	Duration *prometheus.HistogramVec

	// Inbound messages by message type and result (ok or rejection reason)
	Inbound *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. A nil reg uses a private
// registry that is never scraped.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_requests_total",
			Help: "Total number of outbound message exchanges.",
		}, []string{"type", "outcome"}),

		Duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exchange_duration_seconds",
			Help:    "Histogram of outbound exchange latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"type"}),

		Inbound: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dispatcher_messages_total",
			Help: "Total number of inbound messages by result.",
		}, []string{"type", "result"}),
	}
}
