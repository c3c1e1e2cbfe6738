package event

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type busMetrics struct {
	events         *prometheus.CounterVec
	deliveryErrors *prometheus.CounterVec
	subscribers    *prometheus.GaugeVec
}

func newBusMetrics(reg prometheus.Registerer) *busMetrics {
	f := promauto.With(reg)
	return &busMetrics{
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hacvote_event_published_total",
			Help: "events published on the bus",
		}, []string{"type"}),
		deliveryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hacvote_event_delivery_errors_total",
			Help: "failed or dropped event deliveries",
		}, []string{"type", "kind"}),
		subscribers: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hacvote_event_subscribers",
			Help: "current bus subscribers",
		}, []string{"type", "kind"}),
	}
}
