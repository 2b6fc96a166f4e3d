package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_sessions_active",
		Help: "Current number of connected sessions",
	})
	roomsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_rooms_active",
		Help: "Current number of non-empty project rooms",
	})
	eventsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_events_delivered_total",
		Help: "Total events delivered to individual members",
	})
	deliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_delivery_failures_total",
		Help: "Total per-member deliveries that failed",
	})
)
