package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "watchsync_connections",
		Help: "Open message-stream connections.",
	})
	EventsRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchsync_events_relayed_total",
		Help: "Frames delivered by the relay, by inbound kind.",
	}, []string{"kind"})
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchsync_events_dropped_total",
		Help: "Inbound frames dropped without delivery, by reason.",
	}, []string{"reason"})
	OutboundDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watchsync_outbound_dropped_total",
		Help: "Outbound frames dropped because a connection queue was full.",
	})
	CatalogRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchsync_catalog_requests_total",
		Help: "Catalog proxy requests, by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})
)

// RegisterRoomGauge exposes the live room count computed by fn.
func RegisterRoomGauge(fn func() int) error {
	return prometheus.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "watchsync_rooms",
		Help: "Rooms with at least one member.",
	}, func() float64 { return float64(fn()) }))
}

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
