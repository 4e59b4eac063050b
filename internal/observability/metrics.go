package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	connectedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_client_connected",
			Help: "Whether the chat connection is currently established (0 or 1).",
		},
	)
	reconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_client_reconnects_total",
			Help: "Total number of reconnection cycles started by the connection manager.",
		},
	)
	connectErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_connect_errors_total",
			Help: "Total number of failed connection attempts.",
		},
		[]string{"reason"},
	)
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_events_total",
			Help: "Total number of chat events by direction and name.",
		},
		[]string{"direction", "event"},
	)
	serverActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_server_active_connections",
			Help: "Number of active websocket connections on the dev server.",
		},
		[]string{"role"},
	)
)

func init() {
	prometheus.MustRegister(
		connectedGauge,
		reconnectsTotal,
		connectErrorsTotal,
		eventsTotal,
		serverActiveConnections,
	)
}

// SetConnected records the connection manager's connected state.
func SetConnected(up bool) {
	if up {
		connectedGauge.Set(1)
		return
	}
	connectedGauge.Set(0)
}

// IncReconnect counts the start of a reconnection cycle.
func IncReconnect() {
	reconnectsTotal.Inc()
}

// IncConnectError counts a failed connection attempt.
func IncConnectError(reason string) {
	connectErrorsTotal.WithLabelValues(reason).Inc()
}

// IncEvent counts one inbound ("in") or outbound ("out") event.
func IncEvent(direction, event string) {
	eventsTotal.WithLabelValues(direction, event).Inc()
}

// IncWSActive tracks a new dev server connection for the given role.
func IncWSActive(role string) {
	serverActiveConnections.WithLabelValues(role).Inc()
}

// DecWSActive tracks a closed dev server connection for the given role.
func DecWSActive(role string) {
	serverActiveConnections.WithLabelValues(role).Dec()
}
