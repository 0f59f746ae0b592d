package ws

import "github.com/prometheus/client_golang/prometheus"

var (
	connectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aquabot_ws_clients",
		Help: "Connected live telemetry WebSocket clients.",
	})

	droppedMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aquabot_ws_dropped_messages_total",
		Help: "Messages dropped because a client send buffer was full.",
	})
)

func init() {
	prometheus.MustRegister(connectedClients, droppedMessages)
}
