package mqtt

import "github.com/prometheus/client_golang/prometheus"

var (
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquabot_mqtt_messages_total",
			Help: "Telemetry messages received over MQTT, by outcome.",
		},
		[]string{"outcome"},
	)
	publishedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aquabot_mqtt_published_total",
		Help: "State and discovery messages published to the broker.",
	})
)

func init() {
	prometheus.MustRegister(messagesTotal)
	prometheus.MustRegister(publishedTotal)
}
