package kafka

import "github.com/prometheus/client_golang/prometheus"

var messagesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "aquabot_kafka_messages_total",
		Help: "Telemetry messages consumed from Kafka, by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(messagesTotal)
}
