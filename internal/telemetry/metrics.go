package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	ingestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquabot_telemetry_ingested_total",
			Help: "Telemetry documents stored, by ingest transport.",
		},
		[]string{"transport"},
	)
	rejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquabot_telemetry_rejected_total",
			Help: "Telemetry transmissions rejected, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(ingestedTotal)
	prometheus.MustRegister(rejectedTotal)
}
