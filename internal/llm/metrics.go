package llm

import "github.com/prometheus/client_golang/prometheus"

var (
	callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquabot_llm_calls_total",
			Help: "LLM provider calls by provider, operation and outcome.",
		},
		[]string{"provider", "op", "outcome"},
	)
	callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aquabot_llm_call_duration_seconds",
			Help:    "LLM provider call latency.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "op"},
	)
	tokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquabot_llm_tokens_total",
			Help: "Tokens consumed by kind.",
		},
		[]string{"provider", "kind"},
	)
)

func init() {
	prometheus.MustRegister(callsTotal, callDuration, tokensTotal)
}
