package telemetry

// Event topics published by the telemetry plugin.
const (
	// TopicTelemetryReceived carries a models.TelemetryDocument after it
	// was stored.
	TopicTelemetryReceived = "telemetry.received"
)
