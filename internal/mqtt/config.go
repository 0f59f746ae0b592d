package mqtt

import "time"

// Config holds MQTT ingest and publishing configuration.
type Config struct {
	Broker      string        `mapstructure:"broker"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"` //nolint:gosec // G101: config field name, not a credential
	ClientID    string        `mapstructure:"client_id"`
	TopicPrefix string        `mapstructure:"topic_prefix"`
	QoS         byte          `mapstructure:"qos"`
	Timeout     time.Duration `mapstructure:"timeout"`

	// Embedded broker for single-box deployments.
	EmbeddedBroker bool   `mapstructure:"embedded_broker"`
	EmbeddedAddr   string `mapstructure:"embedded_addr"`

	// Republishing of stored readings.
	PublishState      bool   `mapstructure:"publish_state"`
	HADiscovery       bool   `mapstructure:"ha_discovery"`
	HADiscoveryPrefix string `mapstructure:"ha_discovery_prefix"`
}

// DefaultConfig returns sensible defaults. An empty Broker without the
// embedded broker leaves the plugin idle.
func DefaultConfig() Config {
	return Config{
		Broker:            "",
		ClientID:          "aquabot",
		TopicPrefix:       "aquabot",
		QoS:               1,
		Timeout:           10 * time.Second,
		EmbeddedAddr:      ":1883",
		HADiscoveryPrefix: "homeassistant",
	}
}

// TelemetryFilter is the subscription every ingesting client uses.
func (c Config) TelemetryFilter() string {
	return c.TopicPrefix + "/telemetry/#"
}

// StateTopic is where the latest value of one parameter is republished.
func (c Config) StateTopic(siteID, deviceID, param string) string {
	return c.TopicPrefix + "/state/" + siteID + "/" + deviceID + "/" + param
}

// RangeTopic carries ON when a parameter is outside its ideal range.
func (c Config) RangeTopic(siteID, deviceID, param string) string {
	return c.StateTopic(siteID, deviceID, param) + "/out_of_range"
}
