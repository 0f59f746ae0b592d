package mqtt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/HerbHall/aquabot/internal/water"
	"github.com/HerbHall/aquabot/pkg/models"
)

// nonAlphanumeric matches any character that is not alphanumeric or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// DiscoveryConfig holds a single HA MQTT discovery payload.
type DiscoveryConfig struct {
	Topic   string // Full MQTT topic (homeassistant/...)
	Payload []byte // JSON-encoded config
}

// HADevice is the "device" block in HA discovery payloads.
type HADevice struct {
	Identifiers   []string `json:"identifiers"`
	Name          string   `json:"name"`
	Model         string   `json:"model,omitempty"`
	Manufacturer  string   `json:"manufacturer,omitempty"`
	SuggestedArea string   `json:"suggested_area,omitempty"`
}

// SensorConfig is the HA discovery payload for sensor.
type SensorConfig struct {
	Name              string   `json:"name"`
	ObjectID          string   `json:"object_id"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	DeviceClass       string   `json:"device_class,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	Icon              string   `json:"icon,omitempty"`
	Device            HADevice `json:"device"`
}

// BinarySensorConfig is the HA discovery payload for binary_sensor.
type BinarySensorConfig struct {
	Name        string   `json:"name"`
	ObjectID    string   `json:"object_id"`
	UniqueID    string   `json:"unique_id"`
	StateTopic  string   `json:"state_topic"`
	DeviceClass string   `json:"device_class,omitempty"`
	PayloadOn   string   `json:"payload_on"`
	PayloadOff  string   `json:"payload_off"`
	Icon        string   `json:"icon,omitempty"`
	Device      HADevice `json:"device"`
}

// SafeObjectID sanitizes a string for use as an HA object_id.
// Replaces any non-alphanumeric character (except underscore) with underscore,
// lowercases, and trims leading/trailing underscores.
func SafeObjectID(s string) string {
	s = strings.ToLower(s)
	s = nonAlphanumeric.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "unknown"
	}
	return s
}

// buildHADevice creates the HA device block for one sensor node.
func buildHADevice(siteID, deviceID string) HADevice {
	return HADevice{
		Identifiers:   []string{"aquabot_" + SafeObjectID(siteID) + "_" + SafeObjectID(deviceID)},
		Name:          deviceID,
		Model:         "water-quality sensor",
		Manufacturer:  "AquaBot",
		SuggestedArea: siteID,
	}
}

// BuildSensorDiscoveryConfigs creates HA discovery payloads for one
// parameter of a node: a value sensor and an out-of-range binary sensor.
func BuildSensorDiscoveryConfigs(cfg Config, siteID, deviceID string, param models.WaterParameter) []DiscoveryConfig {
	node := SafeObjectID(siteID) + "_" + SafeObjectID(deviceID)
	objectID := "aquabot_" + node + "_" + string(param)
	device := buildHADevice(siteID, deviceID)
	ideal, _ := water.IdealRangeFor(param)

	configs := make([]DiscoveryConfig, 0, 2)

	sensor := SensorConfig{
		Name:              param.Label(),
		ObjectID:          objectID,
		UniqueID:          objectID,
		StateTopic:        cfg.StateTopic(siteID, deviceID, string(param)),
		DeviceClass:       ParameterDeviceClass(param),
		StateClass:        "measurement",
		UnitOfMeasurement: ideal.Unit,
		Icon:              ParameterIcon(param),
		Device:            device,
	}
	if payload, err := json.Marshal(sensor); err == nil {
		configs = append(configs, DiscoveryConfig{
			Topic:   fmt.Sprintf("%s/sensor/aquabot_%s/%s/config", cfg.HADiscoveryPrefix, node, param),
			Payload: payload,
		})
	}

	alert := BinarySensorConfig{
		Name:        param.Label() + " fora da faixa",
		ObjectID:    objectID + "_out_of_range",
		UniqueID:    objectID + "_out_of_range",
		StateTopic:  cfg.RangeTopic(siteID, deviceID, string(param)),
		DeviceClass: "problem",
		PayloadOn:   "ON",
		PayloadOff:  "OFF",
		Icon:        "mdi:alert",
		Device:      device,
	}
	if payload, err := json.Marshal(alert); err == nil {
		configs = append(configs, DiscoveryConfig{
			Topic:   fmt.Sprintf("%s/binary_sensor/aquabot_%s/%s_out_of_range/config", cfg.HADiscoveryPrefix, node, param),
			Payload: payload,
		})
	}

	return configs
}

// ParameterDeviceClass maps a parameter to an HA sensor device class.
func ParameterDeviceClass(p models.WaterParameter) string {
	switch p {
	case models.ParameterPH:
		return "ph"
	case models.ParameterTemperature:
		return "temperature"
	}
	return ""
}

// ParameterIcon maps a parameter to a Material Design Icon string for use in
// Home Assistant.
func ParameterIcon(p models.WaterParameter) string {
	switch p {
	case models.ParameterPH:
		return "mdi:ph"
	case models.ParameterTemperature:
		return "mdi:thermometer-water"
	case models.ParameterTurbidity:
		return "mdi:water-opacity"
	case models.ParameterTDS:
		return "mdi:water-percent"
	}
	return "mdi:water"
}
