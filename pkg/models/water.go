package models

import "time"

// WaterParameter is the canonical identifier of a measured water-quality
// dimension. All internal matching uses these values, never raw names.
type WaterParameter string

const (
	ParameterPH          WaterParameter = "ph"
	ParameterTemperature WaterParameter = "temperature"
	ParameterTurbidity   WaterParameter = "turbidity"
	ParameterTDS         WaterParameter = "tds"
)

// Parameters lists every known parameter in display order.
var Parameters = []WaterParameter{
	ParameterPH,
	ParameterTemperature,
	ParameterTurbidity,
	ParameterTDS,
}

// Valid reports whether p is one of the known parameters.
func (p WaterParameter) Valid() bool {
	switch p {
	case ParameterPH, ParameterTemperature, ParameterTurbidity, ParameterTDS:
		return true
	}
	return false
}

// Label returns the user-facing (pt-BR) name of the parameter.
func (p WaterParameter) Label() string {
	switch p {
	case ParameterPH:
		return "pH"
	case ParameterTemperature:
		return "temperatura"
	case ParameterTurbidity:
		return "turbidez"
	case ParameterTDS:
		return "TDS"
	}
	return string(p)
}

// Measurement is one entry of a stored transmission, kept as the sensor
// sent it. Parameter is the raw name and may use any known synonym.
type Measurement struct {
	Parameter string  `json:"parameter"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
}

// TelemetryDocument is one sensor transmission: every measurement shares
// SentAt.
type TelemetryDocument struct {
	ID           string        `json:"id"`
	DeviceID     string        `json:"device_id"`
	SiteID       string        `json:"site_id"`
	SentAt       time.Time     `json:"sent_at"`
	Seq          uint64        `json:"seq"`
	Measurements []Measurement `json:"measurements"`
}

// MeasurementPoint is a single reading of one parameter at one instant.
type MeasurementPoint struct {
	Timestamp time.Time      `json:"timestamp"`
	Value     float64        `json:"value"`
	Unit      string         `json:"unit"`
	Parameter WaterParameter `json:"parameter"`
}

// Series holds readings of a single parameter. Producers do not guarantee
// any ordering.
type Series []MeasurementPoint

// SeriesSummary is derived from a non-empty Series on every call.
type SeriesSummary struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Count int       `json:"count"`
	Min   float64   `json:"min"`
	Max   float64   `json:"max"`
	Avg   float64   `json:"avg"`
	Unit  string    `json:"unit"`
}

// Direction is the sign of a trend.
type Direction string

const (
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionStable Direction = "stable"
)

// TrendResult compares the first and last readings of a chronologically
// ordered Series.
type TrendResult struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	First     float64   `json:"first"`
	Last      float64   `json:"last"`
	Delta     float64   `json:"delta"`
	Direction Direction `json:"direction"`
	Unit      string    `json:"unit"`
	Count     int       `json:"count"`
}

// IdealRange is the acceptable closed interval for one parameter.
type IdealRange struct {
	Parameter WaterParameter `json:"parameter"`
	Min       float64        `json:"min"`
	Max       float64        `json:"max"`
	Unit      string         `json:"unit"`
}

// IdealCheck is the outcome of checking a value against its IdealRange.
type IdealCheck struct {
	Value  float64 `json:"value"`
	Within bool    `json:"within"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Unit   string  `json:"unit"`
}
