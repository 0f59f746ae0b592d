package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/HerbHall/aquabot/pkg/models"
)

// Reference is the fixed instant fixtures are built around.
var Reference = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// NewDocument returns a TelemetryDocument with sensible defaults, suitable
// for test fixtures. Override individual fields with options.
func NewDocument(opts ...func(*models.TelemetryDocument)) models.TelemetryDocument {
	d := models.TelemetryDocument{
		ID:       uuid.New().String(),
		DeviceID: "esp32-01",
		SiteID:   "tanque-1",
		SentAt:   Reference,
		Seq:      1,
		Measurements: []models.Measurement{
			PH(7.2),
			Temperature(25),
		},
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithID sets the document ID.
func WithID(id string) func(*models.TelemetryDocument) {
	return func(d *models.TelemetryDocument) { d.ID = id }
}

// WithSource sets the device and site.
func WithSource(deviceID, siteID string) func(*models.TelemetryDocument) {
	return func(d *models.TelemetryDocument) {
		d.DeviceID = deviceID
		d.SiteID = siteID
	}
}

// WithOffset sets SentAt to Reference plus offset.
func WithOffset(offset time.Duration) func(*models.TelemetryDocument) {
	return func(d *models.TelemetryDocument) { d.SentAt = Reference.Add(offset) }
}

// WithSeq sets the sequence number.
func WithSeq(seq uint64) func(*models.TelemetryDocument) {
	return func(d *models.TelemetryDocument) { d.Seq = seq }
}

// WithMeasurements replaces the measurements.
func WithMeasurements(ms ...models.Measurement) func(*models.TelemetryDocument) {
	return func(d *models.TelemetryDocument) { d.Measurements = ms }
}

// PH returns a pH measurement.
func PH(v float64) models.Measurement {
	return models.Measurement{Parameter: "ph", Value: v, Unit: "pH"}
}

// Temperature returns a temperature measurement under its pt-BR name.
func Temperature(v float64) models.Measurement {
	return models.Measurement{Parameter: "temperatura", Value: v, Unit: "°C"}
}

// Turbidity returns a turbidity measurement.
func Turbidity(v float64) models.Measurement {
	return models.Measurement{Parameter: "turbidez", Value: v, Unit: "NTU"}
}

// TDS returns a total dissolved solids measurement.
func TDS(v float64) models.Measurement {
	return models.Measurement{Parameter: "tds", Value: v, Unit: "ppm"}
}

// NewSeries returns one point per value, step apart, ending at Reference.
func NewSeries(p models.WaterParameter, unit string, step time.Duration, values ...float64) models.Series {
	out := make(models.Series, len(values))
	start := Reference.Add(-time.Duration(len(values)-1) * step)
	for i, v := range values {
		out[i] = models.MeasurementPoint{
			Timestamp: start.Add(time.Duration(i) * step),
			Value:     v,
			Unit:      unit,
			Parameter: p,
		}
	}
	return out
}
