// Package telemetry stores sensor transmissions and serves the time-series
// queries the assistant runs against them.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/aquabot/internal/water"
	"github.com/HerbHall/aquabot/pkg/models"
	"github.com/HerbHall/aquabot/pkg/roles"
)

// ErrDuplicateDocument is returned when a document ID is already stored.
var ErrDuplicateDocument = errors.New("telemetry document already stored")

// Repository is implemented by every storage backend.
type Repository interface {
	roles.TelemetrySource

	// Store persists doc as is. doc.ID must be set.
	Store(ctx context.Context, doc models.TelemetryDocument) error

	// Close releases backend resources.
	Close() error
}

// paramKey is the canonical parameter stored alongside the raw name so
// range queries can filter in the backend. Unknown names map to "".
func paramKey(raw string) string {
	p, ok := water.Normalize(raw)
	if !ok {
		return ""
	}
	return string(p)
}

func pointOf(sentAt time.Time, m models.Measurement, param models.WaterParameter) models.MeasurementPoint {
	return models.MeasurementPoint{
		Timestamp: sentAt,
		Value:     m.Value,
		Unit:      m.Unit,
		Parameter: param,
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, roles.ErrStorageUnavailable, err)
}
