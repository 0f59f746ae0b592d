package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HerbHall/aquabot/internal/water"
	"github.com/HerbHall/aquabot/pkg/models"
)

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository keeps documents in process memory. Used for demos and
// tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	docs map[string]models.TelemetryDocument
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: make(map[string]models.TelemetryDocument)}
}

// Store implements Repository.
func (r *MemoryRepository) Store(_ context.Context, doc models.TelemetryDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateDocument, doc.ID)
	}
	doc.Measurements = append([]models.Measurement(nil), doc.Measurements...)
	r.docs[doc.ID] = doc
	return nil
}

// FetchLatest implements roles.TelemetrySource.
func (r *MemoryRepository) FetchLatest(ctx context.Context, deviceID, siteID string) (*models.TelemetryDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("fetch latest", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *models.TelemetryDocument
	for _, d := range r.docs {
		if d.DeviceID != deviceID || d.SiteID != siteID {
			continue
		}
		if best == nil || d.SentAt.After(best.SentAt) ||
			d.SentAt.Equal(best.SentAt) && d.ID > best.ID {
			best = &d
		}
	}
	if best == nil {
		return nil, nil
	}
	out := *best
	out.Measurements = append([]models.Measurement(nil), best.Measurements...)
	return &out, nil
}

// FetchRange implements roles.TelemetrySource.
func (r *MemoryRepository) FetchRange(ctx context.Context, deviceID, siteID string, param models.WaterParameter, start, end time.Time) (models.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("fetch range", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out models.Series
	for _, d := range r.docs {
		if d.DeviceID != deviceID || d.SiteID != siteID {
			continue
		}
		if d.SentAt.Before(start) || d.SentAt.After(end) {
			continue
		}
		for _, m := range d.Measurements {
			if p, ok := water.Normalize(m.Parameter); ok && p == param {
				out = append(out, pointOf(d.SentAt, m, param))
			}
		}
	}
	return out, nil
}

// Close implements Repository.
func (r *MemoryRepository) Close() error {
	return nil
}
