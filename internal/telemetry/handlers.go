package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/HerbHall/aquabot/internal/series"
	"github.com/HerbHall/aquabot/internal/water"
	"github.com/HerbHall/aquabot/pkg/models"
	"github.com/HerbHall/aquabot/pkg/roles"
	"go.uber.org/zap"
)

// IngestResponse is returned by POST /telemetry/ingest.
type IngestResponse struct {
	ID           string    `json:"id"`
	SentAt       time.Time `json:"sent_at"`
	Measurements int       `json:"measurements"`
}

// SeriesResponse is returned by GET /telemetry/series.
type SeriesResponse struct {
	DeviceID  string                `json:"device_id"`
	SiteID    string                `json:"site_id"`
	Parameter models.WaterParameter `json:"parameter"`
	Start     time.Time             `json:"start"`
	End       time.Time             `json:"end"`
	Points    models.Series         `json:"points"`
	Summary   *models.SeriesSummary `json:"summary,omitempty"`
	Trend     *models.TrendResult   `json:"trend,omitempty"`
	Ideal     *models.IdealRange    `json:"ideal,omitempty"`
}

func (m *Module) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, m.cfg.MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	doc, err := m.Decode(body)
	if err != nil {
		switch {
		case errors.Is(err, ErrBadSignature):
			writeError(w, http.StatusUnauthorized, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	stored, err := m.Ingest(r.Context(), roles.TransportHTTP, doc)
	if err != nil {
		m.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, IngestResponse{
		ID:           stored.ID,
		SentAt:       stored.SentAt,
		Measurements: len(stored.Measurements),
	})
}

func (m *Module) handleLatest(w http.ResponseWriter, r *http.Request) {
	deviceID, siteID, ok := identifiers(w, r)
	if !ok {
		return
	}

	ctx, cancel := m.queryContext(r.Context())
	defer cancel()

	doc, err := m.FetchLatest(ctx, deviceID, siteID)
	if err != nil {
		m.writeStoreError(w, err)
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "no telemetry for this device and site")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (m *Module) handleSeries(w http.ResponseWriter, r *http.Request) {
	deviceID, siteID, ok := identifiers(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	param, ok := water.Normalize(q.Get("parameter"))
	if !ok {
		writeError(w, http.StatusBadRequest, "parameter must be one of ph, temperature, turbidity, tds")
		return
	}

	intent := models.QueryIntent{Kind: models.IntentPeriodStatus, Parameter: &param}
	if v := q.Get("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "days must be an integer")
			return
		}
		intent.Days = &days
	}
	for key, dst := range map[string]**time.Time{"start": &intent.Start, "end": &intent.End} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, key+" must be RFC 3339")
			return
		}
		*dst = &ts
	}
	intent.Normalize()
	start, end := series.PeriodResolver{Now: m.now}.Resolve(intent)

	ctx, cancel := m.queryContext(r.Context())
	defer cancel()

	points, err := m.FetchRange(ctx, deviceID, siteID, param, start, end)
	if err != nil {
		m.writeStoreError(w, err)
		return
	}
	points = series.SortChronological(points)

	resp := SeriesResponse{
		DeviceID:  deviceID,
		SiteID:    siteID,
		Parameter: param,
		Start:     start,
		End:       end,
		Points:    points,
	}
	if resp.Points == nil {
		resp.Points = models.Series{}
	}
	resp.Summary, _ = series.Summarize(points)
	resp.Trend, _ = series.Trend(points)
	if ideal, ok := water.IdealRangeFor(param); ok {
		resp.Ideal = &ideal
	}
	writeJSON(w, http.StatusOK, resp)
}

func (m *Module) handleIdealRanges(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, water.IdealRanges())
}

func (m *Module) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.cfg.QueryTimeout)
}

func (m *Module) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDuplicateDocument):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, roles.ErrStorageUnavailable):
		m.logger.Error("telemetry storage failure", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "telemetry storage unavailable")
	default:
		m.logger.Error("telemetry request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func identifiers(w http.ResponseWriter, r *http.Request) (deviceID, siteID string, ok bool) {
	deviceID = r.URL.Query().Get("device_id")
	siteID = r.URL.Query().Get("site_id")
	if deviceID == "" || siteID == "" {
		writeError(w, http.StatusBadRequest, "device_id and site_id are required")
		return "", "", false
	}
	return deviceID, siteID, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://aquabot.dev/problems/" + http.StatusText(status),
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
