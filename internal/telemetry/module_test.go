package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/HerbHall/aquabot/internal/event"
	"github.com/HerbHall/aquabot/pkg/models"
	"github.com/HerbHall/aquabot/pkg/plugin"
	"github.com/HerbHall/aquabot/pkg/plugin/plugintest"
	"github.com/HerbHall/aquabot/pkg/roles"
	"go.uber.org/zap"
)

func TestContract(t *testing.T) {
	plugintest.TestPluginContract(t, func() plugin.Plugin {
		return NewWithRepository(NewMemoryRepository())
	}, nil)
}

func newTestModule(t *testing.T, bus plugin.EventBus) (*Module, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	m := NewWithRepository(repo)
	m.now = func() time.Time { return base.Add(3 * time.Hour) }
	if err := m.Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop(), Bus: bus}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return m, repo
}

func TestInit_SqliteRequiresStore(t *testing.T) {
	m := New()
	err := m.Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop()})
	if err == nil {
		t.Fatal("expected error without a shared store")
	}
}

func TestIngest_AssignsIdAndPublishes(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	received := make(chan models.TelemetryDocument, 1)
	bus.Subscribe(TopicTelemetryReceived, func(_ context.Context, ev plugin.Event) {
		received <- ev.Payload.(models.TelemetryDocument)
	})
	m, repo := newTestModule(t, bus)

	stored, err := m.Ingest(context.Background(), roles.TransportMQTT, doc("", 0, ph(7.2)))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if stored.ID == "" {
		t.Fatal("Ingest did not assign an ID")
	}
	bus.Wait()

	select {
	case got := <-received:
		if got.ID != stored.ID {
			t.Errorf("event payload ID = %q, want %q", got.ID, stored.ID)
		}
	default:
		t.Fatal("no telemetry.received event")
	}

	latest, _ := repo.FetchLatest(context.Background(), "esp32-01", "tanque-1")
	if latest == nil || latest.ID != stored.ID {
		t.Errorf("repo latest = %+v", latest)
	}
}

func TestHandleIngest(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid", rawTransmission, http.StatusCreated},
		{"invalid", `{"device_id": "x"}`, http.StatusBadRequest},
		{"oversize", `{"device_id": "` + strings.Repeat("a", 70*1024) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestModule(t, nil)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/telemetry/ingest", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			m.handleIngest(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.status == http.StatusCreated {
				var resp IngestResponse
				if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if resp.ID == "" || resp.Measurements != 2 {
					t.Errorf("response = %+v", resp)
				}
			} else if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestHandleIngest_BadSignature(t *testing.T) {
	pub, _ := newKey(t)
	_, foreign := newKey(t)
	m, _ := newTestModule(t, nil)
	d, err := NewDecoder(pub, true)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	m.decoder = d

	req := httptest.NewRequest(http.MethodPost, "/api/v1/telemetry/ingest", strings.NewReader(string(signed(t, foreign, rawTransmission))))
	rec := httptest.NewRecorder()
	m.handleIngest(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHandleIngest_Duplicate(t *testing.T) {
	m, repo := newTestModule(t, nil)
	existing := doc("fixed-id", 0, ph(7))
	_ = repo.Store(context.Background(), existing)

	_, err := m.Ingest(context.Background(), roles.TransportHTTP, existing)
	rec := httptest.NewRecorder()
	m.writeStoreError(rec, err)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestHandleLatest(t *testing.T) {
	m, repo := newTestModule(t, nil)

	rec := httptest.NewRecorder()
	m.handleLatest(rec, httptest.NewRequest(http.MethodGet, "/latest?device_id=esp32-01", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing site status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	m.handleLatest(rec, httptest.NewRequest(http.MethodGet, "/latest?device_id=esp32-01&site_id=tanque-1", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("empty status = %d, want 404", rec.Code)
	}

	_ = repo.Store(context.Background(), doc("d1", 0, ph(7.2)))
	rec = httptest.NewRecorder()
	m.handleLatest(rec, httptest.NewRequest(http.MethodGet, "/latest?device_id=esp32-01&site_id=tanque-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got models.TelemetryDocument
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "d1" {
		t.Errorf("ID = %q, want d1", got.ID)
	}
}

func TestHandleSeries(t *testing.T) {
	m, repo := newTestModule(t, nil)
	ctx := context.Background()
	for i, v := range []float64{20, 22, 25} {
		d := doc("t"+string(rune('0'+i)), time.Duration(i)*time.Hour,
			models.Measurement{Parameter: "temperatura", Value: v, Unit: "°C"})
		_ = repo.Store(ctx, d)
	}

	rec := httptest.NewRecorder()
	m.handleSeries(rec, httptest.NewRequest(http.MethodGet,
		"/series?device_id=esp32-01&site_id=tanque-1&parameter=Temperatura&days=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp SeriesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Parameter != models.ParameterTemperature || len(resp.Points) != 3 {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Points[0].Value != 20 || resp.Points[2].Value != 25 {
		t.Errorf("points not chronological: %+v", resp.Points)
	}
	if resp.Summary == nil || resp.Summary.Max != 25 || resp.Summary.Count != 3 {
		t.Errorf("Summary = %+v", resp.Summary)
	}
	if resp.Trend == nil || resp.Trend.Direction != models.DirectionUp || resp.Trend.Delta != 5 {
		t.Errorf("Trend = %+v", resp.Trend)
	}
	if resp.Ideal == nil || resp.Ideal.Min != 20 {
		t.Errorf("Ideal = %+v", resp.Ideal)
	}
}

func TestHandleSeries_Validation(t *testing.T) {
	m, _ := newTestModule(t, nil)
	for _, q := range []string{
		"device_id=d&site_id=s&parameter=oxygen",
		"device_id=d&site_id=s&parameter=ph&days=two",
		"device_id=d&site_id=s&parameter=ph&start=yesterday",
		"site_id=s&parameter=ph",
	} {
		rec := httptest.NewRecorder()
		m.handleSeries(rec, httptest.NewRequest(http.MethodGet, "/series?"+q, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestHandleSeries_EmptyHasPointsArray(t *testing.T) {
	m, _ := newTestModule(t, nil)
	rec := httptest.NewRecorder()
	m.handleSeries(rec, httptest.NewRequest(http.MethodGet, "/series?device_id=d&site_id=s&parameter=tds", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"points":[]`) {
		t.Errorf("body = %s, want empty points array", rec.Body.String())
	}
}

func TestHandleIdealRanges(t *testing.T) {
	m, _ := newTestModule(t, nil)
	rec := httptest.NewRecorder()
	m.handleIdealRanges(rec, httptest.NewRequest(http.MethodGet, "/ideal-ranges", nil))
	var got []models.IdealRange
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 4 || got[0].Parameter != models.ParameterPH {
		t.Errorf("ranges = %+v", got)
	}
}

func TestHealth(t *testing.T) {
	m, _ := newTestModule(t, nil)
	if h := m.Health(context.Background()); h.Status != "healthy" {
		t.Errorf("Health = %+v", h)
	}
}
