package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/HerbHall/aquabot/internal/config"
	"github.com/HerbHall/aquabot/pkg/llm"
	"github.com/HerbHall/aquabot/pkg/llm/llmtest"
	"github.com/HerbHall/aquabot/pkg/models"
	"github.com/HerbHall/aquabot/pkg/plugin"
	"github.com/HerbHall/aquabot/pkg/plugin/plugintest"
	"github.com/HerbHall/aquabot/pkg/roles"
	"go.uber.org/zap"
)

func TestContract(t *testing.T) {
	plugintest.TestPluginContract(t, func() plugin.Plugin {
		return NewWith(&fakeSource{}, fixed(models.QueryIntent{Kind: models.IntentGeneralHelp}), nil)
	}, nil)
}

// stubResolver serves plugins by role.
type stubResolver map[string][]plugin.Plugin

func (r stubResolver) Resolve(string) (plugin.Plugin, bool) { return nil, false }

func (r stubResolver) ResolveByRole(role string) []plugin.Plugin { return r[role] }

// telemetryPlugin is a minimal plugin filling the telemetry_source role.
type telemetryPlugin struct {
	*fakeSource
}

func (telemetryPlugin) Info() plugin.PluginInfo {
	return plugin.PluginInfo{Name: "telemetry", Version: "test", APIVersion: plugin.APIVersionCurrent}
}
func (telemetryPlugin) Init(context.Context, plugin.Dependencies) error { return nil }
func (telemetryPlugin) Start(context.Context) error                    { return nil }
func (telemetryPlugin) Stop(context.Context) error                     { return nil }

// llmPlugin is a minimal plugin filling the llm role.
type llmPlugin struct {
	telemetryPlugin
	fake *llmtest.Fake
}

func (p llmPlugin) Provider() llm.Provider { return p.fake }

func startedModule(t *testing.T, m *Module, deps plugin.Dependencies) *Module {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx := context.Background()
	if err := m.Init(ctx, deps); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return m
}

func TestStart_ResolvesCollaborators(t *testing.T) {
	src := &fakeSource{latest: &models.TelemetryDocument{
		ID: "d1", SentAt: now,
		Measurements: []models.Measurement{{Parameter: "ph", Value: 7.2, Unit: "pH"}},
	}}
	fake := llmtest.Script(`{"intent":"latest_status","parameter":"ph"}`, "O pH está em 7.2.")
	resolver := stubResolver{
		roles.RoleTelemetrySource: {telemetryPlugin{src}},
		roles.RoleLLM:             {llmPlugin{fake: fake}},
	}
	m := startedModule(t, New(), plugin.Dependencies{Plugins: resolver})

	res, err := m.Ask(context.Background(), roles.AskRequest{Message: "qual o ph?", DeviceID: "esp32-01", SiteID: "tanque-1"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Answer != "O pH está em 7.2." || res.Intent != models.IntentLatestStatus {
		t.Errorf("result = %+v", res)
	}
	if res.SessionID == "" {
		t.Error("Ask did not assign a session id")
	}
	if len(fake.Calls()) != 2 {
		t.Errorf("llm calls = %d, want classifier + generator", len(fake.Calls()))
	}
	if h := m.Health(context.Background()); h.Status != "healthy" {
		t.Errorf("Health = %+v", h)
	}
}

func TestStart_WithoutSource(t *testing.T) {
	m := New()
	if err := m.Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop()}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Error("expected error without a telemetry source")
	}
}

func TestStart_WithoutLlmIsDegraded(t *testing.T) {
	resolver := stubResolver{roles.RoleTelemetrySource: {telemetryPlugin{&fakeSource{}}}}
	m := startedModule(t, New(), plugin.Dependencies{Plugins: resolver})
	if h := m.Health(context.Background()); h.Status != "degraded" {
		t.Errorf("Health = %+v, want degraded", h)
	}
	_, err := m.Ask(context.Background(), roles.AskRequest{Message: "oi"})
	if !errors.Is(err, ErrClassifierUnavailable) {
		t.Errorf("Ask error = %v, want ErrClassifierUnavailable", err)
	}
}

func TestInit_RejectsUnknownGenerator(t *testing.T) {
	m := New()
	err := m.Init(context.Background(), plugin.Dependencies{
		Logger: zap.NewNop(),
		Config: config.FromMap(map[string]any{"generator": "magic"}),
	})
	if err == nil {
		t.Error("expected error for unknown generator")
	}
}

func postChat(t *testing.T, m *Module, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assistant/chat", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	m.handleChat(rec, req)
	return rec
}

func TestHandleChat(t *testing.T) {
	src := &fakeSource{points: map[models.WaterParameter]models.Series{
		models.ParameterPH: {point(-time.Hour, 7.2, "pH", models.ParameterPH)},
	}}
	classifier := ClassifierFunc(func(_ context.Context, q string) (models.QueryIntent, error) {
		if q == "oi" {
			return models.QueryIntent{Kind: models.IntentGeneralHelp}, nil
		}
		return intentOf(models.IntentMaxValue, models.ParameterPH), nil
	})
	m := NewWith(src, classifier, nil)
	startedModule(t, m, plugin.Dependencies{Store: testStore(t)})
	m.pipeline.periods.Now = func() time.Time { return now }

	rec := postChat(t, m, roles.AskRequest{SessionID: "sess-1", Message: "qual o ph máximo?", DeviceID: "esp32-01", SiteID: "tanque-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		SessionID string         `json:"session_id"`
		Answer    string         `json:"answer"`
		Intent    string         `json:"intent"`
		Outcome   string         `json:"outcome"`
		DataUsed  map[string]any `json:"data_used"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID != "sess-1" || resp.Intent != "max_value" || resp.Outcome != "answered" || resp.DataUsed == nil {
		t.Errorf("response = %+v", resp)
	}

	rec = postChat(t, m, roles.AskRequest{SessionID: "sess-1", Message: "oi"})
	if rec.Code != http.StatusOK {
		t.Fatalf("help status = %d", rec.Code)
	}
	var help map[string]any
	_ = json.NewDecoder(rec.Body).Decode(&help)
	if _, ok := help["data_used"]; ok {
		t.Errorf("help response carries data_used: %v", help)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/assistant/sessions/sess-1/messages", nil)
	req.SetPathValue("session_id", "sess-1")
	rec = httptest.NewRecorder()
	m.handleSessionMessages(rec, req)
	var msgs SessionMessagesResponse
	if err := json.NewDecoder(rec.Body).Decode(&msgs); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(msgs.Messages) != 4 || msgs.Messages[1].Intent != "max_value" {
		t.Errorf("messages = %+v", msgs.Messages)
	}
}

func TestHandleChat_Errors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name   string
		mod    *Module
		body   any
		status int
	}{
		{"bad json", NewWith(&fakeSource{}, fixed(intentOf(models.IntentLatestStatus, "")), nil), "not an object", http.StatusBadRequest},
		{"empty message", NewWith(&fakeSource{}, fixed(intentOf(models.IntentLatestStatus, "")), nil), roles.AskRequest{Message: " "}, http.StatusBadRequest},
		{"missing ids", NewWith(&fakeSource{}, fixed(intentOf(models.IntentLatestStatus, "")), nil), roles.AskRequest{Message: "agora?"}, http.StatusBadRequest},
		{"storage down", NewWith(&fakeSource{err: boom}, fixed(intentOf(models.IntentLatestStatus, "")), nil),
			roles.AskRequest{Message: "agora?", DeviceID: "d", SiteID: "s"}, http.StatusServiceUnavailable},
		{"classifier down", NewWith(&fakeSource{}, ClassifierFunc(func(context.Context, string) (models.QueryIntent, error) {
			return models.QueryIntent{}, boom
		}), nil), roles.AskRequest{Message: "agora?"}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			startedModule(t, tt.mod, plugin.Dependencies{})
			rec := postChat(t, tt.mod, tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestHandleSessionMessages_WithoutHistory(t *testing.T) {
	m := startedModule(t, NewWith(&fakeSource{}, nil, nil), plugin.Dependencies{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/assistant/sessions/x/messages", nil)
	req.SetPathValue("session_id", "x")
	rec := httptest.NewRecorder()
	m.handleSessionMessages(rec, req)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"messages":[]`)) {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}
