package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/HerbHall/aquabot/pkg/plugin"
	"go.uber.org/zap"
)

// mockPluginSource satisfies the PluginSource interface for testing.
type mockPluginSource struct {
	plugins []plugin.Plugin
	routes  map[string][]plugin.Route
}

func (m *mockPluginSource) AllRoutes() map[string][]plugin.Route {
	if m.routes != nil {
		return m.routes
	}
	return map[string][]plugin.Route{}
}

func (m *mockPluginSource) All() []plugin.Plugin {
	return m.plugins
}

// stubPlugin satisfies plugin.Plugin and plugin.HealthChecker.
type stubPlugin struct {
	info   plugin.PluginInfo
	health string
}

func (s *stubPlugin) Info() plugin.PluginInfo                         { return s.info }
func (s *stubPlugin) Init(context.Context, plugin.Dependencies) error { return nil }
func (s *stubPlugin) Start(context.Context) error                     { return nil }
func (s *stubPlugin) Stop(context.Context) error                      { return nil }
func (s *stubPlugin) Health(context.Context) plugin.HealthStatus {
	return plugin.HealthStatus{Status: s.health}
}

func newTestServer(ready ReadinessChecker, plugins ...plugin.Plugin) *Server {
	if plugins == nil {
		plugins = []plugin.Plugin{&stubPlugin{
			info:   plugin.PluginInfo{Name: "telemetry", Version: "1.0.0", Description: "stub", Roles: []string{"telemetry_source"}},
			health: "healthy",
		}}
	}
	return New(DefaultConfig(), &mockPluginSource{plugins: plugins}, zap.NewNop(), ready)
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	return w
}

func TestHandleHealthz(t *testing.T) {
	w := get(newTestServer(nil).mux, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]string
	_ = json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "alive" {
		t.Errorf("status = %q, want alive", body["status"])
	}
}

func TestHandleReadyz(t *testing.T) {
	tests := []struct {
		name       string
		ready      ReadinessChecker
		wantStatus int
		wantBody   string
	}{
		{"nil_checker", nil, http.StatusOK, "ready"},
		{"ready", func(context.Context) error { return nil }, http.StatusOK, "ready"},
		{"not_ready", func(context.Context) error { return errors.New("database unreachable") }, http.StatusServiceUnavailable, "not ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(newTestServer(tt.ready).mux, "/readyz")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body map[string]string
			_ = json.NewDecoder(w.Body).Decode(&body)
			if body["status"] != tt.wantBody {
				t.Errorf("status = %q, want %q", body["status"], tt.wantBody)
			}
			if tt.wantStatus != http.StatusOK && !strings.Contains(body["error"], "database unreachable") {
				t.Errorf("error = %q", body["error"])
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name   string
		health string
		want   string
	}{
		{"all_healthy", "healthy", "ok"},
		{"degraded_plugin", "degraded", "degraded"},
		{"unhealthy_plugin", "unhealthy", "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(nil, &stubPlugin{info: plugin.PluginInfo{Name: "assistant"}, health: tt.health})
			w := get(srv.mux, "/api/v1/health")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			var body HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tt.want || body.Service != "aquabot" {
				t.Errorf("body = %+v", body)
			}
			if body.Plugins["assistant"].Status != tt.health {
				t.Errorf("plugins = %v", body.Plugins)
			}
			if body.Version == nil {
				t.Error("expected version field")
			}
		})
	}
}

func TestHandlePlugins(t *testing.T) {
	w := get(newTestServer(nil).mux, "/api/v1/plugins")
	var plugins []PluginResponse
	if err := json.NewDecoder(w.Body).Decode(&plugins); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(plugins) != 1 || plugins[0].Name != "telemetry" || plugins[0].Version != "1.0.0" {
		t.Fatalf("plugins = %+v", plugins)
	}
	if len(plugins[0].Roles) != 1 {
		t.Errorf("roles = %v", plugins[0].Roles)
	}
}

func TestHandleMetrics(t *testing.T) {
	w := get(newTestServer(nil).mux, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("expected prometheus Go runtime metrics in /metrics output")
	}
}

func TestUnknownRoute_Problem(t *testing.T) {
	w := get(newTestServer(nil).Handler(), "/api/v1/nope")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var p Problem
	if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Type != ProblemTypeNotFound || p.Instance != "/api/v1/nope" {
		t.Errorf("problem = %+v", p)
	}
}

func TestMiddlewareChain_Integration(t *testing.T) {
	w := get(newTestServer(nil).Handler(), "/healthz")
	for _, h := range []string{"X-AquaBot-Version", "X-Request-ID"} {
		if w.Header().Get(h) == "" {
			t.Errorf("expected %s header from middleware", h)
		}
	}
	if v := w.Header().Get("X-Content-Type-Options"); v != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", v)
	}
}

func TestPluginRoutes_Mounted(t *testing.T) {
	plugins := &mockPluginSource{
		routes: map[string][]plugin.Route{
			"assistant": {{
				Method:  "POST",
				Path:    "/chat",
				Handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) },
			}},
			"ws": {{
				Method:  "GET",
				Path:    "/telemetry",
				Handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) },
			}},
		},
	}
	srv := New(DefaultConfig(), plugins, zap.NewNop(), nil)

	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/assistant/chat", http.NoBody))
	if w.Code != http.StatusAccepted {
		t.Errorf("assistant route status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if w := get(srv.mux, "/api/v1/ws/telemetry"); w.Code != http.StatusTeapot {
		t.Errorf("ws route status = %d, want %d", w.Code, http.StatusTeapot)
	}
}
