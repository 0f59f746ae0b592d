// Package ws streams stored telemetry to WebSocket clients as it arrives.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/HerbHall/aquabot/internal/telemetry"
	"github.com/HerbHall/aquabot/pkg/models"
	"github.com/HerbHall/aquabot/pkg/plugin"
	"github.com/HerbHall/aquabot/pkg/roles"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.HTTPProvider    = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
)

// Module implements the live telemetry stream plugin.
type Module struct {
	logger  *zap.Logger
	cfg     Config
	hub     *Hub
	plugins plugin.PluginResolver
	source  roles.TelemetrySource
}

// New creates the WebSocket plugin.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "ws",
		Version:      "0.3.0",
		Description:  "Live telemetry over WebSocket",
		Dependencies: []string{"telemetry"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.plugins = deps.Plugins

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal ws config: %w", err)
		}
	}
	if m.cfg.SendBuffer <= 0 {
		m.cfg.SendBuffer = DefaultConfig().SendBuffer
	}
	if m.cfg.WriteTimeout <= 0 {
		m.cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	m.hub = NewHub(m.logger)
	return nil
}

func (m *Module) Start(_ context.Context) error {
	if m.plugins == nil {
		return nil
	}
	for _, p := range m.plugins.ResolveByRole(roles.RoleTelemetrySource) {
		if src, ok := p.(roles.TelemetrySource); ok {
			m.source = src
			break
		}
	}
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.hub != nil {
		m.hub.CloseAll()
	}
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	return plugin.HealthStatus{
		Status:  "healthy",
		Details: map[string]string{"clients": strconv.Itoa(m.hub.ClientCount())},
	}
}

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/telemetry", Handler: m.handleTelemetryStream},
	}
}

// Subscriptions implements plugin.EventSubscriber.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: telemetry.TopicTelemetryReceived, Handler: m.onTelemetry},
	}
}

func (m *Module) onTelemetry(_ context.Context, event plugin.Event) {
	var doc *models.TelemetryDocument
	switch p := event.Payload.(type) {
	case models.TelemetryDocument:
		doc = &p
	case *models.TelemetryDocument:
		doc = p
	default:
		return
	}
	if doc == nil {
		return
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	m.hub.Broadcast(telemetryMessage(MessageTelemetry, doc, ts))
}

// handleTelemetryStream upgrades the connection and streams telemetry for
// the optional device_id and site_id filters.
func (m *Module) handleTelemetryStream(w http.ResponseWriter, r *http.Request) {
	filter := Filter{
		DeviceID: r.URL.Query().Get("device_id"),
		SiteID:   r.URL.Query().Get("site_id"),
	}

	// Streams outlive the server write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		m.logger.Debug("clear write deadline", zap.Error(err))
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: m.cfg.OriginPatterns,
	})
	if err != nil {
		m.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:   conn,
		filter: filter,
		send:   make(chan Message, m.cfg.SendBuffer),
		logger: m.logger,
	}
	m.hub.Register(client)
	m.sendLatest(r.Context(), client)

	// The write pump ends when the hub drops the client; cancelling then
	// unblocks the read pump.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	done := make(chan struct{})
	go func() {
		client.writePump(ctx, m.cfg.WriteTimeout)
		cancel()
		close(done)
	}()

	client.readPump(ctx)

	m.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}

// sendLatest queues the newest stored document for a client watching a
// single device and site.
func (m *Module) sendLatest(ctx context.Context, c *Client) {
	if !m.cfg.SendLatest || m.source == nil || c.filter.DeviceID == "" || c.filter.SiteID == "" {
		return
	}
	doc, err := m.source.FetchLatest(ctx, c.filter.DeviceID, c.filter.SiteID)
	if err != nil {
		m.logger.Warn("fetch latest telemetry for stream", zap.Error(err))
		return
	}
	if doc == nil {
		return
	}
	select {
	case c.send <- telemetryMessage(MessageLatest, doc, time.Now()):
	default:
	}
}
