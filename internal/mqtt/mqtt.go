// Package mqtt ingests sensor transmissions from an MQTT broker and
// republishes stored readings for Home Assistant.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/HerbHall/aquabot/internal/telemetry"
	"github.com/HerbHall/aquabot/internal/water"
	"github.com/HerbHall/aquabot/pkg/models"
	"github.com/HerbHall/aquabot/pkg/plugin"
	"github.com/HerbHall/aquabot/pkg/roles"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
)

// Module implements the MQTT plugin. It subscribes to the telemetry topic
// tree and stores every valid transmission through the telemetry sink, and
// optionally republishes stored readings as retained state topics with
// Home Assistant discovery.
type Module struct {
	logger   *zap.Logger
	cfg      Config
	plugins  plugin.PluginResolver
	ingester roles.TelemetryIngester

	mu     sync.RWMutex
	client pahomqtt.Client
	broker *Broker
	ctx    context.Context
	cancel context.CancelFunc

	announced sync.Map // discovery topics already published
}

// New creates a new MQTT plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "mqtt",
		Version:      "0.3.0",
		Description:  "Telemetry ingest and state publishing over MQTT",
		Dependencies: []string{"telemetry"},
		Roles:        []string{"integration"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.plugins = deps.Plugins

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal mqtt config: %w", err)
		}
	}
	if m.cfg.Timeout <= 0 {
		m.cfg.Timeout = DefaultConfig().Timeout
	}
	if m.cfg.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", m.cfg.QoS)
	}
	if m.cfg.TopicPrefix == "" {
		return errors.New("mqtt topic_prefix must not be empty")
	}

	if m.cfg.Broker == "" && !m.cfg.EmbeddedBroker {
		m.logger.Warn("MQTT broker not configured; telemetry ingest over MQTT is off",
			zap.String("component", "mqtt"),
		)
	}

	m.logger.Info("mqtt module initialized",
		zap.String("broker", m.cfg.Broker),
		zap.Bool("embedded_broker", m.cfg.EmbeddedBroker),
		zap.String("client_id", m.cfg.ClientID),
		zap.String("topic_filter", m.cfg.TelemetryFilter()),
		zap.Uint8("qos", m.cfg.QoS),
		zap.Bool("ha_discovery", m.cfg.HADiscovery),
	)
	return nil
}

func (m *Module) Start(_ context.Context) error {
	if m.cfg.Broker == "" && !m.cfg.EmbeddedBroker {
		m.logger.Info("mqtt module started (no-op: no broker configured)")
		return nil
	}

	if m.ingester == nil {
		m.ingester = m.resolveIngester()
		if m.ingester == nil {
			return errors.New("mqtt ingest requires a telemetry sink")
		}
	}

	brokerURL := m.cfg.Broker
	if m.cfg.EmbeddedBroker {
		b, err := NewBroker(m.cfg.EmbeddedAddr)
		if err != nil {
			return fmt.Errorf("embedded mqtt broker: %w", err)
		}
		if err := b.Serve(); err != nil {
			_ = b.Close()
			return fmt.Errorf("serve embedded mqtt broker: %w", err)
		}
		m.broker = b
		if brokerURL == "" {
			brokerURL = b.URL()
		}
		m.logger.Info("embedded mqtt broker listening", zap.String("url", b.URL()))
	}

	ctx, cancel := context.WithCancel(context.Background())

	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(m.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(m.cfg.Timeout).
		SetOnConnectHandler(m.onConnect).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			m.logger.Warn("mqtt connection lost", zap.Error(err))
		})

	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password) //nolint:gosec // G101: config field
	}

	client := pahomqtt.NewClient(opts)
	m.mu.Lock()
	m.client, m.ctx, m.cancel = client, ctx, cancel
	m.mu.Unlock()
	token := client.Connect()

	switch {
	case !token.WaitTimeout(m.cfg.Timeout):
		m.logger.Warn("mqtt connection timed out; will reconnect in background")
	case token.Error() != nil:
		m.logger.Warn("mqtt connection failed; will reconnect in background",
			zap.Error(token.Error()),
		)
	default:
		m.logger.Info("mqtt connected to broker", zap.String("broker", brokerURL))
	}
	return nil
}

// onConnect (re)subscribes to the telemetry tree after every connect.
func (m *Module) onConnect(client pahomqtt.Client) {
	filter := m.cfg.TelemetryFilter()
	token := client.Subscribe(filter, m.cfg.QoS, m.handleMessage)
	if !token.WaitTimeout(m.cfg.Timeout) {
		m.logger.Warn("mqtt subscribe timed out", zap.String("topic", filter))
		return
	}
	if err := token.Error(); err != nil {
		m.logger.Error("mqtt subscribe failed", zap.String("topic", filter), zap.Error(err))
		return
	}
	m.logger.Info("mqtt subscribed", zap.String("topic", filter))
}

func (m *Module) Stop(_ context.Context) error {
	m.mu.Lock()
	client, broker, cancel := m.client, m.broker, m.cancel
	m.client, m.broker = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
		m.logger.Info("mqtt disconnected")
	}
	if broker != nil {
		if err := broker.Close(); err != nil {
			m.logger.Warn("close embedded mqtt broker", zap.Error(err))
		}
	}
	return nil
}

// Subscriptions implements plugin.EventSubscriber.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: telemetry.TopicTelemetryReceived, Handler: m.publishReadings},
	}
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	if m.cfg.Broker == "" && !m.cfg.EmbeddedBroker {
		return plugin.HealthStatus{
			Status:  "healthy",
			Message: "no broker configured (no-op mode)",
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	details := map[string]string{"embedded_broker": strconv.FormatBool(m.broker != nil)}
	if m.client == nil || !m.client.IsConnected() {
		return plugin.HealthStatus{
			Status:  "degraded",
			Message: "not connected to MQTT broker",
			Details: details,
		}
	}
	return plugin.HealthStatus{
		Status:  "healthy",
		Message: "subscribed to " + m.cfg.TelemetryFilter(),
		Details: details,
	}
}

func (m *Module) resolveIngester() roles.TelemetryIngester {
	if m.plugins == nil {
		return nil
	}
	for _, p := range m.plugins.ResolveByRole(roles.RoleTelemetrySink) {
		if in, ok := p.(roles.TelemetryIngester); ok {
			return in
		}
	}
	return nil
}

// publishReadings republishes a stored document as retained per-parameter
// state, announcing each new entity to Home Assistant first.
func (m *Module) publishReadings(_ context.Context, event plugin.Event) {
	if !m.cfg.PublishState && !m.cfg.HADiscovery {
		return
	}
	var doc models.TelemetryDocument
	switch p := event.Payload.(type) {
	case models.TelemetryDocument:
		doc = p
	case *models.TelemetryDocument:
		if p == nil {
			return
		}
		doc = *p
	default:
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil || !m.client.IsConnected() {
		return
	}

	for param, value := range water.Readings(doc) {
		if m.cfg.HADiscovery {
			m.announce(doc.SiteID, doc.DeviceID, param)
		}
		m.publish(m.cfg.StateTopic(doc.SiteID, doc.DeviceID, string(param)), []byte(strconv.FormatFloat(value, 'f', -1, 64)))
		if check, ok := water.CheckIdeal(param, value); ok {
			state := "OFF"
			if !check.Within {
				state = "ON"
			}
			m.publish(m.cfg.RangeTopic(doc.SiteID, doc.DeviceID, string(param)), []byte(state))
		}
	}
}

// announce publishes discovery configs once per entity and process.
func (m *Module) announce(siteID, deviceID string, param models.WaterParameter) {
	for _, cfg := range BuildSensorDiscoveryConfigs(m.cfg, siteID, deviceID, param) {
		if _, seen := m.announced.LoadOrStore(cfg.Topic, struct{}{}); seen {
			continue
		}
		if !m.publish(cfg.Topic, cfg.Payload) {
			m.announced.Delete(cfg.Topic)
		}
	}
}

// publish sends a retained message and reports whether the broker took it.
// Callers hold m.mu.
func (m *Module) publish(topic string, payload []byte) bool {
	token := m.client.Publish(topic, m.cfg.QoS, true, payload)
	if !token.WaitTimeout(m.cfg.Timeout) {
		m.logger.Warn("mqtt publish timed out", zap.String("topic", topic))
		return false
	}
	if err := token.Error(); err != nil {
		m.logger.Warn("mqtt publish failed", zap.String("topic", topic), zap.Error(err))
		return false
	}
	publishedTotal.Inc()
	m.logger.Debug("mqtt state published", zap.String("topic", topic))
	return true
}
