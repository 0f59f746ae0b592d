// Package webhook posts water-quality alerts to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/HerbHall/aquabot/internal/assistant"
	"github.com/HerbHall/aquabot/internal/telemetry"
	"github.com/HerbHall/aquabot/internal/version"
	"github.com/HerbHall/aquabot/internal/water"
	"github.com/HerbHall/aquabot/pkg/models"
	"github.com/HerbHall/aquabot/pkg/plugin"
	"github.com/HerbHall/aquabot/pkg/roles"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
)

// Event names sent in WebhookPayload.Event.
const (
	EventOutOfRange = "telemetry.out_of_range"
	EventAnswered   = assistant.TopicAnswered
)

var deliveriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "aquabot_webhook_deliveries_total",
		Help: "Webhook deliveries by event and outcome.",
	},
	[]string{"event", "outcome"},
)

func init() {
	prometheus.MustRegister(deliveriesTotal)
}

// Config holds the webhook plugin configuration.
type Config struct {
	URL     string
	Timeout time.Duration
	Enabled bool
	// Cooldown is the minimum time between two alerts for the same
	// parameter of one device while it stays out of range.
	Cooldown       time.Duration
	ForwardAnswers bool
}

// Module implements the webhook notifier plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config
	client *http.Client
	now    func() time.Time

	mu      sync.Mutex
	alerted map[string]time.Time
}

// New creates a new webhook plugin instance.
func New() *Module {
	return &Module{now: time.Now, alerted: make(map[string]time.Time)}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "webhook",
		Version:      "0.3.0",
		Description:  "Posts out-of-range water alerts to a webhook URL",
		Dependencies: []string{"telemetry"},
		Roles:        []string{"notification"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	// Defaults.
	m.cfg = Config{
		Timeout:  10 * time.Second,
		Enabled:  true,
		Cooldown: 15 * time.Minute,
	}

	if deps.Config != nil {
		if u := deps.Config.GetString("url"); u != "" {
			m.cfg.URL = u
		}
		if d := deps.Config.GetDuration("timeout"); d > 0 {
			m.cfg.Timeout = d
		}
		if deps.Config.IsSet("enabled") {
			m.cfg.Enabled = deps.Config.GetBool("enabled")
		}
		if deps.Config.IsSet("cooldown") {
			m.cfg.Cooldown = deps.Config.GetDuration("cooldown")
		}
		m.cfg.ForwardAnswers = deps.Config.GetBool("forward_answers")
	}

	m.client = &http.Client{Timeout: m.cfg.Timeout}

	if m.cfg.URL == "" {
		m.logger.Warn("webhook URL not configured; alerts will be dropped",
			zap.String("component", "webhook"),
		)
	}

	m.logger.Info("webhook module initialized",
		zap.String("url", m.cfg.URL),
		zap.Duration("timeout", m.cfg.Timeout),
		zap.Duration("cooldown", m.cfg.Cooldown),
		zap.Bool("enabled", m.cfg.Enabled),
		zap.Bool("forward_answers", m.cfg.ForwardAnswers),
	)
	return nil
}

func (m *Module) Start(_ context.Context) error {
	m.logger.Info("webhook module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("webhook module stopped")
	return nil
}

// Subscriptions implements plugin.EventSubscriber.
func (m *Module) Subscriptions() []plugin.Subscription {
	subs := []plugin.Subscription{
		{Topic: telemetry.TopicTelemetryReceived, Handler: m.handleTelemetry},
	}
	if m.cfg.ForwardAnswers {
		subs = append(subs, plugin.Subscription{Topic: assistant.TopicAnswered, Handler: m.handleAnswered})
	}
	return subs
}

// WebhookPayload is the JSON body sent to the webhook URL.
type WebhookPayload struct {
	Event     string `json:"event"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// Alert is the data of an EventOutOfRange payload.
type Alert struct {
	DocumentID string         `json:"document_id"`
	DeviceID   string         `json:"device_id"`
	SiteID     string         `json:"site_id"`
	SentAt     time.Time      `json:"sent_at"`
	Readings   []AlertReading `json:"readings"`
}

// AlertReading is one parameter outside its ideal range.
type AlertReading struct {
	Parameter models.WaterParameter `json:"parameter"`
	Label     string                `json:"label"`
	Value     float64               `json:"value"`
	Min       float64               `json:"min"`
	Max       float64               `json:"max"`
	Unit      string                `json:"unit"`
}

func (m *Module) handleTelemetry(ctx context.Context, event plugin.Event) {
	if !m.cfg.Enabled || m.cfg.URL == "" {
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

	alert, ok := m.evaluate(doc)
	if !ok {
		return
	}
	m.deliver(ctx, WebhookPayload{
		Event:     EventOutOfRange,
		Source:    event.Source,
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Data:      alert,
	})
}

func (m *Module) handleAnswered(ctx context.Context, event plugin.Event) {
	if !m.cfg.Enabled || m.cfg.URL == "" {
		return
	}
	if _, ok := event.Payload.(roles.AskResult); !ok {
		return
	}
	m.deliver(ctx, WebhookPayload{
		Event:     EventAnswered,
		Source:    event.Source,
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Data:      event.Payload,
	})
}

// evaluate returns the readings of doc that warrant an alert. A parameter
// alerts when it leaves its range and again after each cooldown while it
// stays out; returning inside the range clears it.
func (m *Module) evaluate(doc models.TelemetryDocument) (Alert, bool) {
	now := m.now()
	alert := Alert{
		DocumentID: doc.ID,
		DeviceID:   doc.DeviceID,
		SiteID:     doc.SiteID,
		SentAt:     doc.SentAt,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for param, value := range water.Readings(doc) {
		check, ok := water.CheckIdeal(param, value)
		if !ok {
			continue
		}
		key := fmt.Sprintf("%s/%s/%s", doc.SiteID, doc.DeviceID, param)
		if check.Within {
			delete(m.alerted, key)
			continue
		}
		if last, seen := m.alerted[key]; seen && now.Sub(last) < m.cfg.Cooldown {
			continue
		}
		m.alerted[key] = now
		alert.Readings = append(alert.Readings, AlertReading{
			Parameter: param,
			Label:     param.Label(),
			Value:     value,
			Min:       check.Min,
			Max:       check.Max,
			Unit:      check.Unit,
		})
	}
	sort.Slice(alert.Readings, func(i, j int) bool {
		return alert.Readings[i].Parameter < alert.Readings[j].Parameter
	})
	return alert, len(alert.Readings) > 0
}

func (m *Module) deliver(ctx context.Context, payload WebhookPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error("failed to marshal webhook payload",
			zap.String("event", payload.Event),
			zap.Error(err),
		)
		deliveriesTotal.WithLabelValues(payload.Event, "error").Inc()
		return
	}
	m.send(ctx, body, payload.Event)
}

func (m *Module) send(ctx context.Context, body []byte, event string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.URL, bytes.NewReader(body))
	if err != nil {
		m.logger.Error("failed to create webhook request", zap.Error(err))
		deliveriesTotal.WithLabelValues(event, "error").Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "AquaBot-Webhook/"+version.Short())

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Warn("webhook delivery failed",
			zap.String("url", m.cfg.URL),
			zap.String("event", event),
			zap.Error(err),
		)
		deliveriesTotal.WithLabelValues(event, "error").Inc()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		m.logger.Warn("webhook endpoint returned error",
			zap.String("url", m.cfg.URL),
			zap.String("event", event),
			zap.Int("status_code", resp.StatusCode),
		)
		deliveriesTotal.WithLabelValues(event, "rejected").Inc()
		return
	}

	deliveriesTotal.WithLabelValues(event, "delivered").Inc()
	m.logger.Debug("webhook delivered",
		zap.String("event", event),
		zap.Int("status_code", resp.StatusCode),
	)
}
