package mqtt

import (
	"context"
	"errors"
	"strings"

	"github.com/HerbHall/aquabot/internal/telemetry"
	"github.com/HerbHall/aquabot/pkg/models"
	"github.com/HerbHall/aquabot/pkg/roles"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Outcomes recorded for every received message.
const (
	outcomeStored    = "stored"
	outcomeInvalid   = "invalid"
	outcomeMismatch  = "topic_mismatch"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
)

// handleMessage stores one transmission received on the telemetry tree.
// Messages published to <prefix>/telemetry/<site_id>/<device_id> must name
// the same site and device as their payload.
func (m *Module) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	outcome := m.ingest(msg.Topic(), msg.Payload())
	messagesTotal.WithLabelValues(outcome).Inc()
}

func (m *Module) ingest(topic string, payload []byte) string {
	doc, err := m.ingester.Decode(payload)
	if err != nil {
		m.logger.Warn("mqtt transmission rejected",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return outcomeInvalid
	}

	if site, device, ok := m.topicIdentity(topic); ok && (site != doc.SiteID || device != doc.DeviceID) {
		m.logger.Warn("mqtt transmission does not match its topic",
			zap.String("topic", topic),
			zap.String("site_id", doc.SiteID),
			zap.String("device_id", doc.DeviceID),
		)
		return outcomeMismatch
	}

	ctx, cancel := context.WithTimeout(m.baseContext(), m.cfg.Timeout)
	defer cancel()

	stored, err := m.ingester.Ingest(ctx, roles.TransportMQTT, doc)
	switch {
	case errors.Is(err, telemetry.ErrDuplicateDocument):
		return outcomeDuplicate
	case err != nil:
		m.logger.Error("mqtt transmission not stored",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return outcomeFailed
	}
	logStored(m.logger, topic, stored)
	return outcomeStored
}

// topicIdentity extracts site and device from a fully qualified telemetry
// topic. Shorter topics carry no identity.
func (m *Module) topicIdentity(topic string) (siteID, deviceID string, ok bool) {
	rest, found := strings.CutPrefix(topic, m.cfg.TopicPrefix+"/telemetry/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (m *Module) baseContext() context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}

func logStored(logger *zap.Logger, topic string, doc *models.TelemetryDocument) {
	logger.Debug("mqtt transmission stored",
		zap.String("topic", topic),
		zap.String("id", doc.ID),
		zap.String("device_id", doc.DeviceID),
		zap.String("site_id", doc.SiteID),
	)
}
