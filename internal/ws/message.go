package ws

import (
	"time"

	"github.com/HerbHall/aquabot/pkg/models"
)

// MessageType discriminates WebSocket messages.
type MessageType string

const (
	MessageTelemetry MessageType = "telemetry.received"
	MessageLatest    MessageType = "telemetry.latest"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      MessageType               `json:"type"`
	DeviceID  string                    `json:"device_id"`
	SiteID    string                    `json:"site_id"`
	Timestamp time.Time                 `json:"timestamp"`
	Data      *models.TelemetryDocument `json:"data"`
}

// Filter selects the messages a client receives. Empty fields match any
// value.
type Filter struct {
	DeviceID string
	SiteID   string
}

// Matches reports whether msg passes the filter.
func (f Filter) Matches(msg Message) bool {
	if f.DeviceID != "" && f.DeviceID != msg.DeviceID {
		return false
	}
	if f.SiteID != "" && f.SiteID != msg.SiteID {
		return false
	}
	return true
}

func telemetryMessage(kind MessageType, doc *models.TelemetryDocument, ts time.Time) Message {
	return Message{
		Type:      kind,
		DeviceID:  doc.DeviceID,
		SiteID:    doc.SiteID,
		Timestamp: ts,
		Data:      doc,
	}
}
