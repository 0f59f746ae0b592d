// Package roles defines typed contracts for plugin roles.
// Plugins that fill a role (declared via PluginInfo.Roles) implement the
// corresponding interface so callers can use PluginResolver.ResolveByRole
// followed by a type assertion.
package roles

import (
	"context"
	"errors"
	"time"

	"github.com/HerbHall/aquabot/pkg/llm"
	"github.com/HerbHall/aquabot/pkg/models"
)

// Role name constants match the strings used in PluginInfo.Roles.
const (
	RoleTelemetrySource = "telemetry_source"
	RoleTelemetrySink   = "telemetry_sink"
	RoleLLM             = "llm"
	RoleAssistant       = "assistant"
)

// ErrStorageUnavailable is wrapped by every telemetry backend failure.
// An empty result is never reported through this error.
var ErrStorageUnavailable = errors.New("telemetry storage unavailable")

// TelemetrySource is the read side of the telemetry store.
// Implementations must be safe for concurrent use.
type TelemetrySource interface {
	// FetchLatest returns the document with the greatest sent_at for the
	// device/site pair, ties broken by the greatest document id. It
	// returns nil, nil when nothing matches.
	FetchLatest(ctx context.Context, deviceID, siteID string) (*models.TelemetryDocument, error)

	// FetchRange returns one point per stored measurement of param whose
	// document sent_at lies in [start, end]. Order is not guaranteed.
	FetchRange(ctx context.Context, deviceID, siteID string, param models.WaterParameter, start, end time.Time) (models.Series, error)
}

// Ingest transports, used as the transport argument of Ingest.
const (
	TransportHTTP  = "http"
	TransportMQTT  = "mqtt"
	TransportKafka = "kafka"
	TransportSeed  = "seed"
)

// TelemetryIngester is the write side of the telemetry store, used by the
// HTTP, MQTT and Kafka ingest paths.
type TelemetryIngester interface {
	// Ingest stores doc, assigning an ID when empty, and returns the
	// stored document. transport names the path it arrived on.
	Ingest(ctx context.Context, transport string, doc models.TelemetryDocument) (*models.TelemetryDocument, error)

	// Decode parses a raw or signed transmission into a document.
	Decode(data []byte) (models.TelemetryDocument, error)
}

// LLMProvider is implemented by plugins that provide LLM capabilities.
// Resolve via PluginResolver.ResolveByRole(RoleLLM) then type-assert.
type LLMProvider interface {
	Provider() llm.Provider
}

// Assistant is implemented by the plugin that answers questions.
type Assistant interface {
	Ask(ctx context.Context, req AskRequest) (*AskResult, error)
}

// AskRequest is one inbound question.
type AskRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	DeviceID  string `json:"device_id,omitempty"`
	SiteID    string `json:"site_id,omitempty"`
}

// AskResult is the answer to an AskRequest. DataUsed echoes the data
// consulted whenever storage was queried, and is nil otherwise.
type AskResult struct {
	SessionID string            `json:"session_id"`
	Answer    string            `json:"answer"`
	Intent    models.IntentKind `json:"intent"`
	Outcome   string            `json:"outcome"`
	DataUsed  any               `json:"data_used,omitempty"`
}
