package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/aquabot/pkg/models"
	"github.com/HerbHall/aquabot/pkg/plugin"
	"github.com/HerbHall/aquabot/pkg/roles"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin           = (*Module)(nil)
	_ plugin.HTTPProvider     = (*Module)(nil)
	_ plugin.HealthChecker    = (*Module)(nil)
	_ roles.TelemetrySource   = (*Module)(nil)
	_ roles.TelemetryIngester = (*Module)(nil)
)

// pinger is implemented by backends that can check connectivity.
type pinger interface {
	Ping(ctx context.Context) error
}

// Module implements the telemetry plugin: it owns the repository and the
// ingest endpoint, and serves reads to the assistant.
type Module struct {
	logger  *zap.Logger
	cfg     Config
	repo    Repository
	decoder *Decoder
	bus     plugin.EventBus
	now     func() time.Time
}

// New creates a telemetry plugin whose backend is chosen from config.
func New() *Module {
	return &Module{now: time.Now}
}

// NewWithRepository creates a telemetry plugin bound to repo, ignoring the
// configured driver.
func NewWithRepository(repo Repository) *Module {
	return &Module{repo: repo, now: time.Now}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "telemetry",
		Version:     "0.3.0",
		Description: "Water-quality telemetry storage and ingest",
		Roles:       []string{roles.RoleTelemetrySource, roles.RoleTelemetrySink},
		Required:    true,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal telemetry config: %w", err)
		}
	}
	if m.cfg.MaxBodyBytes <= 0 {
		m.cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	decoder, err := NewDecoder(m.cfg.VerifyKey, m.cfg.RequireSignature)
	if err != nil {
		return fmt.Errorf("telemetry decoder: %w", err)
	}
	m.decoder = decoder

	if m.repo == nil {
		repo, err := m.openRepository(ctx, deps.Store)
		if err != nil {
			return err
		}
		m.repo = repo
	}

	m.logger.Info("telemetry plugin initialized",
		zap.String("driver", m.cfg.Driver),
		zap.Bool("signature_verification", m.cfg.VerifyKey != ""),
	)
	return nil
}

func (m *Module) openRepository(ctx context.Context, store plugin.Store) (Repository, error) {
	switch m.cfg.Driver {
	case DriverSQLite, "":
		if store == nil {
			return nil, errors.New("sqlite driver requires the shared store")
		}
		if err := store.Migrate(ctx, "telemetry", migrations()); err != nil {
			return nil, fmt.Errorf("telemetry migrations: %w", err)
		}
		return NewSQLiteRepository(store.DB()), nil
	case DriverPostgres:
		if m.cfg.PostgresDSN == "" {
			return nil, errors.New("postgres driver requires postgres_dsn")
		}
		return NewPostgresRepository(ctx, m.cfg.PostgresDSN)
	case DriverMemory:
		return NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unknown telemetry driver %q", m.cfg.Driver)
	}
}

func (m *Module) Start(_ context.Context) error {
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.repo == nil {
		return nil
	}
	if err := m.repo.Close(); err != nil {
		m.logger.Warn("close telemetry repository", zap.Error(err))
	}
	m.logger.Info("telemetry plugin stopped")
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	details := map[string]string{"driver": m.cfg.Driver}
	if p, ok := m.repo.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return plugin.HealthStatus{Status: "unhealthy", Message: err.Error(), Details: details}
		}
	}
	return plugin.HealthStatus{Status: "healthy", Details: details}
}

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "POST", Path: "/ingest", Handler: m.handleIngest},
		{Method: "GET", Path: "/latest", Handler: m.handleLatest},
		{Method: "GET", Path: "/series", Handler: m.handleSeries},
		{Method: "GET", Path: "/ideal-ranges", Handler: m.handleIdealRanges},
	}
}

// FetchLatest implements roles.TelemetrySource.
func (m *Module) FetchLatest(ctx context.Context, deviceID, siteID string) (*models.TelemetryDocument, error) {
	return m.repo.FetchLatest(ctx, deviceID, siteID)
}

// FetchRange implements roles.TelemetrySource.
func (m *Module) FetchRange(ctx context.Context, deviceID, siteID string, param models.WaterParameter, start, end time.Time) (models.Series, error) {
	return m.repo.FetchRange(ctx, deviceID, siteID, param, start, end)
}

// Decode implements roles.TelemetryIngester.
func (m *Module) Decode(data []byte) (models.TelemetryDocument, error) {
	doc, err := m.decoder.Decode(data)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, ErrBadSignature) {
			reason = "signature"
		}
		rejectedTotal.WithLabelValues(reason).Inc()
	}
	return doc, err
}

// Ingest implements roles.TelemetryIngester.
func (m *Module) Ingest(ctx context.Context, transport string, doc models.TelemetryDocument) (*models.TelemetryDocument, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if err := m.repo.Store(ctx, doc); err != nil {
		return nil, err
	}
	ingestedTotal.WithLabelValues(transport).Inc()

	m.logger.Debug("telemetry stored",
		zap.String("id", doc.ID),
		zap.String("device_id", doc.DeviceID),
		zap.String("site_id", doc.SiteID),
		zap.String("transport", transport),
		zap.Int("measurements", len(doc.Measurements)),
	)

	if m.bus != nil {
		m.bus.PublishAsync(context.WithoutCancel(ctx), plugin.Event{
			Topic:     TopicTelemetryReceived,
			Source:    "telemetry",
			Timestamp: m.now(),
			Payload:   doc,
		})
	}
	return &doc, nil
}
