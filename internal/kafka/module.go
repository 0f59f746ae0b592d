// Package kafka consumes sensor transmissions from a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/HerbHall/aquabot/pkg/plugin"
	"github.com/HerbHall/aquabot/pkg/roles"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

// Module implements the Kafka ingest plugin.
type Module struct {
	logger   *zap.Logger
	cfg      Config
	plugins  plugin.PluginResolver
	ingester roles.TelemetryIngester

	mu      sync.Mutex
	reader  *kafkago.Reader
	closer  io.Closer
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New creates the Kafka plugin.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "kafka",
		Version:      "0.3.0",
		Description:  "Telemetry ingest from a Kafka consumer group",
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
			return fmt.Errorf("unmarshal kafka config: %w", err)
		}
	}
	if len(m.cfg.Brokers) == 0 {
		m.logger.Warn("kafka brokers not configured; telemetry ingest over kafka is off")
		return nil
	}
	if strings.TrimSpace(m.cfg.Topic) == "" {
		return errors.New("kafka topic must not be empty")
	}
	if strings.TrimSpace(m.cfg.GroupID) == "" {
		return errors.New("kafka group_id must not be empty")
	}
	switch m.cfg.StartOffset {
	case OffsetFirst, OffsetLast:
	default:
		return fmt.Errorf("kafka start_offset must be %q or %q, got %q", OffsetFirst, OffsetLast, m.cfg.StartOffset)
	}

	m.logger.Info("kafka module initialized",
		zap.Strings("brokers", m.cfg.Brokers),
		zap.String("topic", m.cfg.Topic),
		zap.String("group_id", m.cfg.GroupID),
	)
	return nil
}

func (m *Module) Start(_ context.Context) error {
	if len(m.cfg.Brokers) == 0 {
		m.logger.Info("kafka module started (no-op: no brokers configured)")
		return nil
	}
	if m.ingester == nil {
		m.ingester = m.resolveIngester()
		if m.ingester == nil {
			return errors.New("kafka ingest requires a telemetry sink")
		}
	}

	startOffset := kafkago.FirstOffset
	if m.cfg.StartOffset == OffsetLast {
		startOffset = kafkago.LastOffset
	}
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     m.cfg.Brokers,
		GroupID:     m.cfg.GroupID,
		Topic:       m.cfg.Topic,
		StartOffset: startOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	m.mu.Lock()
	m.reader = reader
	m.mu.Unlock()
	m.run(NewConsumer(reader, m.ingester, m.cfg, m.logger), reader)
	return nil
}

// run starts consumer in the background; closer is closed on Stop.
func (m *Module) run(consumer *Consumer, closer io.Closer) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.mu.Lock()
	m.closer, m.cancel, m.done, m.running = closer, cancel, done, true
	m.mu.Unlock()

	go func() {
		defer close(done)
		if err := consumer.Run(ctx); err != nil {
			m.logger.Error("kafka consumer exited", zap.Error(err))
		}
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()
}

func (m *Module) Stop(ctx context.Context) error {
	m.mu.Lock()
	closer, cancel, done := m.closer, m.cancel, m.done
	m.reader, m.closer, m.cancel, m.done = nil, nil, nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if closer != nil {
		if err := closer.Close(); err != nil {
			m.logger.Warn("close kafka reader", zap.Error(err))
		}
	}
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("kafka consumer did not stop: %w", ctx.Err())
	}
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	if len(m.cfg.Brokers) == 0 {
		return plugin.HealthStatus{Status: "healthy", Message: "no brokers configured (no-op mode)"}
	}
	m.mu.Lock()
	running, reader := m.running, m.reader
	m.mu.Unlock()
	if !running {
		return plugin.HealthStatus{Status: "unhealthy", Message: "kafka consumer is not running"}
	}
	details := map[string]string{"topic": m.cfg.Topic, "group_id": m.cfg.GroupID}
	if reader != nil {
		stats := reader.Stats()
		details["lag"] = strconv.FormatInt(stats.Lag, 10)
		details["messages"] = strconv.FormatInt(stats.Messages, 10)
	}
	return plugin.HealthStatus{Status: "healthy", Details: details}
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
