package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/HerbHall/aquabot/internal/assistant"
	"github.com/HerbHall/aquabot/internal/config"
	"github.com/HerbHall/aquabot/internal/event"
	"github.com/HerbHall/aquabot/internal/kafka"
	"github.com/HerbHall/aquabot/internal/llm"
	"github.com/HerbHall/aquabot/internal/mqtt"
	"github.com/HerbHall/aquabot/internal/registry"
	"github.com/HerbHall/aquabot/internal/server"
	"github.com/HerbHall/aquabot/internal/store"
	"github.com/HerbHall/aquabot/internal/telemetry"
	"github.com/HerbHall/aquabot/internal/version"
	"github.com/HerbHall/aquabot/internal/webhook"
	"github.com/HerbHall/aquabot/internal/ws"
	"github.com/HerbHall/aquabot/pkg/plugin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app holds the shared services every command builds on.
type app struct {
	viper  *viper.Viper
	cfg    *config.ViperConfig
	logger *zap.Logger
	db     *store.SQLiteStore
	bus    *event.Bus
	reg    *registry.Registry
}

// catalog lists every plugin the binary knows, in registration order.
func catalog() []plugin.Plugin {
	return []plugin.Plugin{
		telemetry.New(),
		llm.New(),
		assistant.New(),
		ws.New(),
		mqtt.New(),
		kafka.New(),
		webhook.New(),
	}
}

// enabledPlugins filters candidates by plugins.<name>.enabled. Plugins
// without the key are enabled; only names in allow are kept when allow is
// non-empty.
func enabledPlugins(v *viper.Viper, candidates []plugin.Plugin, allow ...string) []plugin.Plugin {
	var out []plugin.Plugin
	for _, p := range candidates {
		name := p.Info().Name
		if len(allow) > 0 && !slices.Contains(allow, name) {
			continue
		}
		key := "plugins." + name + ".enabled"
		if v.IsSet(key) && !v.GetBool(key) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// newApp loads configuration, opens the database and registers the
// enabled plugins named in allow (all when empty). Plugins are not yet
// initialized.
func newApp(ctx context.Context, configPath string, allow ...string) (*app, error) {
	v, err := server.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger, err := config.NewLogger(v)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	if f := v.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded",
			zap.String("component", "config"),
			zap.String("source", f),
		)
	} else {
		logger.Warn("no configuration file found, using defaults",
			zap.String("component", "config"),
		)
	}

	dbPath := v.GetString("database.path")
	if dbPath == "" {
		dbPath = "aquabot.db"
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.CheckVersion(ctx, version.Short()); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("database initialized",
		zap.String("component", "database"),
		zap.String("path", dbPath),
	)

	a := &app{
		viper:  v,
		cfg:    config.New(v),
		logger: logger,
		db:     db,
		bus:    event.NewBus(logger.Named("event")),
		reg:    registry.New(logger.Named("registry")),
	}

	for _, p := range enabledPlugins(v, catalog(), allow...) {
		if err := a.reg.Register(p); err != nil {
			a.close()
			return nil, fmt.Errorf("register plugin: %w", err)
		}
	}
	if err := a.reg.Validate(); err != nil {
		a.close()
		return nil, fmt.Errorf("plugin validation: %w", err)
	}
	return a, nil
}

// start initializes and starts every registered plugin.
func (a *app) start(ctx context.Context) error {
	if err := a.reg.InitAll(ctx, func(name string) plugin.Dependencies {
		return plugin.Dependencies{
			Config:  a.cfg.Sub("plugins." + name),
			Logger:  a.logger.Named(name),
			Store:   a.db,
			Bus:     a.bus,
			Plugins: a.reg,
		}
	}); err != nil {
		return fmt.Errorf("initialize plugins: %w", err)
	}
	if err := a.reg.StartAll(ctx); err != nil {
		return fmt.Errorf("start plugins: %w", err)
	}
	return nil
}

// stop stops the plugins, drains in-flight events and closes the database.
func (a *app) stop(ctx context.Context) {
	a.reg.StopAll(ctx)
	a.bus.Wait()
	a.close()
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

