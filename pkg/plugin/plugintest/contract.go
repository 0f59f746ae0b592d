// Package plugintest provides shared contract tests that every
// plugin.Plugin implementation must pass.
package plugintest

import (
	"context"
	"testing"

	"github.com/HerbHall/aquabot/pkg/plugin"
	"go.uber.org/zap"
)

// TestPluginContract runs the lifecycle contract against a plugin built by
// factory. deps may be nil, in which case a logger-only Dependencies is used:
//
//	func TestContract(t *testing.T) {
//	    plugintest.TestPluginContract(t, func() plugin.Plugin { return telemetry.New() }, nil)
//	}
func TestPluginContract(t *testing.T, factory func() plugin.Plugin, deps func(t *testing.T, name string) plugin.Dependencies) {
	t.Helper()
	if deps == nil {
		deps = loggerOnly
	}

	t.Run("Info_returns_valid_metadata", func(t *testing.T) {
		info := factory().Info()
		if info.Name == "" {
			t.Error("Info().Name must not be empty")
		}
		if info.Version == "" {
			t.Error("Info().Version must not be empty")
		}
		if info.APIVersion < plugin.APIVersionMin || info.APIVersion > plugin.APIVersionCurrent {
			t.Errorf("Info().APIVersion = %d, outside [%d, %d]",
				info.APIVersion, plugin.APIVersionMin, plugin.APIVersionCurrent)
		}
	})

	t.Run("Init_Start_Stop", func(t *testing.T) {
		p := factory()
		ctx := context.Background()
		if err := p.Init(ctx, deps(t, p.Info().Name)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		if err := p.Start(ctx); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := p.Stop(ctx); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
	})

	t.Run("Stop_without_Start", func(t *testing.T) {
		p := factory()
		ctx := context.Background()
		if err := p.Init(ctx, deps(t, p.Info().Name)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		if err := p.Stop(ctx); err != nil {
			t.Fatalf("Stop() without Start error = %v", err)
		}
	})

	t.Run("Routes_are_well_formed", func(t *testing.T) {
		p := factory()
		hp, ok := p.(plugin.HTTPProvider)
		if !ok {
			t.Skip("plugin exposes no routes")
		}
		if err := p.Init(context.Background(), deps(t, p.Info().Name)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		for _, r := range hp.Routes() {
			if r.Method == "" || r.Path == "" || r.Handler == nil {
				t.Errorf("incomplete route %+v", r)
			}
		}
	})
}

func loggerOnly(_ *testing.T, name string) plugin.Dependencies {
	return plugin.Dependencies{Logger: zap.NewNop().Named(name)}
}
