// Package config adapts Viper to the plugin.Config interface and builds the
// process logger from the same settings.
package config

import (
	"time"

	"github.com/HerbHall/aquabot/pkg/plugin"
	"github.com/spf13/viper"
)

var _ plugin.Config = (*ViperConfig)(nil)

// ViperConfig implements plugin.Config over a Viper instance. Each plugin
// receives the sub-tree under plugins.<name>.
type ViperConfig struct {
	v *viper.Viper
}

// New wraps v. A nil v yields an empty config whose Unmarshal leaves the
// target's defaults untouched.
func New(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}
	return &ViperConfig{v: v}
}

// FromMap builds a config from nested maps, as tests and the CLI do for
// one-off plugin settings.
func FromMap(values map[string]any) *ViperConfig {
	v := viper.New()
	for k, val := range values {
		v.Set(k, val)
	}
	return New(v)
}

func (c *ViperConfig) Unmarshal(target any) error { return c.v.Unmarshal(target) }

func (c *ViperConfig) Get(key string) any { return c.v.Get(key) }

func (c *ViperConfig) GetString(key string) string { return c.v.GetString(key) }

func (c *ViperConfig) GetInt(key string) int { return c.v.GetInt(key) }

func (c *ViperConfig) GetBool(key string) bool { return c.v.GetBool(key) }

func (c *ViperConfig) GetDuration(key string) time.Duration { return c.v.GetDuration(key) }

func (c *ViperConfig) IsSet(key string) bool { return c.v.IsSet(key) }

// Sub returns the sub-tree at key, or an empty config when key is absent.
func (c *ViperConfig) Sub(key string) plugin.Config {
	return New(c.v.Sub(key))
}

// Viper exposes the wrapped instance for top-level settings such as
// server.port.
func (c *ViperConfig) Viper() *viper.Viper {
	return c.v
}
