package config

import (
	"testing"
	"time"
)

func TestViperConfig_SubAndUnmarshal(t *testing.T) {
	c := FromMap(map[string]any{
		"plugins": map[string]any{
			"telemetry": map[string]any{
				"driver":        "memory",
				"query_timeout": "3s",
			},
		},
	})

	sub := c.Sub("plugins.telemetry")
	if got := sub.GetString("driver"); got != "memory" {
		t.Errorf("driver = %q, want memory", got)
	}
	if got := sub.GetDuration("query_timeout"); got != 3*time.Second {
		t.Errorf("query_timeout = %v, want 3s", got)
	}

	var target struct {
		Driver       string        `mapstructure:"driver"`
		QueryTimeout time.Duration `mapstructure:"query_timeout"`
		Untouched    int           `mapstructure:"untouched"`
	}
	target.Untouched = 7
	if err := sub.Unmarshal(&target); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if target.Driver != "memory" || target.QueryTimeout != 3*time.Second || target.Untouched != 7 {
		t.Errorf("target = %+v", target)
	}
}

func TestViperConfig_MissingSub(t *testing.T) {
	c := New(nil)
	sub := c.Sub("plugins.absent")
	if sub == nil {
		t.Fatal("Sub returned nil")
	}
	if sub.IsSet("anything") {
		t.Error("empty sub reports keys as set")
	}
}
