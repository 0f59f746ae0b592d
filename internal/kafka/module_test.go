package kafka

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/HerbHall/aquabot/internal/config"
	"github.com/HerbHall/aquabot/pkg/plugin"
	"github.com/HerbHall/aquabot/pkg/plugin/plugintest"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func TestContract(t *testing.T) {
	plugintest.TestPluginContract(t, func() plugin.Plugin { return New() }, nil)
}

func TestInit_Config(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]any
		wantErr bool
	}{
		{name: "no brokers is idle", values: map[string]any{}},
		{name: "brokers", values: map[string]any{"brokers": []string{"k1:9092", "k2:9092"}}},
		{name: "empty topic", values: map[string]any{"brokers": []string{"k1:9092"}, "topic": ""}, wantErr: true},
		{name: "empty group", values: map[string]any{"brokers": []string{"k1:9092"}, "group_id": " "}, wantErr: true},
		{name: "bad offset", values: map[string]any{"brokers": []string{"k1:9092"}, "start_offset": "middle"}, wantErr: true},
		{name: "last offset", values: map[string]any{"brokers": []string{"k1:9092"}, "start_offset": "last"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New().Init(context.Background(), plugin.Dependencies{
				Logger: zap.NewNop(),
				Config: config.FromMap(tt.values),
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Init() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStart_RequiresTelemetrySink(t *testing.T) {
	m := New()
	deps := plugin.Dependencies{
		Logger: zap.NewNop(),
		Config: config.FromMap(map[string]any{"brokers": []string{"127.0.0.1:1"}}),
	}
	if err := m.Init(context.Background(), deps); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("Start() without a telemetry sink returned nil")
	}
}

func TestModule_RunAndStop(t *testing.T) {
	m := New()
	deps := plugin.Dependencies{
		Logger: zap.NewNop(),
		Config: config.FromMap(map[string]any{"brokers": []string{"127.0.0.1:1"}}),
	}
	if err := m.Init(context.Background(), deps); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	in := newFakeIngester(t)
	reader := &fakeReader{
		messages:   []kafkago.Message{message(1, fmt.Sprintf(transmission, 4))},
		blockAtEnd: true,
	}
	m.run(NewConsumer(reader, in, testConfig(), zap.NewNop()), reader)

	deadline := time.Now().Add(2 * time.Second)
	for len(reader.commits()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("message was not committed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if h := m.Health(context.Background()); h.Status != "healthy" {
		t.Errorf("Health() = %+v, want healthy while running", h)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if h := m.Health(context.Background()); h.Status != "unhealthy" {
		t.Errorf("Health() after Stop = %+v, want unhealthy", h)
	}
}
