package event

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HerbHall/aquabot/pkg/plugin"
	"go.uber.org/zap"
)

func TestPublish_TopicAndWildcard(t *testing.T) {
	t.Parallel()
	b := NewBus(zap.NewNop())

	var topic, all []string
	b.Subscribe("telemetry.received", func(_ context.Context, ev plugin.Event) {
		topic = append(topic, ev.Source)
	})
	b.SubscribeAll(func(_ context.Context, ev plugin.Event) {
		all = append(all, ev.Topic)
	})

	ctx := context.Background()
	_ = b.Publish(ctx, plugin.Event{Topic: "telemetry.received", Source: "telemetry"})
	_ = b.Publish(ctx, plugin.Event{Topic: "assistant.answered", Source: "assistant"})

	if len(topic) != 1 || topic[0] != "telemetry" {
		t.Errorf("topic handler saw %v", topic)
	}
	if len(all) != 2 {
		t.Errorf("wildcard handler saw %v", all)
	}
}

func TestPublish_SetsTimestamp(t *testing.T) {
	t.Parallel()
	b := NewBus(zap.NewNop())
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	var got time.Time
	b.SubscribeAll(func(_ context.Context, ev plugin.Event) { got = ev.Timestamp })

	_ = b.Publish(context.Background(), plugin.Event{Topic: "x"})
	if !got.Equal(fixed) {
		t.Errorf("Timestamp = %v, want %v", got, fixed)
	}

	explicit := fixed.Add(-time.Hour)
	_ = b.Publish(context.Background(), plugin.Event{Topic: "x", Timestamp: explicit})
	if !got.Equal(explicit) {
		t.Errorf("Timestamp = %v, want explicit %v", got, explicit)
	}
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()
	b := NewBus(zap.NewNop())
	var n int
	unsub := b.Subscribe("x", func(context.Context, plugin.Event) { n++ })
	unsubAll := b.SubscribeAll(func(context.Context, plugin.Event) { n++ })

	_ = b.Publish(context.Background(), plugin.Event{Topic: "x"})
	unsub()
	unsubAll()
	_ = b.Publish(context.Background(), plugin.Event{Topic: "x"})

	if n != 2 {
		t.Errorf("handler calls = %d, want 2", n)
	}
}

func TestPublishAsync_Wait(t *testing.T) {
	t.Parallel()
	b := NewBus(zap.NewNop())
	var n atomic.Int32
	for range 3 {
		b.Subscribe("x", func(context.Context, plugin.Event) { n.Add(1) })
	}
	b.PublishAsync(context.Background(), plugin.Event{Topic: "x"})
	b.Wait()
	if got := n.Load(); got != 3 {
		t.Errorf("handler calls = %d, want 3", got)
	}
}

func TestPanic_IsRecovered(t *testing.T) {
	t.Parallel()
	b := NewBus(zap.NewNop())
	var after bool
	b.Subscribe("x", func(context.Context, plugin.Event) { panic("boom") })
	b.Subscribe("x", func(context.Context, plugin.Event) { after = true })

	_ = b.Publish(context.Background(), plugin.Event{Topic: "x"})
	if !after {
		t.Error("handler after the panicking one did not run")
	}
}

func TestConcurrentSubscribePublish(t *testing.T) {
	t.Parallel()
	b := NewBus(zap.NewNop())
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsub := b.Subscribe("x", func(context.Context, plugin.Event) {})
			unsub()
		}()
		go func() {
			defer wg.Done()
			b.PublishAsync(context.Background(), plugin.Event{Topic: "x"})
		}()
	}
	wg.Wait()
	b.Wait()
}
