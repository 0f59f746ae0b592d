// Package event provides the in-process plugin.EventBus used to fan
// telemetry arrivals out to the WebSocket stream and other listeners.
package event

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/HerbHall/aquabot/pkg/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var _ plugin.EventBus = (*Bus)(nil)

var (
	publishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquabot_events_published_total",
			Help: "Events published on the in-process bus, by topic.",
		},
		[]string{"topic"},
	)
	handlerPanicsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquabot_event_handler_panics_total",
			Help: "Event handlers that panicked, by topic.",
		},
		[]string{"topic"},
	)
)

func init() {
	prometheus.MustRegister(publishedTotal)
	prometheus.MustRegister(handlerPanicsTotal)
}

// Bus dispatches events to handlers registered per topic or for every
// topic. Publish runs handlers in the caller's goroutine; PublishAsync
// gives each handler its own goroutine, tracked so Wait can drain them.
type Bus struct {
	mu       sync.RWMutex
	byTopic  map[string][]entry
	wildcard []entry
	nextID   uint64
	inflight sync.WaitGroup
	logger   *zap.Logger
	now      func() time.Time
}

type entry struct {
	id      uint64
	handler plugin.EventHandler
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		byTopic: make(map[string][]entry),
		logger:  logger,
		now:     time.Now,
	}
}

// Publish delivers ev to every matching handler before returning.
func (b *Bus) Publish(ctx context.Context, ev plugin.Event) error {
	ev = b.stamp(ev)
	for _, e := range b.targets(ev.Topic) {
		b.deliver(ctx, e.handler, ev)
	}
	return nil
}

// PublishAsync delivers ev to every matching handler in the background.
func (b *Bus) PublishAsync(ctx context.Context, ev plugin.Event) {
	ev = b.stamp(ev)
	for _, e := range b.targets(ev.Topic) {
		b.inflight.Add(1)
		go func() {
			defer b.inflight.Done()
			b.deliver(ctx, e.handler, ev)
		}()
	}
}

// Wait blocks until every handler started by PublishAsync has returned.
func (b *Bus) Wait() {
	b.inflight.Wait()
}

// Subscribe registers handler for topic.
func (b *Bus) Subscribe(topic string, handler plugin.EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.register()
	b.byTopic[topic] = append(b.byTopic[topic], entry{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.byTopic[topic] = remove(b.byTopic[topic], id)
		if len(b.byTopic[topic]) == 0 {
			delete(b.byTopic, topic)
		}
	}
}

// SubscribeAll registers handler for every topic.
func (b *Bus) SubscribeAll(handler plugin.EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.register()
	b.wildcard = append(b.wildcard, entry{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.wildcard = remove(b.wildcard, id)
	}
}

// register must be called with mu held.
func (b *Bus) register() uint64 {
	id := b.nextID
	b.nextID++
	return id
}

func (b *Bus) stamp(ev plugin.Event) plugin.Event {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now()
	}
	publishedTotal.WithLabelValues(ev.Topic).Inc()
	return ev
}

// targets snapshots the handlers for topic so delivery runs unlocked.
func (b *Bus) targets(topic string) []entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]entry, 0, len(b.byTopic[topic])+len(b.wildcard))
	out = append(out, b.byTopic[topic]...)
	return append(out, b.wildcard...)
}

func (b *Bus) deliver(ctx context.Context, handler plugin.EventHandler, ev plugin.Event) {
	defer func() {
		if r := recover(); r != nil {
			handlerPanicsTotal.WithLabelValues(ev.Topic).Inc()
			b.logger.Error("event handler panicked",
				zap.String("topic", ev.Topic),
				zap.String("source", ev.Source),
				zap.Any("panic", r),
			)
		}
	}()
	handler(ctx, ev)
}

func remove(entries []entry, id uint64) []entry {
	return slices.DeleteFunc(slices.Clone(entries), func(e entry) bool { return e.id == id })
}
