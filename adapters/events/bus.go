package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/defai/core"
	"github.com/layer-3/defai/internal/metrics"
	"github.com/layer-3/defai/ports"
)

// Topic names a notification stream whose payloads are of type T
type Topic[T any] struct {
	name string
}

// Name returns the wire name of the topic
func (t Topic[T]) Name() string { return t.name }

var (
	TopicWalletCreated = Topic[core.WalletCreated]{name: "wallet_created"}
	TopicWalletInfo    = Topic[core.WalletInfo]{name: "wallet_info"}
	TopicAIResponse    = Topic[core.AIResponse]{name: "ai_response"}
	TopicSystem        = Topic[core.SystemMessage]{name: "system"}
)

// Event is a single publication as seen by topic-agnostic listeners
type Event struct {
	ID      string    `json:"id"`
	Seq     uint64    `json:"seq"`
	Topic   string    `json:"topic"`
	At      time.Time `json:"timestamp"`
	Payload any       `json:"data"`
}

type listener struct {
	id     uint64
	topic  string // empty matches every topic
	fn     func(Event)
	active atomic.Bool
}

// Bus is a synchronous multicast notification channel.
//
// Publish calls every listener registered at that moment exactly once, in
// registration order, before it returns. Nothing is retained: late
// subscribers never see earlier events. Publishes from different goroutines
// are not ordered relative to each other, so listeners must be safe for
// concurrent use and should key transaction events by hash.
type Bus struct {
	mu        sync.Mutex
	listeners []*listener
	nextID    uint64
	seq       atomic.Uint64

	mirror  ports.EventPublisher
	metrics *metrics.Metrics
}

// BusOption configures a Bus
type BusOption func(*Bus)

// WithMirror forwards every event to p after local delivery
func WithMirror(p ports.EventPublisher) BusOption {
	return func(b *Bus) { b.mirror = p }
}

// WithMetrics counts publications per topic
func WithMetrics(m *metrics.Metrics) BusOption {
	return func(b *Bus) { b.metrics = m }
}

// NewBus creates an empty bus
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription is the handle returned by Subscribe
type Subscription struct {
	bus  *Bus
	l    *listener
	once sync.Once
}

// Unsubscribe stops delivery to the listener. It is safe to call more than
// once and from inside a listener.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.l.active.Store(false)
		s.bus.remove(s.l.id)
	})
}

// Publish delivers payload to the listeners of topic
func Publish[T any](b *Bus, topic Topic[T], payload T) {
	b.publish(topic.name, payload)
}

// Subscribe registers fn for topic
func Subscribe[T any](b *Bus, topic Topic[T], fn func(T)) *Subscription {
	return b.subscribe(topic.name, func(ev Event) {
		fn(ev.Payload.(T))
	})
}

// SubscribeAll registers fn for every topic
func (b *Bus) SubscribeAll(fn func(Event)) *Subscription {
	return b.subscribe("", fn)
}

// Len returns the number of registered listeners
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

func (b *Bus) subscribe(topic string, fn func(Event)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	l := &listener{id: b.nextID, topic: topic, fn: fn}
	l.active.Store(true)
	b.listeners = append(b.listeners, l)

	return &Subscription{bus: b, l: l}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, l := range b.listeners {
		if l.id == id {
			// Copy so that snapshots held by in-flight publishes stay intact
			next := make([]*listener, 0, len(b.listeners)-1)
			next = append(next, b.listeners[:i]...)
			b.listeners = append(next, b.listeners[i+1:]...)
			return
		}
	}
}

func (b *Bus) publish(topic string, payload any) {
	ev := Event{
		ID:      uuid.New().String(),
		Seq:     b.seq.Add(1),
		Topic:   topic,
		At:      time.Now(),
		Payload: payload,
	}

	b.mu.Lock()
	snapshot := b.listeners
	b.mu.Unlock()

	for _, l := range snapshot {
		if l.topic != "" && l.topic != topic {
			continue
		}
		if !l.active.Load() {
			continue
		}
		l.fn(ev)
	}

	b.metrics.Notification(topic)

	if b.mirror != nil {
		if err := b.mirror.PublishEvent(context.Background(), topic, ev.ID, ev); err != nil {
			slog.Warn("failed to mirror notification", "topic", topic, "id", ev.ID, "error", err)
		}
	}
}
