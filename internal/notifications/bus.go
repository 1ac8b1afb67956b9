// Package notifications delivers cross-view invalidation events: an in-process
// observer bus plus an optional best-effort relay between processes over Redis.
package notifications

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"minilink/internal/observability"
)

// Topic names the collection an event is about.
type Topic string

// Topics published by the client-side stores.
const (
	TopicPosts      Topic = "posts"
	TopicEngagement Topic = "engagement"
	TopicProfile    Topic = "profile"
)

// Kind says what happened to the IDs of an event.
type Kind string

// Event kinds.
const (
	KindChanged Kind = "changed"
	KindAdded   Kind = "added"
	KindRemoved Kind = "removed"
)

// Event tells subscribers that a collection changed and should be re-read.
// IDs optionally lists the affected post ids. Origin is empty for events raised
// in this process and carries the sender's id for relayed ones.
type Event struct {
	Topic  Topic    `json:"topic"`
	Kind   Kind     `json:"kind,omitempty"`
	IDs    []string `json:"ids,omitempty"`
	Origin string   `json:"origin,omitempty"`
}

// Handler receives events.
type Handler func(ctx context.Context, ev Event)

type subscription struct {
	id    uint64
	topic Topic // empty means every topic
	fn    Handler
}

// Bus is a synchronous publish/subscribe hub. Each subscriber sees each
// published event exactly once, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	logger *slog.Logger
}

// NewBus creates an empty bus. A nil logger uses the package logger.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = observability.Component("notifications")
	}
	return &Bus{logger: logger}
}

// Subscribe registers fn for topic and returns a function that removes it.
func (b *Bus) Subscribe(topic Topic, fn Handler) (cancel func()) {
	return b.add(topic, fn)
}

// SubscribeAll registers fn for every topic.
func (b *Bus) SubscribeAll(fn Handler) (cancel func()) {
	return b.add("", fn)
}

func (b *Bus) add(topic Topic, fn Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, topic: topic, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers ev to every matching subscriber before returning.
// A panicking subscriber is logged and does not stop delivery to the rest.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	targets := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.topic == "" || s.topic == ev.Topic {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	origin := "local"
	if ev.Origin != "" {
		origin = "remote"
	}
	observability.Invalidations.WithLabelValues(string(ev.Topic), origin).Inc()

	for _, s := range targets {
		b.deliver(ctx, s, ev)
	}
}

func (b *Bus) deliver(ctx context.Context, s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "invalidation subscriber panicked",
				slog.String("topic", string(ev.Topic)),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	s.fn(ctx, ev)
}
