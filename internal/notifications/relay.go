package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// InvalidationChannel is the Redis pub/sub channel shared by all relays.
const InvalidationChannel = "minilink:invalidate"

// Relay forwards local bus events to other processes and replays theirs locally.
// Delivery is best effort: a process that is not subscribed when an event is
// published never sees it.
type Relay struct {
	rdb    *redis.Client
	bus    *Bus
	origin string
	logger *slog.Logger
}

// NewRelay creates a relay for bus over rdb with a fresh origin id.
func NewRelay(rdb *redis.Client, bus *Bus) *Relay {
	return &Relay{
		rdb:    rdb,
		bus:    bus,
		origin: uuid.NewString(),
		logger: bus.logger,
	}
}

// Origin returns the id stamped on events this relay sends.
func (r *Relay) Origin() string { return r.origin }

// Start subscribes to the invalidation channel and begins forwarding local events.
// It returns once the Redis subscription is confirmed. Cancel ctx to stop.
func (r *Relay) Start(ctx context.Context) error {
	if r.rdb == nil {
		return nil
	}

	sub := r.rdb.Subscribe(ctx, InvalidationChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", InvalidationChannel, err)
	}

	cancelForward := r.bus.SubscribeAll(r.forward)
	ch := sub.Channel()

	go func() {
		defer cancelForward()
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.receive(ctx, msg.Payload)
			}
		}
	}()

	return nil
}

// forward publishes locally raised events to Redis.
func (r *Relay) forward(ctx context.Context, ev Event) {
	if ev.Origin != "" {
		return
	}
	ev.Origin = r.origin
	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.ErrorContext(ctx, "encode invalidation", slog.String("error", err.Error()))
		return
	}
	if err := r.rdb.Publish(ctx, InvalidationChannel, payload).Err(); err != nil {
		r.logger.WarnContext(ctx, "relay invalidation failed",
			slog.String("topic", string(ev.Topic)),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Relay) receive(ctx context.Context, payload string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "PANIC in invalidation relay",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		r.logger.WarnContext(ctx, "discarding malformed invalidation", slog.String("error", err.Error()))
		return
	}
	if ev.Origin == "" || ev.Origin == r.origin {
		return
	}
	r.bus.Publish(ctx, ev)
}
