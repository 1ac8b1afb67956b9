package notifications

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRelay_NilClientIsNoop(t *testing.T) {
	r := NewRelay(nil, NewBus(nil))
	assert.NoError(t, r.Start(context.Background()))
	assert.NotEmpty(t, r.Origin())
}

func TestRelay_ForwardsBetweenProcesses(t *testing.T) {
	_, rdb := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	busA, busB := NewBus(nil), NewBus(nil)
	relayA, relayB := NewRelay(rdb, busA), NewRelay(rdb, busB)
	require.NoError(t, relayA.Start(ctx))
	require.NoError(t, relayB.Start(ctx))

	var localCalls int32
	busA.Subscribe(TopicPosts, func(context.Context, Event) { atomic.AddInt32(&localCalls, 1) })

	var mu sync.Mutex
	var remote []Event
	busB.Subscribe(TopicPosts, func(_ context.Context, ev Event) {
		mu.Lock()
		remote = append(remote, ev)
		mu.Unlock()
	})

	busA.Publish(context.Background(), Event{Topic: TopicPosts, IDs: []string{"1"}})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(remote) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"1"}, remote[0].IDs)
	assert.Equal(t, relayA.Origin(), remote[0].Origin)
	mu.Unlock()

	// The sender's own echo is dropped, so its subscriber still saw one event.
	assert.Never(t, func() bool {
		return atomic.LoadInt32(&localCalls) != 1
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestRelay_IgnoresMalformedPayloads(t *testing.T) {
	_, rdb := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(nil)
	require.NoError(t, NewRelay(rdb, bus).Start(ctx))

	var calls int32
	bus.SubscribeAll(func(context.Context, Event) { atomic.AddInt32(&calls, 1) })

	require.NoError(t, rdb.Publish(ctx, InvalidationChannel, "not-json").Err())
	require.NoError(t, rdb.Publish(ctx, InvalidationChannel, `{"topic":"posts"}`).Err())

	assert.Never(t, func() bool {
		return atomic.LoadInt32(&calls) > 0
	}, 100*time.Millisecond, 10*time.Millisecond)
}
