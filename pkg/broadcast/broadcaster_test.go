package broadcast

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encounterlive/encounterd/pkg/config"
	"github.com/encounterlive/encounterd/pkg/models"
)

func testBroadcastConfig() *config.BroadcastConfig {
	cfg := config.DefaultBroadcastConfig()
	cfg.BatchDelay = 20 * time.Millisecond
	return cfg
}

// collector is a thread-safe event sink handler.
type collector struct {
	mu     sync.Mutex
	events []models.GameEvent
}

func (c *collector) handle(ev models.GameEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *collector) all() []models.GameEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.GameEvent(nil), c.events...)
}

func TestSubscribeAndBroadcast(t *testing.T) {
	b := New(testBroadcastConfig(), prometheus.NewRegistry())
	defer b.Close()

	sink := &collector{}
	_, err := b.Subscribe("alice", models.RoomChannel("int-1"), []string{"*"}, sink.handle)
	require.NoError(t, err)

	b.Broadcast("int-1", models.GameEvent{Type: models.EventTurnStarted, EntityID: "fighter"})

	require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	ev := sink.all()[0]
	assert.Equal(t, "int-1", ev.InteractionID, "event enriched with interaction id")
	assert.False(t, ev.Timestamp.IsZero(), "event enriched with timestamp")
}

func TestBroadcastFiltersByEventType(t *testing.T) {
	b := New(testBroadcastConfig(), prometheus.NewRegistry())
	defer b.Close()

	chatOnly := &collector{}
	_, err := b.Subscribe("alice", models.RoomChannel("int-1"),
		[]string{string(models.EventChatMessage)}, chatOnly.handle)
	require.NoError(t, err)
	everything := &collector{}
	_, err = b.Subscribe("bob", models.RoomChannel("int-1"), []string{"*"}, everything.handle)
	require.NoError(t, err)

	b.Broadcast("int-1", models.GameEvent{Type: models.EventTurnStarted})
	b.Broadcast("int-1", models.GameEvent{Type: models.EventChatMessage})

	require.Eventually(t, func() bool { return everything.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, chatOnly.count())
	assert.Equal(t, models.EventChatMessage, chatOnly.all()[0].Type)
}

func TestBroadcastIsolatedPerRoom(t *testing.T) {
	b := New(testBroadcastConfig(), prometheus.NewRegistry())
	defer b.Close()

	sink := &collector{}
	_, err := b.Subscribe("alice", models.RoomChannel("int-1"), []string{"*"}, sink.handle)
	require.NoError(t, err)

	b.Broadcast("int-2", models.GameEvent{Type: models.EventTurnStarted})

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, sink.count(), "events from other rooms are invisible")
}

func TestBroadcastToUser(t *testing.T) {
	b := New(testBroadcastConfig(), prometheus.NewRegistry())
	defer b.Close()

	aliceSink := &collector{}
	_, err := b.Subscribe("alice", models.RoomChannel("int-1"), nil, aliceSink.handle)
	require.NoError(t, err)
	bobSink := &collector{}
	_, err = b.Subscribe("bob", models.RoomChannel("int-1"), nil, bobSink.handle)
	require.NoError(t, err)

	b.BroadcastToUser("int-1", "alice", models.GameEvent{Type: models.EventChatMessage})

	require.Eventually(t, func() bool { return aliceSink.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, bobSink.count(), "other users on the channel receive nothing")
}

func TestSubscriptionLimitPerUser(t *testing.T) {
	cfg := testBroadcastConfig()
	cfg.MaxSubscriptionsPerUser = 2
	b := New(cfg, prometheus.NewRegistry())
	defer b.Close()

	sink := &collector{}
	for i := 0; i < 2; i++ {
		_, err := b.Subscribe("alice", models.RoomChannel("int-1"), nil, sink.handle)
		require.NoError(t, err)
	}
	_, err := b.Subscribe("alice", models.RoomChannel("int-2"), nil, sink.handle)
	assert.ErrorIs(t, err, ErrSubscriptionLimit)

	// Other users are unaffected.
	_, err = b.Subscribe("bob", models.RoomChannel("int-1"), nil, sink.handle)
	assert.NoError(t, err)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(testBroadcastConfig(), prometheus.NewRegistry())
	defer b.Close()

	sink := &collector{}
	id, err := b.Subscribe("alice", models.RoomChannel("int-1"), nil, sink.handle)
	require.NoError(t, err)
	require.NoError(t, b.Unsubscribe(id))
	assert.ErrorIs(t, b.Unsubscribe(id), ErrSubscriptionNotFound)

	b.Broadcast("int-1", models.GameEvent{Type: models.EventTurnStarted})
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, sink.count())

	// The slot is freed for new subscriptions.
	assert.Equal(t, 0, b.SubscriptionCount())
}

func TestUnsubscribeUserRemovesAll(t *testing.T) {
	b := New(testBroadcastConfig(), prometheus.NewRegistry())
	defer b.Close()

	sink := &collector{}
	_, err := b.Subscribe("alice", models.RoomChannel("int-1"), nil, sink.handle)
	require.NoError(t, err)
	_, err = b.Subscribe("alice", models.RoomChannel("int-2"), nil, sink.handle)
	require.NoError(t, err)
	_, err = b.Subscribe("bob", models.RoomChannel("int-1"), nil, sink.handle)
	require.NoError(t, err)

	assert.Equal(t, 2, b.UnsubscribeUser("alice"))
	assert.Equal(t, 1, b.SubscriptionCount())
}

// One failing subscriber must not affect delivery to the others, and
// each failure increments the failed deliveries counter.
func TestFailingHandlerIsIsolated(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := New(testBroadcastConfig(), reg)
	defer b.Close()

	healthy := &collector{}
	_, err := b.Subscribe("alice", models.RoomChannel("int-1"), nil, healthy.handle)
	require.NoError(t, err)
	_, err = b.Subscribe("bob", models.RoomChannel("int-1"), nil, func(models.GameEvent) error {
		return errors.New("connection reset")
	})
	require.NoError(t, err)
	_, err = b.Subscribe("carol", models.RoomChannel("int-1"), nil, func(models.GameEvent) error {
		panic("handler bug")
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		b.Broadcast("int-1", models.GameEvent{Type: models.EventTurnStarted})
	}

	require.Eventually(t, func() bool { return healthy.count() == 3 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(b.metrics.FailedDeliveries) == 6
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, b.SubscriptionCount(), "failing subscribers stay registered")
}

func TestFullBufferDropsForThatSubscriberOnly(t *testing.T) {
	cfg := testBroadcastConfig()
	cfg.HandlerBuffer = 1
	b := New(cfg, prometheus.NewRegistry())
	defer b.Close()

	// A handler that never returns fills its one-slot buffer instantly.
	block := make(chan struct{})
	defer close(block)
	_, err := b.Subscribe("slow", models.RoomChannel("int-1"), nil, func(models.GameEvent) error {
		<-block
		return nil
	})
	require.NoError(t, err)
	healthy := &collector{}
	_, err = b.Subscribe("fast", models.RoomChannel("int-1"), nil, healthy.handle)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		b.Broadcast("int-1", models.GameEvent{Type: models.EventTurnStarted})
	}

	require.Eventually(t, func() bool { return healthy.count() == 10 }, 2*time.Second, 5*time.Millisecond)
	assert.Greater(t, testutil.ToFloat64(b.metrics.FailedDeliveries), 0.0)
}

func TestDeltaBatchFlushesOnDelay(t *testing.T) {
	b := New(testBroadcastConfig(), prometheus.NewRegistry())
	defer b.Close()

	sink := &collector{}
	_, err := b.Subscribe("alice", models.RoomChannel("int-1"),
		[]string{string(models.EventStateDelta)}, sink.handle)
	require.NoError(t, err)

	round := 2
	b.BroadcastDelta(models.StateDelta{InteractionID: "int-1", RoundNumber: &round})
	b.BroadcastDelta(models.StateDelta{InteractionID: "int-1"})

	require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	deltas, ok := sink.all()[0].Payload["deltas"].([]models.StateDelta)
	require.True(t, ok)
	assert.Len(t, deltas, 2, "both deltas arrive in one batch")
}

func TestDeltaBatchFlushesOnSize(t *testing.T) {
	cfg := testBroadcastConfig()
	cfg.MaxBatchSize = 3
	cfg.BatchDelay = time.Hour // only the size trigger may fire
	b := New(cfg, prometheus.NewRegistry())
	defer b.Close()

	sink := &collector{}
	_, err := b.Subscribe("alice", models.RoomChannel("int-1"),
		[]string{string(models.EventStateDelta)}, sink.handle)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		b.BroadcastDelta(models.StateDelta{InteractionID: "int-1"})
	}

	require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	deltas := sink.all()[0].Payload["deltas"].([]models.StateDelta)
	assert.Len(t, deltas, 3)
}

func TestIdleSubscriptionsReaped(t *testing.T) {
	cfg := testBroadcastConfig()
	cfg.SubscriptionTimeout = 10 * time.Millisecond
	b := New(cfg, prometheus.NewRegistry())
	defer b.Close()

	sink := &collector{}
	_, err := b.Subscribe("alice", models.RoomChannel("int-1"), nil, sink.handle)
	require.NoError(t, err)
	kept, err := b.Subscribe("bob", models.RoomChannel("int-1"), nil, sink.handle)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Touch(kept)) // bob pings, alice stays idle
	b.reapIdle()

	assert.Equal(t, 1, b.SubscriptionCount())
	assert.NoError(t, b.Touch(kept))
}
