// Package broadcast fans game events out to subscribers. Each
// subscription owns a buffered queue and a dedicated delivery
// goroutine, so one slow or failing consumer never blocks the others
// or the game loop. State deltas are batched per room before fan-out.
package broadcast

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/encounterlive/encounterd/pkg/config"
	"github.com/encounterlive/encounterd/pkg/models"
)

var (
	// ErrSubscriptionLimit is returned when a user exceeds their
	// subscription cap.
	ErrSubscriptionLimit = errors.New("subscription limit reached")

	// ErrSubscriptionNotFound is returned for unknown subscription ids.
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// HandlerFunc delivers one event to a consumer, typically a WebSocket
// write. A non-nil error counts as a failed delivery; the subscription
// stays registered.
type HandlerFunc func(event models.GameEvent) error

type subscription struct {
	id       string
	userID   string
	channel  string
	wildcard bool
	types    map[models.EventType]struct{}
	handler  HandlerFunc

	queue chan models.GameEvent
	done  chan struct{}

	mu           sync.Mutex
	lastActivity time.Time
}

func (s *subscription) wants(t models.EventType) bool {
	if s.wildcard {
		return true
	}
	_, ok := s.types[t]
	return ok
}

func (s *subscription) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *subscription) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Broadcaster is the event fan-out hub.
type Broadcaster struct {
	cfg     *config.BroadcastConfig
	metrics *Metrics

	mu        sync.RWMutex
	subs      map[string]*subscription
	byChannel map[string]map[string]*subscription
	byUser    map[string]int
	batchers  map[string]*batcher
	closed    bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a broadcaster and starts its idle-subscription reaper.
func New(cfg *config.BroadcastConfig, reg prometheus.Registerer) *Broadcaster {
	if cfg == nil {
		cfg = config.DefaultBroadcastConfig()
	}
	b := &Broadcaster{
		cfg:       cfg,
		metrics:   NewMetrics(reg),
		subs:      make(map[string]*subscription),
		byChannel: make(map[string]map[string]*subscription),
		byUser:    make(map[string]int),
		batchers:  make(map[string]*batcher),
		stopCh:    make(chan struct{}),
	}
	b.wg.Add(1)
	go b.cleanupLoop()
	return b
}

// Subscribe registers a handler for a channel. eventTypes may contain
// the wildcard "*"; an empty list means wildcard. Returns the
// subscription id.
func (b *Broadcaster) Subscribe(userID, channel string, eventTypes []string, handler HandlerFunc) (string, error) {
	if userID == "" || channel == "" || handler == nil {
		return "", errors.New("user id, channel, and handler are required")
	}

	sub := &subscription{
		id:           uuid.NewString(),
		userID:       userID,
		channel:      channel,
		types:        make(map[models.EventType]struct{}),
		handler:      handler,
		queue:        make(chan models.GameEvent, b.cfg.HandlerBuffer),
		done:         make(chan struct{}),
		lastActivity: time.Now(),
	}
	if len(eventTypes) == 0 {
		sub.wildcard = true
	}
	for _, t := range eventTypes {
		if t == models.EventTypeWildcard {
			sub.wildcard = true
			continue
		}
		sub.types[models.EventType(t)] = struct{}{}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", errors.New("broadcaster is closed")
	}
	if b.byUser[userID] >= b.cfg.MaxSubscriptionsPerUser {
		b.mu.Unlock()
		return "", ErrSubscriptionLimit
	}
	b.subs[sub.id] = sub
	if b.byChannel[channel] == nil {
		b.byChannel[channel] = make(map[string]*subscription)
	}
	b.byChannel[channel][sub.id] = sub
	b.byUser[userID]++
	b.mu.Unlock()

	b.metrics.ActiveSubscriptions.Inc()
	b.wg.Add(1)
	go b.deliver(sub)

	slog.Debug("Subscription created",
		"subscription_id", sub.id, "user_id", userID, "channel", channel)
	return sub.id, nil
}

// Unsubscribe removes a subscription and stops its delivery goroutine.
func (b *Broadcaster) Unsubscribe(subscriptionID string) error {
	b.mu.Lock()
	sub, ok := b.subs[subscriptionID]
	if ok {
		b.removeLocked(sub)
	}
	b.mu.Unlock()
	if !ok {
		return ErrSubscriptionNotFound
	}
	close(sub.done)
	b.metrics.ActiveSubscriptions.Dec()
	return nil
}

// UnsubscribeUser removes every subscription a user holds. Used when a
// WebSocket connection closes.
func (b *Broadcaster) UnsubscribeUser(userID string) int {
	b.mu.Lock()
	var removed []*subscription
	for _, sub := range b.subs {
		if sub.userID == userID {
			b.removeLocked(sub)
			removed = append(removed, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range removed {
		close(sub.done)
		b.metrics.ActiveSubscriptions.Dec()
	}
	return len(removed)
}

// requires b.mu
func (b *Broadcaster) removeLocked(sub *subscription) {
	delete(b.subs, sub.id)
	if chSubs := b.byChannel[sub.channel]; chSubs != nil {
		delete(chSubs, sub.id)
		if len(chSubs) == 0 {
			delete(b.byChannel, sub.channel)
		}
	}
	if b.byUser[sub.userID] <= 1 {
		delete(b.byUser, sub.userID)
	} else {
		b.byUser[sub.userID]--
	}
}

// Touch refreshes a subscription's idle clock. WebSocket pings call
// this to keep quiet subscriptions alive.
func (b *Broadcaster) Touch(subscriptionID string) error {
	b.mu.RLock()
	sub, ok := b.subs[subscriptionID]
	b.mu.RUnlock()
	if !ok {
		return ErrSubscriptionNotFound
	}
	sub.touch()
	return nil
}

// SubscriptionCount returns the number of live subscriptions.
func (b *Broadcaster) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Broadcast enriches an event with the room's interaction id and a
// timestamp, then queues it to every matching subscription on the
// room's channel. A full subscription buffer drops the event for that
// subscriber only.
func (b *Broadcaster) Broadcast(interactionID string, event models.GameEvent) {
	event.InteractionID = interactionID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	b.metrics.EventsBroadcast.Inc()

	channel := models.RoomChannel(interactionID)
	b.mu.RLock()
	targets := make([]*subscription, 0, len(b.byChannel[channel]))
	for _, sub := range b.byChannel[channel] {
		if sub.wants(event.Type) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.queue <- event:
			sub.touch()
		default:
			b.metrics.FailedDeliveries.Inc()
			slog.Warn("Subscription buffer full, event dropped",
				"subscription_id", sub.id, "user_id", sub.userID, "event_type", event.Type)
		}
	}
}

// BroadcastToUser is Broadcast restricted to one user's subscriptions
// on the room's channel.
func (b *Broadcaster) BroadcastToUser(interactionID, userID string, event models.GameEvent) {
	event.InteractionID = interactionID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	b.metrics.EventsBroadcast.Inc()

	channel := models.RoomChannel(interactionID)
	b.mu.RLock()
	targets := make([]*subscription, 0, 1)
	for _, sub := range b.byChannel[channel] {
		if sub.userID == userID && sub.wants(event.Type) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.queue <- event:
			sub.touch()
		default:
			b.metrics.FailedDeliveries.Inc()
			slog.Warn("Subscription buffer full, event dropped",
				"subscription_id", sub.id, "user_id", sub.userID, "event_type", event.Type)
		}
	}
}

// BroadcastDelta queues a state delta into the room's batch. The batch
// flushes as one STATE_DELTA event when it reaches the configured size
// or age.
func (b *Broadcaster) BroadcastDelta(delta models.StateDelta) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	bt := b.batchers[delta.InteractionID]
	if bt == nil {
		bt = newBatcher(delta.InteractionID, b)
		b.batchers[delta.InteractionID] = bt
	}
	b.mu.Unlock()

	bt.add(delta)
}

// deliver drains one subscription's queue in order. Handler panics and
// errors are contained here; they count as failed deliveries and never
// reach the game loop.
func (b *Broadcaster) deliver(sub *subscription) {
	defer b.wg.Done()
	for {
		select {
		case event := <-sub.queue:
			if err := b.handleOne(sub, event); err != nil {
				b.metrics.FailedDeliveries.Inc()
				slog.Warn("Event delivery failed",
					"subscription_id", sub.id, "user_id", sub.userID,
					"event_type", event.Type, "error", err)
			}
		case <-sub.done:
			return
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broadcaster) handleOne(sub *subscription, event models.GameEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("handler panicked")
			slog.Error("Event handler panic",
				"subscription_id", sub.id, "user_id", sub.userID, "panic", r)
		}
	}()
	return sub.handler(event)
}

func (b *Broadcaster) cleanupLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.reapIdle()
		case <-b.stopCh:
			return
		}
	}
}

// reapIdle unsubscribes everything idle past the subscription timeout.
func (b *Broadcaster) reapIdle() {
	cutoff := time.Now().Add(-b.cfg.SubscriptionTimeout)

	b.mu.RLock()
	var stale []string
	for id, sub := range b.subs {
		if sub.idleSince().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	b.mu.RUnlock()

	for _, id := range stale {
		if err := b.Unsubscribe(id); err == nil {
			slog.Info("Idle subscription reaped", "subscription_id", id)
		}
	}
}

// Close flushes pending batches and stops all delivery goroutines.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	batchers := make([]*batcher, 0, len(b.batchers))
	for _, bt := range b.batchers {
		batchers = append(batchers, bt)
	}
	b.mu.Unlock()

	for _, bt := range batchers {
		bt.stop()
	}
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.wg.Wait()
}
