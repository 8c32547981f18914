package broadcast

import (
	"sync"
	"time"

	"github.com/encounterlive/encounterd/pkg/models"
)

// batcher accumulates one room's state deltas and flushes them as a
// single STATE_DELTA event. A flush happens when the batch reaches
// MaxBatchSize, or BatchDelay after the first delta was queued,
// whichever comes first.
type batcher struct {
	interactionID string
	b             *Broadcaster

	mu      sync.Mutex
	pending []models.StateDelta
	timer   *time.Timer
}

func newBatcher(interactionID string, b *Broadcaster) *batcher {
	return &batcher{interactionID: interactionID, b: b}
}

func (bt *batcher) add(delta models.StateDelta) {
	bt.mu.Lock()
	bt.pending = append(bt.pending, delta)
	if len(bt.pending) >= bt.b.cfg.MaxBatchSize {
		batch := bt.takeLocked()
		bt.mu.Unlock()
		bt.flush(batch)
		return
	}
	if bt.timer == nil {
		bt.timer = time.AfterFunc(bt.b.cfg.BatchDelay, bt.onTimer)
	}
	bt.mu.Unlock()
}

func (bt *batcher) onTimer() {
	bt.mu.Lock()
	batch := bt.takeLocked()
	bt.mu.Unlock()
	bt.flush(batch)
}

// takeLocked drains the pending batch and disarms the timer.
func (bt *batcher) takeLocked() []models.StateDelta {
	batch := bt.pending
	bt.pending = nil
	if bt.timer != nil {
		bt.timer.Stop()
		bt.timer = nil
	}
	return batch
}

func (bt *batcher) flush(batch []models.StateDelta) {
	if len(batch) == 0 {
		return
	}
	bt.b.metrics.BatchesFlushed.Inc()
	bt.b.Broadcast(bt.interactionID, models.GameEvent{
		Type:    models.EventStateDelta,
		Payload: map[string]any{"deltas": batch},
	})
}

// stop flushes whatever is pending. Called on broadcaster close.
func (bt *batcher) stop() {
	bt.mu.Lock()
	batch := bt.takeLocked()
	bt.mu.Unlock()
	bt.flush(batch)
}
