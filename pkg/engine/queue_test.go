package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encounterlive/encounterd/pkg/models"
)

func TestQueueDisabled(t *testing.T) {
	cfg := testEngineConfig()
	cfg.EnableActionQueue = false
	e := newCombatEngine(t, cfg)

	_, err := e.QueueTurnAction(models.TurnAction{Type: models.ActionEnd, EntityID: "fighter"})
	assert.ErrorIs(t, err, ErrQueueDisabled)
}

// Queued actions drain in FIFO order through the same path as direct
// actions. A turn-ending attack does not stop the drain: anything
// queued behind it runs immediately and fails out of turn instead of
// lingering into a later round.
func TestQueueDrainsInOrderAndFailsStaleFollowUp(t *testing.T) {
	e := newCombatEngine(t, testEngineConfig())
	require.NoError(t, e.Activate())

	for _, a := range []models.TurnAction{
		{Type: models.ActionMove, EntityID: "fighter", Position: &models.Position{X: 1, Y: 0}},
		{Type: models.ActionMove, EntityID: "fighter", Position: &models.Position{X: 1, Y: 1}},
		{Type: models.ActionAttack, EntityID: "fighter", TargetID: "goblin"},
		{Type: models.ActionMove, EntityID: "fighter", Position: &models.Position{X: 2, Y: 1}},
	} {
		_, err := e.QueueTurnAction(a)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return len(e.QueuedActions("fighter")) == 0
	}, 2*time.Second, 5*time.Millisecond)

	state := e.Snapshot()
	assert.Equal(t, 4, state.Entities["goblin"].CurrentHP)
	assert.Equal(t, "goblin", state.CurrentEntity().EntityID, "attack ended the turn")
	assert.Equal(t, models.Position{X: 1, Y: 1}, state.Entities["fighter"].Position,
		"the stale move after the attack failed out of turn")
}

// An explicit end halts the drain; actions queued behind it stay
// pending for the entity's next turn.
func TestQueueHaltsOnEndAction(t *testing.T) {
	e := newCombatEngine(t, testEngineConfig())
	require.NoError(t, e.Activate())

	_, err := e.QueueTurnAction(models.TurnAction{Type: models.ActionEnd, EntityID: "fighter"})
	require.NoError(t, err)
	_, err = e.QueueTurnAction(models.TurnAction{
		Type: models.ActionMove, EntityID: "fighter", Position: &models.Position{X: 1, Y: 0},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return e.Snapshot().CurrentEntity().EntityID == "goblin"
	}, 2*time.Second, 5*time.Millisecond)

	pending := e.QueuedActions("fighter")
	require.Len(t, pending, 1)
	assert.Equal(t, models.ActionMove, pending[0].Action.Type)
	assert.Equal(t, models.QueuedActionPending, pending[0].Status)
}

func TestQueueHaltsOnFailure(t *testing.T) {
	e := newCombatEngine(t, testEngineConfig())
	require.NoError(t, e.Activate())

	// Out of range attack fails; the following move must stay pending.
	_, err := e.QueueTurnAction(models.TurnAction{
		Type: models.ActionMove, EntityID: "fighter", Position: &models.Position{X: 9, Y: 9},
	})
	require.NoError(t, err)
	_, err = e.QueueTurnAction(models.TurnAction{
		Type: models.ActionMove, EntityID: "fighter", Position: &models.Position{X: 1, Y: 0},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		pending := e.QueuedActions("fighter")
		return len(pending) == 1
	}, 2*time.Second, 5*time.Millisecond)

	state := e.Snapshot()
	assert.Equal(t, models.Position{X: 0, Y: 0}, state.Entities["fighter"].Position,
		"failed action left state unchanged and halted the drain")
}

func TestQueueEmitsCompletionEvents(t *testing.T) {
	events := make(chan models.GameEvent, 16)
	e := New(testEngineConfig(), models.NewGameState("int-1", 10, 10), func(ev models.GameEvent) {
		if ev.Type == models.EventQueuedActionCompleted {
			events <- ev
		}
	}, nil)
	addTestEntity(t, e, "fighter", 18, models.Position{X: 0, Y: 0}, 10)
	require.NoError(t, e.Activate())

	id, err := e.QueueTurnAction(models.TurnAction{Type: models.ActionEnd, EntityID: "fighter"})
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, "fighter", ev.EntityID)
		assert.Equal(t, id, ev.Payload["queued_action_id"])
		assert.Equal(t, models.QueuedActionCompleted, ev.Payload["status"])
	case <-time.After(2 * time.Second):
		t.Fatal("no QUEUED_ACTION_COMPLETED event")
	}
}

func TestCancelQueuedAction(t *testing.T) {
	e := newCombatEngine(t, testEngineConfig())
	require.NoError(t, e.Activate())

	// Halt the goblin's queue immediately: out-of-turn action fails.
	_, err := e.QueueTurnAction(models.TurnAction{
		Type: models.ActionMove, EntityID: "goblin", Position: &models.Position{X: 1, Y: 1},
	})
	require.NoError(t, err)
	id, err := e.QueueTurnAction(models.TurnAction{Type: models.ActionEnd, EntityID: "goblin"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(e.QueuedActions("goblin")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, e.CancelQueuedAction("goblin", id))
	assert.False(t, e.CancelQueuedAction("goblin", id), "second cancel finds nothing")
	assert.Empty(t, e.QueuedActions("goblin"))
}

func TestQueuesIndependentPerEntity(t *testing.T) {
	e := newCombatEngine(t, testEngineConfig())
	require.NoError(t, e.Activate())

	// Goblin queues while the fighter acts; the goblin's queued move
	// fails out of turn without touching the fighter's queue.
	_, err := e.QueueTurnAction(models.TurnAction{
		Type: models.ActionMove, EntityID: "goblin", Position: &models.Position{X: 1, Y: 1},
	})
	require.NoError(t, err)
	_, err = e.QueueTurnAction(models.TurnAction{
		Type: models.ActionMove, EntityID: "fighter", Position: &models.Position{X: 1, Y: 0},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return e.Snapshot().Entities["fighter"].Position == (models.Position{X: 1, Y: 0})
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, models.Position{X: 0, Y: 1}, e.Snapshot().Entities["goblin"].Position)
}
