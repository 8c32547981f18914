package engine

import (
	"github.com/encounterlive/encounterd/pkg/models"
)

// ComputeDelta diffs two snapshots over the observable field set:
// status, turn pointer, entity fields, initiative order, map entity
// positions, and the appended tails of turn history and chat log.
// Applying the result to prev with ApplyDelta reproduces curr's
// observable fields.
func ComputeDelta(prev, curr *models.GameState) models.StateDelta {
	var d models.StateDelta

	if prev.Status != curr.Status {
		s := curr.Status
		d.Status = &s
	}
	if prev.CurrentTurnIndex != curr.CurrentTurnIndex {
		i := curr.CurrentTurnIndex
		d.CurrentTurnIndex = &i
	}
	if prev.RoundNumber != curr.RoundNumber {
		r := curr.RoundNumber
		d.RoundNumber = &r
	}

	for id, ce := range curr.Entities {
		pe, existed := prev.Entities[id]
		ed := diffEntity(pe, ce, !existed)
		if ed != nil {
			d.Entities = append(d.Entities, *ed)
		}
	}
	for id := range prev.Entities {
		if _, ok := curr.Entities[id]; !ok {
			d.Entities = append(d.Entities, models.EntityDelta{EntityID: id, Removed: true})
		}
	}

	if !initiativeEqual(prev.InitiativeOrder, curr.InitiativeOrder) {
		d.InitiativeOrder = append([]models.InitiativeEntry(nil), curr.InitiativeOrder...)
	}

	if !positionsEqual(prev.Map.Entities, curr.Map.Entities) {
		d.MapEntities = make(map[string]models.Position, len(curr.Map.Entities))
		for id, p := range curr.Map.Entities {
			d.MapEntities[id] = p
		}
	}

	if n := len(curr.TurnHistory) - len(prev.TurnHistory); n > 0 {
		tail := curr.TurnHistory[len(prev.TurnHistory):]
		d.NewTurnRecords = make([]models.TurnRecord, 0, n)
		for i := range tail {
			d.NewTurnRecords = append(d.NewTurnRecords, *tail[i].Clone())
		}
	}
	if n := len(curr.ChatLog) - len(prev.ChatLog); n > 0 {
		d.NewChatMessages = append([]models.ChatMessage(nil), curr.ChatLog[len(prev.ChatLog):]...)
	}

	return d
}

// diffEntity returns the changed fields of one entity, or nil when
// nothing observable changed. full forces every field (new entities).
func diffEntity(prev, curr *models.EntityState, full bool) *models.EntityDelta {
	ed := models.EntityDelta{EntityID: curr.EntityID}
	changed := false

	if full || prev.Position != curr.Position {
		p := curr.Position
		ed.Position = &p
		changed = true
	}
	if full || prev.CurrentHP != curr.CurrentHP {
		hp := curr.CurrentHP
		ed.CurrentHP = &hp
		changed = true
	}
	if full || prev.TurnStatus != curr.TurnStatus {
		ts := curr.TurnStatus
		ed.TurnStatus = &ts
		changed = true
	}
	if full || !inventoryEqual(prev.Inventory, curr.Inventory) {
		inv := models.Inventory{Items: append([]models.InventoryItem(nil), curr.Inventory.Items...)}
		ed.Inventory = &inv
		changed = true
	}

	if !changed {
		return nil
	}
	return &ed
}

func initiativeEqual(a, b []models.InitiativeEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func positionsEqual(a, b map[string]models.Position) bool {
	if len(a) != len(b) {
		return false
	}
	for id, p := range a {
		if q, ok := b[id]; !ok || q != p {
			return false
		}
	}
	return true
}

func inventoryEqual(a, b models.Inventory) bool {
	if len(a.Items) != len(b.Items) {
		return false
	}
	for i := range a.Items {
		if a.Items[i] != b.Items[i] {
			return false
		}
	}
	return true
}

// ApplyDelta applies a delta in place. Clients use this to converge a
// local snapshot on the server's observable state.
func ApplyDelta(state *models.GameState, d models.StateDelta) {
	if d.Status != nil {
		state.Status = *d.Status
	}
	if d.CurrentTurnIndex != nil {
		state.CurrentTurnIndex = *d.CurrentTurnIndex
	}
	if d.RoundNumber != nil {
		state.RoundNumber = *d.RoundNumber
	}

	for _, ed := range d.Entities {
		if ed.Removed {
			delete(state.Entities, ed.EntityID)
			delete(state.Map.Entities, ed.EntityID)
			continue
		}
		entity, ok := state.Entities[ed.EntityID]
		if !ok {
			entity = &models.EntityState{EntityID: ed.EntityID}
			state.Entities[ed.EntityID] = entity
		}
		if ed.Position != nil {
			entity.Position = *ed.Position
		}
		if ed.CurrentHP != nil {
			entity.CurrentHP = *ed.CurrentHP
		}
		if ed.TurnStatus != nil {
			entity.TurnStatus = *ed.TurnStatus
		}
		if ed.Inventory != nil {
			entity.Inventory = models.Inventory{Items: append([]models.InventoryItem(nil), ed.Inventory.Items...)}
		}
	}

	if d.InitiativeOrder != nil {
		state.InitiativeOrder = append([]models.InitiativeEntry(nil), d.InitiativeOrder...)
	}
	if d.MapEntities != nil {
		state.Map.Entities = make(map[string]models.Position, len(d.MapEntities))
		for id, p := range d.MapEntities {
			state.Map.Entities[id] = p
		}
	}
	for i := range d.NewTurnRecords {
		state.TurnHistory = append(state.TurnHistory, *d.NewTurnRecords[i].Clone())
	}
	state.ChatLog = append(state.ChatLog, d.NewChatMessages...)
	if !d.Timestamp.IsZero() {
		state.UpdatedAt = d.Timestamp
	}
}
