package engine

import (
	"fmt"

	"github.com/encounterlive/encounterd/pkg/models"
)

// Rules holds the action-validation parameters. Movement and attack
// ranges are placeholders until entities and weapons carry their own.
type Rules struct {
	MaxMoveDistance int
	MaxAttackRange  int
}

// DefaultRules returns the hard-coded placeholder ranges.
func DefaultRules() Rules {
	return Rules{MaxMoveDistance: 5, MaxAttackRange: 1}
}

// healingPotionItemID is the only item with a real effect in the
// placeholder item model.
const healingPotionItemID = "healing_potion"

// healingPotionHP is how much a healing potion restores.
const healingPotionHP = 5

// manhattan returns the Manhattan distance between two positions.
func manhattan(a, b models.Position) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

// ValidateAction checks an action against the given state and returns
// the list of rule violations. An empty slice means the action is
// legal. The same function runs server-side in the engine and
// client-side in the prediction layer, so the two always agree.
func ValidateAction(state *models.GameState, action models.TurnAction, rules Rules) []string {
	var errs []string

	if state.Status != models.GameStatusActive {
		return append(errs, fmt.Sprintf("game is not active (status: %s)", state.Status))
	}

	current := state.CurrentEntity()
	if current == nil {
		return append(errs, "initiative order is empty")
	}
	if action.EntityID != current.EntityID {
		return append(errs, fmt.Sprintf("not your turn: current turn belongs to %s", current.EntityID))
	}

	entity, ok := state.Entities[action.EntityID]
	if !ok {
		return append(errs, fmt.Sprintf("entity %s does not exist", action.EntityID))
	}

	switch action.Type {
	case models.ActionMove:
		errs = append(errs, validateMove(state, entity, action, rules)...)
	case models.ActionAttack:
		errs = append(errs, validateAttack(state, entity, action, rules)...)
	case models.ActionUseItem:
		errs = append(errs, validateUseItem(entity, action)...)
	case models.ActionCast:
		if action.SpellID == "" {
			errs = append(errs, "cast action requires spell_id")
		}
	case models.ActionInteract, models.ActionEnd:
		// Always valid.
	default:
		errs = append(errs, fmt.Sprintf("unknown action type: %s", action.Type))
	}

	return errs
}

func validateMove(state *models.GameState, entity *models.EntityState, action models.TurnAction, rules Rules) []string {
	var errs []string
	if action.Position == nil {
		return append(errs, "move action requires position")
	}
	pos := *action.Position
	if !state.Map.InBounds(pos) {
		errs = append(errs, fmt.Sprintf("position (%d,%d) is out of bounds", pos.X, pos.Y))
	}
	if state.Map.IsObstacle(pos) {
		errs = append(errs, fmt.Sprintf("position (%d,%d) is blocked by an obstacle", pos.X, pos.Y))
	}
	for id, occupied := range state.Map.Entities {
		if id != entity.EntityID && occupied == pos {
			errs = append(errs, fmt.Sprintf("position (%d,%d) is occupied by %s", pos.X, pos.Y, id))
			break
		}
	}
	if d := manhattan(entity.Position, pos); d > rules.MaxMoveDistance {
		errs = append(errs, fmt.Sprintf("move distance %d exceeds maximum %d", d, rules.MaxMoveDistance))
	}
	return errs
}

func validateAttack(state *models.GameState, entity *models.EntityState, action models.TurnAction, rules Rules) []string {
	var errs []string
	if action.TargetID == "" {
		return append(errs, "attack action requires target_id")
	}
	target, ok := state.Entities[action.TargetID]
	if !ok {
		return append(errs, fmt.Sprintf("target %s does not exist", action.TargetID))
	}
	if d := manhattan(entity.Position, target.Position); d > rules.MaxAttackRange {
		errs = append(errs, "target out of range")
	}
	return errs
}

func validateUseItem(entity *models.EntityState, action models.TurnAction) []string {
	var errs []string
	if action.ItemID == "" {
		return append(errs, "useItem action requires item_id")
	}
	for _, item := range entity.Inventory.Items {
		if item.ItemID == action.ItemID && item.Quantity > 0 {
			return errs
		}
	}
	return append(errs, fmt.Sprintf("entity has no usable item %s", action.ItemID))
}

// ApplyAction mutates state with the execution side effects of a
// previously validated action. Damage and spell resolution are
// deliberate stubs; only movement, the placeholder attack, and item
// use change state.
func ApplyAction(state *models.GameState, action models.TurnAction) {
	entity := state.Entities[action.EntityID]

	switch action.Type {
	case models.ActionMove:
		entity.Position = *action.Position
		state.Map.Entities[entity.EntityID] = *action.Position

	case models.ActionAttack:
		target := state.Entities[action.TargetID]
		target.CurrentHP = max(0, target.CurrentHP-1)

	case models.ActionUseItem:
		applyUseItem(entity, action.ItemID)

	case models.ActionCast, models.ActionInteract, models.ActionEnd:
		// Stubs: no state change.
	}
}

func applyUseItem(entity *models.EntityState, itemID string) {
	items := entity.Inventory.Items
	for i := range items {
		if items[i].ItemID != itemID || items[i].Quantity <= 0 {
			continue
		}
		items[i].Quantity--
		if items[i].Quantity == 0 {
			entity.Inventory.Items = append(items[:i], items[i+1:]...)
		}
		if itemID == healingPotionItemID {
			entity.CurrentHP = min(entity.MaxHP, entity.CurrentHP+healingPotionHP)
		}
		return
	}
}
