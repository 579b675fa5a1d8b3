package animation

import (
	"fmt"
	"sort"

	"skirmish/server/internal/command"
)

// ActionKind classifies an animation id.
type ActionKind string

const (
	ActionMovement    ActionKind = "movement"
	ActionInteraction ActionKind = "interaction"
	ActionAnimation   ActionKind = "animation"
)

// CooldownKind selects the cooldown variant built for an entry.
type CooldownKind string

const (
	CooldownSimple CooldownKind = "simple"
	CooldownCombo  CooldownKind = "combo"
)

// Entry configures one animation id.
type Entry struct {
	Action       ActionKind   `yaml:"action" json:"action" jsonschema:"required,enum=movement,enum=interaction,enum=animation"`
	Cooldown     CooldownKind `yaml:"cooldown" json:"cooldown" jsonschema:"required,enum=simple,enum=combo"`
	Duration     float64      `yaml:"duration" json:"duration,omitempty" jsonschema:"minimum=0,description=Cooldown in seconds"`
	MaxStages    int          `yaml:"maxStages" json:"maxStages,omitempty" jsonschema:"minimum=1,description=Combo stages before the chain ends"`
	ComboWindow  float64      `yaml:"comboWindow" json:"comboWindow,omitempty" jsonschema:"description=Seconds a combo window stays open"`
	StrengthCost float64      `yaml:"strengthCost" json:"strengthCost,omitempty" jsonschema:"minimum=0"`
}

// Table maps animation ids to their configuration.
type Table map[command.AnimationID]Entry

// DefaultTable is used when no animation file is configured.
func DefaultTable() Table {
	return Table{
		"walk":       {Action: ActionMovement, Cooldown: CooldownSimple},
		"sprint":     {Action: ActionMovement, Cooldown: CooldownSimple},
		"dodge":      {Action: ActionMovement, Cooldown: CooldownSimple, Duration: 0.8, StrengthCost: 15},
		"interact":   {Action: ActionInteraction, Cooldown: CooldownSimple, Duration: 0.25},
		"slash":      {Action: ActionAnimation, Cooldown: CooldownCombo, Duration: 1.0, MaxStages: 3, ComboWindow: 0.5, StrengthCost: 10},
		"heavy_slam": {Action: ActionAnimation, Cooldown: CooldownSimple, Duration: 2.5, StrengthCost: 30},
	}
}

// IDs lists the table's animation ids in sorted order.
func (t Table) IDs() []command.AnimationID {
	ids := make([]command.AnimationID, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Validate builds every cooldown once so configuration errors surface at
// load time.
func (t Table) Validate(minWindow float64) error {
	for _, id := range t.IDs() {
		if _, err := t[id].NewCooldown(minWindow); err != nil {
			return fmt.Errorf("animation %q: %w", id, err)
		}
	}
	return nil
}

// NewCooldown constructs the cooldown variant the entry describes.
func (e Entry) NewCooldown(minWindow float64) (Cooldown, error) {
	switch e.Cooldown {
	case CooldownSimple, "":
		return NewSimpleCooldown(e.Duration), nil
	case CooldownCombo:
		return NewComboCooldown(e.Duration, e.MaxStages, e.ComboWindow, minWindow)
	default:
		return nil, fmt.Errorf("animation: unknown cooldown kind %q", e.Cooldown)
	}
}
