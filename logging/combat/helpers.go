package combat

import (
	"context"

	"skirmish/server/logging"
)

const (
	// EventAttackOverlap is emitted when one attack command names several defenders.
	EventAttackOverlap logging.EventType = "combat.attack_overlap"
	// EventDamage is emitted when an attack removes health from a defender.
	EventDamage logging.EventType = "combat.damage"
	// EventDefeat is emitted when a defender's health reaches zero.
	EventDefeat logging.EventType = "combat.defeat"
)

// AttackOverlapPayload summarises a multi-target attack.
type AttackOverlapPayload struct {
	Ability string `json:"ability"`
	Hits    int    `json:"hits"`
}

// DamagePayload captures the amount dealt to a single target.
type DamagePayload struct {
	Ability      string  `json:"ability,omitempty"`
	Amount       float64 `json:"amount"`
	TargetHealth float64 `json:"targetHealth"`
}

// DefeatPayload describes the context for a fatal blow.
type DefeatPayload struct {
	Ability string `json:"ability,omitempty"`
}

func AttackOverlap(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, targets []logging.EntityRef, payload AttackOverlapPayload, extra map[string]any) {
	publish(ctx, pub, EventAttackOverlap, logging.SeverityInfo, tick, actor, targets, payload, extra)
}

// Damage reports health removed from target, by an attack or a hazard.
func Damage(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, target logging.EntityRef, payload DamagePayload, extra map[string]any) {
	publish(ctx, pub, EventDamage, logging.SeverityInfo, tick, actor, []logging.EntityRef{target}, payload, extra)
}

func Defeat(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, target logging.EntityRef, payload DefeatPayload, extra map[string]any) {
	publish(ctx, pub, EventDefeat, logging.SeverityInfo, tick, actor, []logging.EntityRef{target}, payload, extra)
}

func publish(ctx context.Context, pub logging.Publisher, typ logging.EventType, severity logging.Severity, tick uint64, actor logging.EntityRef, targets []logging.EntityRef, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     typ,
		Tick:     tick,
		Actor:    actor,
		Targets:  targets,
		Severity: severity,
		Category: "combat",
		Payload:  payload,
		Extra:    extra,
	})
}
