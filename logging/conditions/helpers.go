package conditions

import (
	"context"

	"skirmish/server/logging"
)

const (
	// EventApplied is emitted when terrain or sprinting changes an actor's speed.
	EventApplied logging.EventType = "conditions.applied"
)

// AppliedPayload captures the terrain condition and resulting speed.
type AppliedPayload struct {
	Environment string  `json:"environment"`
	Sprinting   bool    `json:"sprinting,omitempty"`
	Speed       float64 `json:"speed"`
}

func Applied(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, target logging.EntityRef, payload AppliedPayload, extra map[string]any) {
	publish(ctx, pub, EventApplied, logging.SeverityDebug, tick, actor, []logging.EntityRef{target}, payload, extra)
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
		Category: "conditions",
		Payload:  payload,
		Extra:    extra,
	})
}
