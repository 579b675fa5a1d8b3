package status_effects

import (
	"context"

	"skirmish/server/logging"
)

const (
	// EventApplied is emitted when a timed buff is applied to an actor.
	EventApplied logging.EventType = "status_effects.applied"
	// EventExpired is emitted when a buff runs out and its change is reverted.
	EventExpired logging.EventType = "status_effects.expired"
)

// AppliedPayload captures the property change a buff made.
type AppliedPayload struct {
	Property      string  `json:"property"`
	Delta         float64 `json:"delta"`
	DurationTicks int64   `json:"durationTicks"`
}

// ExpiredPayload captures the change reverted on expiry.
type ExpiredPayload struct {
	Property string  `json:"property"`
	Reverted float64 `json:"reverted"`
}

func Applied(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, target logging.EntityRef, payload AppliedPayload, extra map[string]any) {
	publish(ctx, pub, EventApplied, logging.SeverityInfo, tick, actor, []logging.EntityRef{target}, payload, extra)
}

func Expired(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ExpiredPayload, extra map[string]any) {
	publish(ctx, pub, EventExpired, logging.SeverityDebug, tick, actor, nil, payload, extra)
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
		Category: "status_effects",
		Payload:  payload,
		Extra:    extra,
	})
}
