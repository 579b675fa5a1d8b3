package lifecycle

import (
	"context"

	"skirmish/server/logging"
)

const (
	// EventPlayerJoined is emitted when a connection is bound to a new entity.
	EventPlayerJoined logging.EventType = "lifecycle.player_joined"
	// EventPlayerDisconnected is emitted when a player's entity is despawned.
	EventPlayerDisconnected logging.EventType = "lifecycle.player_disconnected"
	// EventUnionChanged is emitted when a player is absorbed into another union.
	EventUnionChanged logging.EventType = "lifecycle.union_changed"
)

// PlayerJoinedPayload captures the binding of a connection to an entity.
type PlayerJoinedPayload struct {
	ConnectionID int    `json:"connectionId"`
	EntityID     uint32 `json:"entityId"`
}

// PlayerDisconnectedPayload captures the reason a player left.
type PlayerDisconnectedPayload struct {
	Reason string `json:"reason"`
}

// UnionChangedPayload records the new union leader for a victim.
type UnionChangedPayload struct {
	Leader uint32 `json:"leader"`
	Size   int    `json:"size"`
}

func PlayerJoined(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PlayerJoinedPayload, extra map[string]any) {
	publish(ctx, pub, EventPlayerJoined, logging.SeverityInfo, tick, actor, nil, payload, extra)
}

func PlayerDisconnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PlayerDisconnectedPayload, extra map[string]any) {
	publish(ctx, pub, EventPlayerDisconnected, logging.SeverityInfo, tick, actor, nil, payload, extra)
}

// UnionChanged reports target joining the union led by payload.Leader.
func UnionChanged(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, target logging.EntityRef, payload UnionChangedPayload, extra map[string]any) {
	publish(ctx, pub, EventUnionChanged, logging.SeverityInfo, tick, actor, []logging.EntityRef{target}, payload, extra)
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
		Category: "lifecycle",
		Payload:  payload,
		Extra:    extra,
	})
}
