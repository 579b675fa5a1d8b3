package economy

import (
	"context"

	"skirmish/server/logging"
)

const (
	// EventItemPickedUp is emitted when a ground item moves into an inventory.
	EventItemPickedUp logging.EventType = "economy.item_picked_up"
	// EventItemPickupFailed is emitted when a pickup or chest attempt is refused.
	EventItemPickupFailed logging.EventType = "economy.item_pickup_failed"
	// EventChestOpened is emitted when a chest's loot is granted.
	EventChestOpened logging.EventType = "economy.chest_opened"
	// EventItemsDropped is emitted when stacks leave an inventory for the ground.
	EventItemsDropped logging.EventType = "economy.items_dropped"
)

// ItemPayload describes one stack.
type ItemPayload struct {
	ObjectID uint32 `json:"objectId,omitempty"`
	ItemType uint32 `json:"itemType"`
	Quantity int    `json:"quantity"`
}

// PickupFailedPayload describes why a pickup failed.
type PickupFailedPayload struct {
	ObjectID uint32 `json:"objectId"`
	Reason   string `json:"reason"`
}

// ChestOpenedPayload lists the granted loot.
type ChestOpenedPayload struct {
	ChestID uint32        `json:"chestId"`
	Loot    []ItemPayload `json:"loot"`
}

// ItemsDroppedPayload lists the stacks placed on the ground.
type ItemsDroppedPayload struct {
	Items []ItemPayload `json:"items"`
}

// ItemPickedUp publishes a pickup event.
func ItemPickedUp(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ItemPayload, extra map[string]any) {
	publish(ctx, pub, EventItemPickedUp, logging.SeverityInfo, tick, actor, payload, extra)
}

// ItemPickupFailed publishes a failed pickup event.
func ItemPickupFailed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PickupFailedPayload, extra map[string]any) {
	publish(ctx, pub, EventItemPickupFailed, logging.SeverityWarn, tick, actor, payload, extra)
}

// ChestOpened publishes a chest loot event.
func ChestOpened(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ChestOpenedPayload, extra map[string]any) {
	publish(ctx, pub, EventChestOpened, logging.SeverityInfo, tick, actor, payload, extra)
}

// ItemsDropped publishes a drop event.
func ItemsDropped(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ItemsDroppedPayload, extra map[string]any) {
	publish(ctx, pub, EventItemsDropped, logging.SeverityInfo, tick, actor, payload, extra)
}

func publish(ctx context.Context, pub logging.Publisher, typ logging.EventType, severity logging.Severity, tick uint64, actor logging.EntityRef, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     typ,
		Tick:     tick,
		Actor:    actor,
		Severity: severity,
		Category: "economy",
		Payload:  payload,
		Extra:    extra,
	})
}
