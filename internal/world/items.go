package world

import (
	"context"
	"sort"

	"skirmish/server/internal/command"
	"skirmish/server/internal/interaction"
	"skirmish/server/logging/economy"
)

// Pickup failure reasons.
const (
	ReasonUnknownObject = "unknown_object"
	ReasonChestOpened   = "chest_already_opened"
)

// Stack is a quantity of one item type.
type Stack struct {
	ItemType uint32 `json:"itemType"`
	Count    int    `json:"count"`
}

// GroundItem is a stack lying in the scene.
type GroundItem struct {
	ID       uint32               `json:"id"`
	Stack    Stack                `json:"stack"`
	Position interaction.Position `json:"position"`
}

// Chest grants its loot once.
type Chest struct {
	ID       uint32               `json:"id"`
	Position interaction.Position `json:"position"`
	Loot     []Stack              `json:"loot"`
	Opened   bool                 `json:"opened"`
}

// SpawnItem places a stack on the ground and returns its object id.
func (w *World) SpawnItem(stack Stack, at interaction.Position) uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.allocateIDLocked()
	w.items[id] = &GroundItem{ID: id, Stack: stack, Position: at}
	return id
}

// SpawnChest places a closed chest and returns its object id.
func (w *World) SpawnChest(at interaction.Position, loot []Stack) uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.allocateIDLocked()
	w.chests[id] = &Chest{ID: id, Position: at, Loot: append([]Stack(nil), loot...)}
	return id
}

// GroundItems returns the ground items ordered by id.
func (w *World) GroundItems() []GroundItem {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]GroundItem, 0, len(w.items))
	for _, item := range w.items {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Chest returns a copy of the chest with the given id.
func (w *World) Chest(id uint32) (Chest, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	chest, ok := w.chests[id]
	if !ok {
		return Chest{}, false
	}
	copied := *chest
	copied.Loot = append([]Stack(nil), chest.Loot...)
	return copied, true
}

// Inventory returns a copy of an entity's item counts by item type.
func (w *World) Inventory(entity command.EntityID) map[uint32]int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	inv := w.inventories[entity]
	out := make(map[uint32]int, len(inv))
	for k, v := range inv {
		out[k] = v
	}
	return out
}

// PickerPickupItem moves a ground item into the actor's inventory.
func (w *World) PickerPickupItem(actor command.EntityID, itemID uint32) bool {
	w.mu.Lock()
	item, ok := w.items[itemID]
	if ok {
		delete(w.items, itemID)
		w.grantLocked(actor, item.Stack)
	}
	w.mu.Unlock()

	if !ok {
		economy.ItemPickupFailed(context.Background(), w.publisher, w.tick(), actorRef(actor), economy.PickupFailedPayload{ObjectID: itemID, Reason: ReasonUnknownObject}, nil)
		return false
	}
	economy.ItemPickedUp(context.Background(), w.publisher, w.tick(), actorRef(actor), economy.ItemPayload{
		ObjectID: itemID,
		ItemType: item.Stack.ItemType,
		Quantity: item.Stack.Count,
	}, nil)
	return true
}

// PickerPickUpChest opens a chest and grants its loot. A chest opens once.
func (w *World) PickerPickUpChest(actor command.EntityID, chestID uint32) bool {
	w.mu.Lock()
	chest, ok := w.chests[chestID]
	reason := ""
	switch {
	case !ok:
		reason = ReasonUnknownObject
	case chest.Opened:
		reason = ReasonChestOpened
	default:
		chest.Opened = true
		for _, stack := range chest.Loot {
			w.grantLocked(actor, stack)
		}
	}
	w.mu.Unlock()

	if reason != "" {
		economy.ItemPickupFailed(context.Background(), w.publisher, w.tick(), actorRef(actor), economy.PickupFailedPayload{ObjectID: chestID, Reason: reason}, nil)
		return false
	}
	economy.ChestOpened(context.Background(), w.publisher, w.tick(), actorRef(actor), economy.ChestOpenedPayload{
		ChestID: chestID,
		Loot:    itemPayloads(chest.Loot, nil),
	}, nil)
	return true
}

// DropItems moves stacks from the actor's inventory onto the ground at the
// given position. Each stack is capped at what the actor holds; stacks the
// actor does not hold are skipped. It returns the number of stacks placed.
func (w *World) DropItems(actor command.EntityID, at interaction.Position, items []interaction.DroppedItem) int {
	w.mu.Lock()
	inv := w.inventories[actor]
	placed := make([]GroundItem, 0, len(items))
	for _, item := range items {
		held := inv[item.ItemType]
		count := min(item.Count, held)
		if count <= 0 {
			continue
		}
		if held == count {
			delete(inv, item.ItemType)
		} else {
			inv[item.ItemType] = held - count
		}
		id := w.allocateIDLocked()
		ground := &GroundItem{ID: id, Stack: Stack{ItemType: item.ItemType, Count: count}, Position: at}
		w.items[id] = ground
		placed = append(placed, *ground)
	}
	w.mu.Unlock()

	if len(placed) > 0 {
		stacks := make([]Stack, len(placed))
		ids := make([]uint32, len(placed))
		for i, g := range placed {
			stacks[i] = g.Stack
			ids[i] = g.ID
		}
		economy.ItemsDropped(context.Background(), w.publisher, w.tick(), actorRef(actor), economy.ItemsDroppedPayload{Items: itemPayloads(stacks, ids)}, nil)
	}
	return len(placed)
}

func (w *World) grantLocked(actor command.EntityID, stack Stack) {
	if stack.Count <= 0 {
		return
	}
	inv := w.inventories[actor]
	if inv == nil {
		inv = make(map[uint32]int)
		w.inventories[actor] = inv
	}
	inv[stack.ItemType] += stack.Count
}

func itemPayloads(stacks []Stack, ids []uint32) []economy.ItemPayload {
	out := make([]economy.ItemPayload, len(stacks))
	for i, s := range stacks {
		out[i] = economy.ItemPayload{ItemType: s.ItemType, Quantity: s.Count}
		if i < len(ids) {
			out[i].ObjectID = ids[i]
		}
	}
	return out
}
