package world

import (
	"context"
	"sort"

	"skirmish/server/internal/command"
	"skirmish/server/internal/interaction"
	"skirmish/server/logging/lifecycle"
)

// AddPlayer binds a connection to an entity.
func (w *World) AddPlayer(connectionID int, entity command.EntityID) error {
	if entity == 0 {
		return ErrInvalidEntity
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.connections[connectionID]; ok {
		return ErrDuplicateConnection
	}
	if _, ok := w.owners[entity]; ok {
		return ErrDuplicateEntity
	}
	w.connections[connectionID] = entity
	w.owners[entity] = connectionID
	return nil
}

// RemovePlayer unbinds a connection and forgets its inventory and union.
// Members of the removed player's union become their own leaders.
func (w *World) RemovePlayer(connectionID int) (command.EntityID, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	entity, ok := w.connections[connectionID]
	if !ok {
		return 0, false
	}
	delete(w.connections, connectionID)
	delete(w.owners, entity)
	delete(w.inventories, entity)
	delete(w.unions, entity)
	for member, leader := range w.unions {
		if leader == entity {
			delete(w.unions, member)
		}
	}
	return entity, true
}

// GetPlayerNetId resolves the entity bound to a connection.
func (w *World) GetPlayerNetId(connectionID int) (command.EntityID, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	entity, ok := w.connections[connectionID]
	return entity, ok
}

// OwnerConnection resolves the connection bound to an entity.
func (w *World) OwnerConnection(entity command.EntityID) (int, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	conn, ok := w.owners[entity]
	return conn, ok
}

// Players returns the bound entities ordered by id.
func (w *World) Players() []command.EntityID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]command.EntityID, 0, len(w.owners))
	for entity := range w.owners {
		out = append(out, entity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PlayerCount reports the number of bound players.
func (w *World) PlayerCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.owners)
}

// UnionOf returns the leader of the entity's union. A player outside any
// union leads their own.
func (w *World) UnionOf(entity command.EntityID) command.EntityID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.unionOfLocked(entity)
}

func (w *World) unionOfLocked(entity command.EntityID) command.EntityID {
	if leader, ok := w.unions[entity]; ok {
		return leader
	}
	return entity
}

// InteractPlayers applies a player-to-player interaction. Greeting needs
// only a live target. Trading hands the actor's lowest item type stack to
// the target. Reviving is delegated to the revive hook.
func (w *World) InteractPlayers(actor, target command.EntityID, kind interaction.PlayerInteraction) bool {
	if actor == target {
		return false
	}
	w.mu.Lock()
	_, targetOK := w.owners[target]
	if !targetOK {
		w.mu.Unlock()
		return false
	}
	switch kind {
	case interaction.PlayerInteractionGreet:
		w.mu.Unlock()
		return true
	case interaction.PlayerInteractionTrade:
		ok := w.tradeLocked(actor, target)
		w.mu.Unlock()
		return ok
	case interaction.PlayerInteractionRevive:
		revive := w.hooks.OnRevive
		w.mu.Unlock()
		return revive != nil && revive(actor, target)
	default:
		w.mu.Unlock()
		return false
	}
}

func (w *World) tradeLocked(actor, target command.EntityID) bool {
	inv := w.inventories[actor]
	if len(inv) == 0 {
		return false
	}
	itemType := uint32(0)
	for t := range inv {
		if itemType == 0 || t < itemType {
			itemType = t
		}
	}
	stack := Stack{ItemType: itemType, Count: inv[itemType]}
	delete(inv, itemType)
	w.grantLocked(target, stack)
	return true
}

// ApplyHazard forwards a scene hazard to the hazard hook.
func (w *World) ApplyHazard(target command.EntityID, hazardID uint32, intensity float64) bool {
	w.mu.RLock()
	_, ok := w.owners[target]
	hazard := w.hooks.OnHazard
	w.mu.RUnlock()
	return ok && hazard != nil && hazard(target, hazardID, intensity)
}

// ChangeUnion moves the victim, and everyone the victim leads, into the
// killer's union.
func (w *World) ChangeUnion(killer, victim command.EntityID) bool {
	w.mu.Lock()
	_, killerOK := w.owners[killer]
	_, victimOK := w.owners[victim]
	if !killerOK || !victimOK {
		w.mu.Unlock()
		return false
	}
	leader := w.unionOfLocked(killer)
	if leader == w.unionOfLocked(victim) {
		w.mu.Unlock()
		return false
	}
	for member, l := range w.unions {
		if l == victim {
			w.unions[member] = leader
		}
	}
	w.unions[victim] = leader
	size := 1
	for _, l := range w.unions {
		if l == leader {
			size++
		}
	}
	w.mu.Unlock()

	lifecycle.UnionChanged(context.Background(), w.publisher, w.tick(), actorRef(killer), actorRef(victim), lifecycle.UnionChangedPayload{
		Leader: uint32(leader),
		Size:   size,
	}, nil)
	return true
}
