// Package world holds the server-side scene state that interaction
// requests mutate: ground items, chests, inventories, and the binding of
// connections to player entities.
package world

import (
	"errors"
	"sync"

	"skirmish/server/internal/command"
	"skirmish/server/internal/prediction"
	"skirmish/server/logging"
)

var (
	// ErrDuplicateConnection is returned when a connection already owns an entity.
	ErrDuplicateConnection = errors.New("world: connection already bound")
	// ErrDuplicateEntity is returned when an entity is already owned.
	ErrDuplicateEntity = errors.New("world: entity already bound")
	// ErrInvalidEntity is returned for the zero entity id.
	ErrInvalidEntity = errors.New("world: invalid entity id")
)

// Hooks apply interaction effects that live outside the world, such as
// property changes on a player's entity. They are invoked without the
// world lock held.
type Hooks struct {
	OnHazard func(target command.EntityID, hazardID uint32, intensity float64) bool
	OnRevive func(actor, target command.EntityID) bool
}

// Deps bundles runtime dependencies required to construct a World.
type Deps struct {
	Publisher   logging.Publisher
	CurrentTick func() int64
	Hooks       Hooks
}

// World is safe for concurrent use.
type World struct {
	mu sync.RWMutex

	publisher   logging.Publisher
	currentTick func() int64
	hooks       Hooks

	nextObjectID uint32
	items        map[uint32]*GroundItem
	chests       map[uint32]*Chest
	inventories  map[command.EntityID]map[uint32]int

	connections map[int]command.EntityID
	owners      map[command.EntityID]int
	unions      map[command.EntityID]command.EntityID
}

// New constructs an empty world.
func New(deps Deps) *World {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &World{
		publisher:   publisher,
		currentTick: deps.CurrentTick,
		hooks:       deps.Hooks,
		items:       make(map[uint32]*GroundItem),
		chests:      make(map[uint32]*Chest),
		inventories: make(map[command.EntityID]map[uint32]int),
		connections: make(map[int]command.EntityID),
		owners:      make(map[command.EntityID]int),
		unions:      make(map[command.EntityID]command.EntityID),
	}
}

// SetHooks replaces the interaction hooks. It is used when the hook
// owner is constructed after the world.
func (w *World) SetHooks(hooks Hooks) {
	w.mu.Lock()
	w.hooks = hooks
	w.mu.Unlock()
}

func (w *World) tick() uint64 {
	if w.currentTick == nil {
		return 0
	}
	if t := w.currentTick(); t > 0 {
		return uint64(t)
	}
	return 0
}

func actorRef(id command.EntityID) logging.EntityRef {
	return prediction.EntityRef(id)
}

func (w *World) allocateIDLocked() uint32 {
	w.nextObjectID++
	return w.nextObjectID
}
