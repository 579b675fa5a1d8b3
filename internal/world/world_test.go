package world

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"skirmish/server/internal/command"
	"skirmish/server/internal/interaction"
	"skirmish/server/logging"
	"skirmish/server/logging/economy"
	"skirmish/server/logging/lifecycle"
)

type recorder struct {
	mu     sync.Mutex
	events []logging.Event
}

func (r *recorder) Publish(_ context.Context, event logging.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) types() []logging.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]logging.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func newTestWorld(t *testing.T, hooks Hooks) (*World, *recorder) {
	t.Helper()
	rec := &recorder{}
	w := New(Deps{Publisher: rec, CurrentTick: func() int64 { return 7 }, Hooks: hooks})
	require.NoError(t, w.AddPlayer(1, 101))
	require.NoError(t, w.AddPlayer(2, 102))
	return w, rec
}

func TestAddPlayerRejectsDuplicates(t *testing.T) {
	w, _ := newTestWorld(t, Hooks{})
	require.ErrorIs(t, w.AddPlayer(1, 103), ErrDuplicateConnection)
	require.ErrorIs(t, w.AddPlayer(3, 101), ErrDuplicateEntity)
	require.ErrorIs(t, w.AddPlayer(3, 0), ErrInvalidEntity)

	id, ok := w.GetPlayerNetId(2)
	require.True(t, ok)
	require.Equal(t, command.EntityID(102), id)
	conn, ok := w.OwnerConnection(101)
	require.True(t, ok)
	require.Equal(t, 1, conn)
	require.Equal(t, []command.EntityID{101, 102}, w.Players())

	removed, ok := w.RemovePlayer(1)
	require.True(t, ok)
	require.Equal(t, command.EntityID(101), removed)
	_, ok = w.GetPlayerNetId(1)
	require.False(t, ok)
	require.Equal(t, 1, w.PlayerCount())
}

func TestPickupMovesItemIntoInventory(t *testing.T) {
	w, rec := newTestWorld(t, Hooks{})
	id := w.SpawnItem(Stack{ItemType: 4, Count: 3}, interaction.Position{X: 1})

	require.True(t, w.PickerPickupItem(101, id))
	require.False(t, w.PickerPickupItem(102, id), "item can only be picked up once")
	require.Empty(t, w.GroundItems())
	require.Equal(t, map[uint32]int{4: 3}, w.Inventory(101))
	require.Equal(t, []logging.EventType{economy.EventItemPickedUp, economy.EventItemPickupFailed}, rec.types())
}

func TestChestOpensOnce(t *testing.T) {
	w, _ := newTestWorld(t, Hooks{})
	chest := w.SpawnChest(interaction.Position{}, []Stack{{ItemType: 1, Count: 10}, {ItemType: 2, Count: 1}})

	require.True(t, w.PickerPickUpChest(102, chest))
	require.False(t, w.PickerPickUpChest(101, chest))
	require.False(t, w.PickerPickUpChest(101, 999))

	state, ok := w.Chest(chest)
	require.True(t, ok)
	require.True(t, state.Opened)
	require.Equal(t, map[uint32]int{1: 10, 2: 1}, w.Inventory(102))
	require.Empty(t, w.Inventory(101))
}

func TestDropItemsCapsAtHeldQuantity(t *testing.T) {
	w, _ := newTestWorld(t, Hooks{})
	require.True(t, w.PickerPickupItem(101, w.SpawnItem(Stack{ItemType: 5, Count: 2}, interaction.Position{})))

	placed := w.DropItems(101, interaction.Position{X: 3, Y: 4}, []interaction.DroppedItem{
		{ItemType: 5, Count: 9},
		{ItemType: 6, Count: 1},
	})
	require.Equal(t, 1, placed)
	require.Empty(t, w.Inventory(101))

	ground := w.GroundItems()
	require.Len(t, ground, 1)
	require.Equal(t, Stack{ItemType: 5, Count: 2}, ground[0].Stack)
	require.Equal(t, interaction.Position{X: 3, Y: 4}, ground[0].Position)

	require.Zero(t, w.DropItems(101, interaction.Position{}, []interaction.DroppedItem{{ItemType: 5, Count: 1}}))
}

func TestInteractPlayers(t *testing.T) {
	var revived []command.EntityID
	w, _ := newTestWorld(t, Hooks{OnRevive: func(_, target command.EntityID) bool {
		revived = append(revived, target)
		return true
	}})

	require.True(t, w.InteractPlayers(101, 102, interaction.PlayerInteractionGreet))
	require.False(t, w.InteractPlayers(101, 101, interaction.PlayerInteractionGreet))
	require.False(t, w.InteractPlayers(101, 555, interaction.PlayerInteractionGreet))

	require.False(t, w.InteractPlayers(101, 102, interaction.PlayerInteractionTrade), "nothing to trade")
	w.PickerPickupItem(101, w.SpawnItem(Stack{ItemType: 9, Count: 1}, interaction.Position{}))
	w.PickerPickupItem(101, w.SpawnItem(Stack{ItemType: 3, Count: 2}, interaction.Position{}))
	require.True(t, w.InteractPlayers(101, 102, interaction.PlayerInteractionTrade))
	require.Equal(t, map[uint32]int{9: 1}, w.Inventory(101))
	require.Equal(t, map[uint32]int{3: 2}, w.Inventory(102))

	require.True(t, w.InteractPlayers(101, 102, interaction.PlayerInteractionRevive))
	require.Equal(t, []command.EntityID{102}, revived)
}

func TestApplyHazardUsesHook(t *testing.T) {
	w, _ := newTestWorld(t, Hooks{})
	require.False(t, w.ApplyHazard(101, 1, 2), "no hook installed")

	var got float64
	w.SetHooks(Hooks{OnHazard: func(_ command.EntityID, _ uint32, intensity float64) bool {
		got = intensity
		return true
	}})
	require.True(t, w.ApplyHazard(101, 1, 2.5))
	require.Equal(t, 2.5, got)
	require.False(t, w.ApplyHazard(404, 1, 2.5))
}

func TestChangeUnionMergesFollowers(t *testing.T) {
	w, rec := newTestWorld(t, Hooks{})
	require.NoError(t, w.AddPlayer(3, 103))

	require.True(t, w.ChangeUnion(102, 103))
	require.Equal(t, command.EntityID(102), w.UnionOf(103))

	require.True(t, w.ChangeUnion(101, 102))
	require.Equal(t, command.EntityID(101), w.UnionOf(102))
	require.Equal(t, command.EntityID(101), w.UnionOf(103), "followers move with their leader")

	require.False(t, w.ChangeUnion(101, 103), "already in the same union")
	require.False(t, w.ChangeUnion(101, 999))

	_, ok := w.RemovePlayer(1)
	require.True(t, ok)
	require.Equal(t, command.EntityID(102), w.UnionOf(102))
	require.Equal(t, command.EntityID(103), w.UnionOf(103))

	var unionEvents int
	for _, typ := range rec.types() {
		if typ == lifecycle.EventUnionChanged {
			unionEvents++
		}
	}
	require.Equal(t, 2, unionEvents)
}
