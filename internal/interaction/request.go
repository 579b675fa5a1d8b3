// Package interaction admits, queues and executes server-authoritative
// world interaction requests.
package interaction

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"skirmish/server/internal/command"
)

// Category is the direction of an interaction.
type Category uint8

const (
	CategoryUnknown Category = iota
	CategoryPlayerToScene
	CategoryPlayerToPlayer
	CategorySceneToPlayer

	categoryCount
)

// Valid reports whether c is a declared category.
func (c Category) Valid() bool {
	return c > CategoryUnknown && c < categoryCount
}

func (c Category) String() string {
	switch c {
	case CategoryPlayerToScene:
		return "player_to_scene"
	case CategoryPlayerToPlayer:
		return "player_to_player"
	case CategorySceneToPlayer:
		return "scene_to_player"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// Authority records who issued a request.
type Authority uint8

const (
	AuthorityClient Authority = iota
	AuthorityServer
)

// Position is a world-space location.
type Position struct {
	X, Y, Z float64
}

// Header is shared by every request variant.
type Header struct {
	CommandID          uuid.UUID
	OriginConnectionID int
	Tick               int64
	Category           Category
	Position           Position
	TimestampMs        int64
	Authority          Authority
}

// Payload is the closed set of request bodies.
type Payload interface {
	// IsValid checks the payload's own constraints, independent of the header.
	IsValid() bool
	// Category is the direction the payload belongs to.
	Category() Category
	Kind() string
	sealed()
}

// Request is a header plus one payload variant.
type Request struct {
	Header  Header
	Payload Payload
}

// Kind names the payload variant, or "unknown" when there is none.
func (r Request) Kind() string {
	if r.Payload == nil {
		return "unknown"
	}
	return r.Payload.Kind()
}

// SceneInteraction is what a player does to a scene object.
type SceneInteraction uint8

const (
	SceneInteractionPickup SceneInteraction = iota + 1
	SceneInteractionOpenChest
)

// SceneObjectPayload targets an item or chest in the scene.
type SceneObjectPayload struct {
	ObjectID    uint32
	Interaction SceneInteraction
}

func (p SceneObjectPayload) IsValid() bool {
	return p.ObjectID != 0 && p.Interaction >= SceneInteractionPickup && p.Interaction <= SceneInteractionOpenChest
}

func (SceneObjectPayload) Category() Category { return CategoryPlayerToScene }
func (SceneObjectPayload) Kind() string       { return "scene_object" }
func (SceneObjectPayload) sealed()            {}

// PlayerInteraction is what a player does to another player.
type PlayerInteraction uint8

const (
	PlayerInteractionGreet PlayerInteraction = iota + 1
	PlayerInteractionTrade
	PlayerInteractionRevive
)

// PlayerPayload targets another player.
type PlayerPayload struct {
	TargetPlayerID command.EntityID
	Interaction    PlayerInteraction
}

func (p PlayerPayload) IsValid() bool {
	return p.TargetPlayerID != 0 && p.Interaction >= PlayerInteractionGreet && p.Interaction <= PlayerInteractionRevive
}

func (PlayerPayload) Category() Category { return CategoryPlayerToPlayer }
func (PlayerPayload) Kind() string       { return "player" }
func (PlayerPayload) sealed()            {}

// HazardPayload applies an environment hazard to the origin player.
type HazardPayload struct {
	HazardID  uint32
	Intensity float64
}

func (p HazardPayload) IsValid() bool {
	return p.HazardID != 0 && p.Intensity > 0 && !math.IsInf(p.Intensity, 0)
}

func (HazardPayload) Category() Category { return CategorySceneToPlayer }
func (HazardPayload) Kind() string       { return "hazard" }
func (HazardPayload) sealed()            {}

// DroppedItem is one stack dropped into the scene.
type DroppedItem struct {
	ItemType uint32
	Count    int
}

// DropPayload drops stacks at the header position.
type DropPayload struct {
	Items []DroppedItem
}

func (p DropPayload) IsValid() bool {
	if len(p.Items) == 0 {
		return false
	}
	for _, item := range p.Items {
		if item.ItemType == 0 || item.Count <= 0 {
			return false
		}
	}
	return true
}

func (DropPayload) Category() Category { return CategoryPlayerToScene }
func (DropPayload) Kind() string       { return "drop" }
func (DropPayload) sealed()            {}

// UnionChangePayload moves the victim into the killer's union.
type UnionChangePayload struct {
	KillerID command.EntityID
	VictimID command.EntityID
}

func (p UnionChangePayload) IsValid() bool {
	return p.KillerID != 0 && p.VictimID != 0 && p.KillerID != p.VictimID
}

func (UnionChangePayload) Category() Category { return CategoryPlayerToPlayer }
func (UnionChangePayload) Kind() string       { return "union_change" }
func (UnionChangePayload) sealed()            {}
