package command

import "fmt"

// Category partitions commands by the state machine that owns them.
type Category uint8

const (
	CategoryUnknown Category = iota
	CategoryProperty
	CategoryCombat
	CategoryInput
	CategoryAnimation
	CategoryInteraction

	categoryCount
)

// Valid reports whether the category is a declared value.
func (c Category) Valid() bool {
	return c > CategoryUnknown && c < categoryCount
}

func (c Category) String() string {
	switch c {
	case CategoryProperty:
		return "property"
	case CategoryCombat:
		return "combat"
	case CategoryInput:
		return "input"
	case CategoryAnimation:
		return "animation"
	case CategoryInteraction:
		return "interaction"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// EntityID references a networked entity.
type EntityID uint32

// AnimationID names an animation or action from the animation table.
type AnimationID string

// Header is stamped on every command.
type Header struct {
	ConnectionID     int
	Tick             int64
	Category         Category
	ClientOriginated bool
	EntityID         EntityID
	TimestampMs      int64
}

// Directory answers ownership questions about entities.
type Directory interface {
	Exists(id EntityID) bool
	OwnerConnection(id EntityID) (int, bool)
	ServerAuthoritative(id EntityID) bool
}

// Valid reports whether the header may act on its entity. Client commands
// must come from the owning connection; server commands may only drive
// server-authoritative entities.
func (h Header) Valid(dir Directory) bool {
	if h.Tick < 0 || dir == nil {
		return false
	}
	if !dir.Exists(h.EntityID) {
		return false
	}
	if h.ClientOriginated {
		owner, ok := dir.OwnerConnection(h.EntityID)
		return ok && owner == h.ConnectionID
	}
	return dir.ServerAuthoritative(h.EntityID)
}

// Command is a header plus one payload variant.
type Command struct {
	Header  Header
	Payload Payload
}

// New stamps a payload with a header whose category matches the payload.
func New(header Header, payload Payload) Command {
	if payload != nil {
		header.Category = payload.Category()
	}
	return Command{Header: header, Payload: payload}
}

// Tick returns the header tick.
func (c Command) Tick() int64 {
	return c.Header.Tick
}
