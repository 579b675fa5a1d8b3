// Package predicted holds dual-generation containers: a server generation
// that mirrors the last authoritative value and a predicted generation that
// the owning client may run ahead of confirmation.
//
// Two independent markers are tracked per container. Dirty entries are
// local predictions the server has not yet confirmed; they are set by the
// Predict/ClientSet family and cleared by the Server family or a full apply.
// Pending entries are authoritative changes that have not yet been written
// by SerializeDelta.
package predicted

import "skirmish/server/internal/wire"

// Field is implemented by every predicted container.
type Field interface {
	SerializeAll(w *wire.Writer)
	DeserializeAll(r *wire.Reader) error
	SerializeDelta(w *wire.Writer)
	DeserializeDelta(r *wire.Reader) error
	// Dirty reports unconfirmed local predictions.
	Dirty() bool
	// HasDelta reports authoritative changes not yet serialized as a delta.
	HasDelta() bool
}

// ChangeOp classifies a change notification.
type ChangeOp uint8

const (
	OpAdded ChangeOp = iota + 1
	OpChanged
	OpRemoved
	OpCleared
)

func (op ChangeOp) String() string {
	switch op {
	case OpAdded:
		return "added"
	case OpChanged:
		return "changed"
	case OpRemoved:
		return "removed"
	case OpCleared:
		return "cleared"
	default:
		return "unknown"
	}
}
