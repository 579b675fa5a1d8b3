package predicted

import (
	"fmt"

	"skirmish/server/internal/wire"
)

const valueField wire.Number = 1

// ValueChange is delivered to Value observers.
type ValueChange[T comparable] struct {
	Old           T
	New           T
	Authoritative bool
}

// Value is a predicted scalar.
type Value[T comparable] struct {
	server      T
	predicted   T
	predictable bool
	predicting  bool
	pending     bool
	codec       wire.Codec[T]
	observers   []func(ValueChange[T])
}

// NewValue constructs a scalar whose generations both start at initial.
func NewValue[T comparable](codec wire.Codec[T], initial T, predictable bool) *Value[T] {
	return &Value[T]{
		server:      initial,
		predicted:   initial,
		predictable: predictable,
		codec:       codec,
	}
}

// Observe registers a change callback.
func (v *Value[T]) Observe(fn func(ValueChange[T])) {
	if fn != nil {
		v.observers = append(v.observers, fn)
	}
}

// SetPredictable toggles client-side prediction for the field.
func (v *Value[T]) SetPredictable(enabled bool) {
	v.predictable = enabled
}

// Get returns the predicted generation.
func (v *Value[T]) Get() T {
	return v.predicted
}

// Server returns the server generation.
func (v *Value[T]) Server() T {
	return v.server
}

func (v *Value[T]) Dirty() bool    { return v.predicting }
func (v *Value[T]) HasDelta() bool { return v.pending }

// ClientSet writes the predicted generation. It is a no-op unless the field
// is predictable.
func (v *Value[T]) ClientSet(x T) bool {
	if !v.predictable {
		return false
	}
	old := v.predicted
	v.predicted = x
	v.predicting = true
	if old != x {
		v.notify(ValueChange[T]{Old: old, New: x})
	}
	return true
}

// ServerSet writes both generations and confirms any pending prediction.
// Observers fire only when the server generation actually changes.
func (v *Value[T]) ServerSet(x T) {
	old := v.server
	v.server = x
	v.predicted = x
	v.predicting = false
	if old == x {
		return
	}
	v.pending = true
	v.notify(ValueChange[T]{Old: old, New: x, Authoritative: true})
}

// SerializeAll writes the server generation.
func (v *Value[T]) SerializeAll(w *wire.Writer) {
	v.codec.Encode(w, valueField, v.server)
}

// DeserializeAll replaces both generations and clears every marker.
func (v *Value[T]) DeserializeAll(r *wire.Reader) error {
	next, found, err := v.read(r)
	if err != nil {
		return err
	}
	if found {
		v.ServerSet(next)
	}
	v.predicted = v.server
	v.predicting = false
	v.pending = false
	return nil
}

// SerializeDelta writes the server generation if it changed since the last
// delta.
func (v *Value[T]) SerializeDelta(w *wire.Writer) {
	if !v.pending {
		return
	}
	v.codec.Encode(w, valueField, v.server)
	v.pending = false
}

// DeserializeDelta applies a delta through ServerSet.
func (v *Value[T]) DeserializeDelta(r *wire.Reader) error {
	next, found, err := v.read(r)
	if err != nil {
		return err
	}
	if found {
		v.ServerSet(next)
		v.pending = false
	}
	return nil
}

func (v *Value[T]) read(r *wire.Reader) (T, bool, error) {
	var (
		next  T
		found bool
	)
	err := r.Each(func(f wire.Field) error {
		if f.Num != valueField {
			return nil
		}
		decoded, err := v.codec.Decode(f)
		if err != nil {
			return fmt.Errorf("predicted value: %w", err)
		}
		next = decoded
		found = true
		return nil
	})
	return next, found, err
}

func (v *Value[T]) notify(change ValueChange[T]) {
	for _, fn := range v.observers {
		fn(change)
	}
}
