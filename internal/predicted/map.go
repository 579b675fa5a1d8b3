package predicted

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"skirmish/server/internal/wire"
)

const (
	mapEntryField  wire.Number = 1
	mapClearField  wire.Number = 2
	mapSetField    wire.Number = 3
	mapRemoveField wire.Number = 4

	entryKeyField   wire.Number = 1
	entryValueField wire.Number = 2
)

// MapChange is delivered to Map observers.
type MapChange[K cmp.Ordered, V comparable] struct {
	Op            ChangeOp
	Key           K
	Old           V
	New           V
	Authoritative bool
}

// Map is a predicted keyed container. Keys serialize in ascending order.
type Map[K cmp.Ordered, V comparable] struct {
	server       map[K]V
	predicted    map[K]V
	dirty        map[K]struct{}
	pending      map[K]struct{}
	clearPending bool
	predictable  bool
	keys         wire.Codec[K]
	values       wire.Codec[V]
	observers    []func(MapChange[K, V])
}

// NewMap constructs an empty map.
func NewMap[K cmp.Ordered, V comparable](keys wire.Codec[K], values wire.Codec[V], predictable bool) *Map[K, V] {
	return &Map[K, V]{
		server:      make(map[K]V),
		predicted:   make(map[K]V),
		dirty:       make(map[K]struct{}),
		pending:     make(map[K]struct{}),
		predictable: predictable,
		keys:        keys,
		values:      values,
	}
}

// Observe registers a change callback.
func (m *Map[K, V]) Observe(fn func(MapChange[K, V])) {
	if fn != nil {
		m.observers = append(m.observers, fn)
	}
}

// SetPredictable toggles client-side prediction for the map.
func (m *Map[K, V]) SetPredictable(enabled bool) {
	m.predictable = enabled
}

// Get reads the predicted generation.
func (m *Map[K, V]) Get(key K) (V, bool) {
	v, ok := m.predicted[key]
	return v, ok
}

// ServerGet reads the server generation.
func (m *Map[K, V]) ServerGet(key K) (V, bool) {
	v, ok := m.server[key]
	return v, ok
}

// Len reports the predicted entry count.
func (m *Map[K, V]) Len() int {
	return len(m.predicted)
}

// Keys returns the predicted keys in ascending order.
func (m *Map[K, V]) Keys() []K {
	return slices.Sorted(maps.Keys(m.predicted))
}

// Snapshot copies the predicted generation.
func (m *Map[K, V]) Snapshot() map[K]V {
	return maps.Clone(m.predicted)
}

// ServerSnapshot copies the server generation.
func (m *Map[K, V]) ServerSnapshot() map[K]V {
	return maps.Clone(m.server)
}

// DirtyKeys returns the keys with unconfirmed predictions.
func (m *Map[K, V]) DirtyKeys() []K {
	return slices.Sorted(maps.Keys(m.dirty))
}

func (m *Map[K, V]) Dirty() bool    { return len(m.dirty) > 0 }
func (m *Map[K, V]) HasDelta() bool { return m.clearPending || len(m.pending) > 0 }

// PredictSet writes one predicted entry.
func (m *Map[K, V]) PredictSet(key K, value V) bool {
	if !m.predictable {
		return false
	}
	old, existed := m.predicted[key]
	m.predicted[key] = value
	m.dirty[key] = struct{}{}
	switch {
	case !existed:
		m.notify(MapChange[K, V]{Op: OpAdded, Key: key, New: value})
	case old != value:
		m.notify(MapChange[K, V]{Op: OpChanged, Key: key, Old: old, New: value})
	}
	return true
}

// PredictRemove deletes one predicted entry.
func (m *Map[K, V]) PredictRemove(key K) bool {
	if !m.predictable {
		return false
	}
	old, existed := m.predicted[key]
	if !existed {
		return false
	}
	delete(m.predicted, key)
	m.dirty[key] = struct{}{}
	m.notify(MapChange[K, V]{Op: OpRemoved, Key: key, Old: old})
	return true
}

// PredictClear empties the predicted generation.
func (m *Map[K, V]) PredictClear() bool {
	if !m.predictable {
		return false
	}
	for key := range m.predicted {
		m.dirty[key] = struct{}{}
	}
	clear(m.predicted)
	m.notify(MapChange[K, V]{Op: OpCleared})
	return true
}

// ServerSet writes both generations for one key.
func (m *Map[K, V]) ServerSet(key K, value V) {
	old, existed := m.server[key]
	m.server[key] = value
	m.predicted[key] = value
	delete(m.dirty, key)
	switch {
	case !existed:
		m.pending[key] = struct{}{}
		m.notify(MapChange[K, V]{Op: OpAdded, Key: key, New: value, Authoritative: true})
	case old != value:
		m.pending[key] = struct{}{}
		m.notify(MapChange[K, V]{Op: OpChanged, Key: key, Old: old, New: value, Authoritative: true})
	}
}

// ServerRemove deletes one key from both generations.
func (m *Map[K, V]) ServerRemove(key K) {
	old, existed := m.server[key]
	delete(m.server, key)
	delete(m.predicted, key)
	delete(m.dirty, key)
	if !existed {
		return
	}
	m.pending[key] = struct{}{}
	m.notify(MapChange[K, V]{Op: OpRemoved, Key: key, Old: old, Authoritative: true})
}

// ServerClear empties both generations.
func (m *Map[K, V]) ServerClear() {
	wasEmpty := len(m.server) == 0
	clear(m.server)
	clear(m.predicted)
	clear(m.dirty)
	clear(m.pending)
	m.clearPending = true
	if !wasEmpty {
		m.notify(MapChange[K, V]{Op: OpCleared, Authoritative: true})
	}
}

// ServerReplace makes the server generation equal to values, firing the
// same notifications a sequence of ServerSet/ServerRemove calls would.
func (m *Map[K, V]) ServerReplace(values map[K]V) {
	for _, key := range slices.Sorted(maps.Keys(m.server)) {
		if _, keep := values[key]; !keep {
			m.ServerRemove(key)
		}
	}
	for _, key := range slices.Sorted(maps.Keys(values)) {
		m.ServerSet(key, values[key])
	}
	m.ResetPredicted()
}

// ResetPredicted discards every unconfirmed prediction.
func (m *Map[K, V]) ResetPredicted() {
	m.predicted = maps.Clone(m.server)
	if m.predicted == nil {
		m.predicted = make(map[K]V)
	}
	clear(m.dirty)
}

// SerializeAll writes every server entry in key order.
func (m *Map[K, V]) SerializeAll(w *wire.Writer) {
	for _, key := range slices.Sorted(maps.Keys(m.server)) {
		m.writeEntry(w, mapEntryField, key, m.server[key])
	}
}

// DeserializeAll replaces the server generation, resets the predicted
// generation to match and clears all markers.
func (m *Map[K, V]) DeserializeAll(r *wire.Reader) error {
	next := make(map[K]V)
	err := r.Each(func(f wire.Field) error {
		if f.Num != mapEntryField {
			return nil
		}
		key, value, err := m.readEntry(f)
		if err != nil {
			return err
		}
		next[key] = value
		return nil
	})
	if err != nil {
		return err
	}
	m.ServerReplace(next)
	clear(m.pending)
	m.clearPending = false
	return nil
}

// SerializeDelta writes the changes since the last delta and resets the
// pending markers.
func (m *Map[K, V]) SerializeDelta(w *wire.Writer) {
	if m.clearPending {
		w.Bool(mapClearField, true)
	}
	for _, key := range slices.Sorted(maps.Keys(m.pending)) {
		if value, ok := m.server[key]; ok {
			m.writeEntry(w, mapSetField, key, value)
			continue
		}
		w.Message(mapRemoveField, func(ew *wire.Writer) {
			m.keys.Encode(ew, entryKeyField, key)
		})
	}
	clear(m.pending)
	m.clearPending = false
}

// DeserializeDelta applies a delta entry by entry through the Server family.
func (m *Map[K, V]) DeserializeDelta(r *wire.Reader) error {
	err := r.Each(func(f wire.Field) error {
		switch f.Num {
		case mapClearField:
			m.ServerClear()
		case mapSetField:
			key, value, err := m.readEntry(f)
			if err != nil {
				return err
			}
			m.ServerSet(key, value)
		case mapRemoveField:
			key, _, err := m.readEntry(f)
			if err != nil {
				return err
			}
			m.ServerRemove(key)
		}
		return nil
	})
	clear(m.pending)
	m.clearPending = false
	return err
}

func (m *Map[K, V]) writeEntry(w *wire.Writer, num wire.Number, key K, value V) {
	w.Message(num, func(ew *wire.Writer) {
		m.keys.Encode(ew, entryKeyField, key)
		m.values.Encode(ew, entryValueField, value)
	})
}

func (m *Map[K, V]) readEntry(f wire.Field) (K, V, error) {
	var (
		key   K
		value V
	)
	er, err := f.Reader()
	if err != nil {
		return key, value, fmt.Errorf("predicted map entry: %w", err)
	}
	err = er.Each(func(ef wire.Field) error {
		var err error
		switch ef.Num {
		case entryKeyField:
			key, err = m.keys.Decode(ef)
		case entryValueField:
			value, err = m.values.Decode(ef)
		}
		return err
	})
	if err != nil {
		return key, value, fmt.Errorf("predicted map entry: %w", err)
	}
	return key, value, nil
}

func (m *Map[K, V]) notify(change MapChange[K, V]) {
	for _, fn := range m.observers {
		fn(change)
	}
}
