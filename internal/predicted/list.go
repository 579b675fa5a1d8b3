package predicted

import (
	"fmt"
	"maps"
	"slices"

	"skirmish/server/internal/wire"
)

const (
	listItemField   wire.Number = 1
	listLengthField wire.Number = 2
	listSetField    wire.Number = 3

	indexField wire.Number = 1
	itemField  wire.Number = 2
)

// ListChange is delivered to List observers.
type ListChange[T comparable] struct {
	Op            ChangeOp
	Index         int
	Old           T
	New           T
	Authoritative bool
}

type listUpdate[T any] struct {
	index int
	item  T
}

// List is a predicted ordered container.
//
// Structural predictions (insert, remove, clear) make the predicted length
// diverge from the server length; the next authoritative mutation rebases
// the predicted generation onto the server one.
type List[T comparable] struct {
	server      []T
	predicted   []T
	dirty       map[int]struct{}
	pending     map[int]struct{}
	resized     bool
	predictable bool
	codec       wire.Codec[T]
	observers   []func(ListChange[T])
}

// NewList constructs an empty list.
func NewList[T comparable](codec wire.Codec[T], predictable bool) *List[T] {
	return &List[T]{
		dirty:       make(map[int]struct{}),
		pending:     make(map[int]struct{}),
		predictable: predictable,
		codec:       codec,
	}
}

// Observe registers a change callback.
func (l *List[T]) Observe(fn func(ListChange[T])) {
	if fn != nil {
		l.observers = append(l.observers, fn)
	}
}

// SetPredictable toggles client-side prediction for the list.
func (l *List[T]) SetPredictable(enabled bool) {
	l.predictable = enabled
}

// Len reports the predicted length.
func (l *List[T]) Len() int { return len(l.predicted) }

// At reads the predicted generation.
func (l *List[T]) At(i int) (T, bool) {
	if i < 0 || i >= len(l.predicted) {
		var zero T
		return zero, false
	}
	return l.predicted[i], true
}

// Items copies the predicted generation.
func (l *List[T]) Items() []T { return slices.Clone(l.predicted) }

// ServerItems copies the server generation.
func (l *List[T]) ServerItems() []T { return slices.Clone(l.server) }

func (l *List[T]) Dirty() bool    { return len(l.dirty) > 0 }
func (l *List[T]) HasDelta() bool { return l.resized || len(l.pending) > 0 }

// PredictSet overwrites one predicted item.
func (l *List[T]) PredictSet(i int, v T) bool {
	if !l.predictable || i < 0 || i >= len(l.predicted) {
		return false
	}
	old := l.predicted[i]
	l.predicted[i] = v
	l.dirty[i] = struct{}{}
	if old != v {
		l.notify(ListChange[T]{Op: OpChanged, Index: i, Old: old, New: v})
	}
	return true
}

// PredictInsert inserts a predicted item at i, shifting later items.
func (l *List[T]) PredictInsert(i int, v T) bool {
	if !l.predictable || i < 0 || i > len(l.predicted) {
		return false
	}
	l.predicted = slices.Insert(l.predicted, i, v)
	l.markDirtyFrom(i)
	l.notify(ListChange[T]{Op: OpAdded, Index: i, New: v})
	return true
}

// PredictRemoveAt removes the predicted item at i.
func (l *List[T]) PredictRemoveAt(i int) bool {
	if !l.predictable || i < 0 || i >= len(l.predicted) {
		return false
	}
	old := l.predicted[i]
	l.markDirtyFrom(i)
	l.predicted = slices.Delete(l.predicted, i, i+1)
	l.notify(ListChange[T]{Op: OpRemoved, Index: i, Old: old})
	return true
}

// PredictClear empties the predicted generation.
func (l *List[T]) PredictClear() bool {
	if !l.predictable {
		return false
	}
	l.markDirtyFrom(0)
	l.predicted = l.predicted[:0]
	l.notify(ListChange[T]{Op: OpCleared})
	return true
}

// ServerSet writes index i in both generations. i == Len appends; larger
// indices are rejected.
func (l *List[T]) ServerSet(i int, v T) bool {
	if i < 0 || i > len(l.server) {
		return false
	}
	l.rebaseIfDiverged()
	if i == len(l.server) {
		l.server = append(l.server, v)
		l.predicted = append(l.predicted, v)
		l.pending[i] = struct{}{}
		l.resized = true
		delete(l.dirty, i)
		l.notify(ListChange[T]{Op: OpAdded, Index: i, New: v, Authoritative: true})
		return true
	}
	old := l.server[i]
	l.server[i] = v
	l.predicted[i] = v
	delete(l.dirty, i)
	if old != v {
		l.pending[i] = struct{}{}
		l.notify(ListChange[T]{Op: OpChanged, Index: i, Old: old, New: v, Authoritative: true})
	}
	return true
}

// ServerAppend appends to both generations.
func (l *List[T]) ServerAppend(v T) {
	l.ServerSet(len(l.server), v)
}

// ServerRemoveAt removes index i from both generations.
func (l *List[T]) ServerRemoveAt(i int) bool {
	if i < 0 || i >= len(l.server) {
		return false
	}
	l.rebaseIfDiverged()
	old := l.server[i]
	l.server = slices.Delete(l.server, i, i+1)
	l.predicted = slices.Clone(l.server)
	clear(l.dirty)
	for j := i; j < len(l.server); j++ {
		l.pending[j] = struct{}{}
	}
	l.resized = true
	l.notify(ListChange[T]{Op: OpRemoved, Index: i, Old: old, Authoritative: true})
	return true
}

// ServerClear empties both generations.
func (l *List[T]) ServerClear() {
	wasEmpty := len(l.server) == 0
	l.server = l.server[:0]
	l.predicted = l.predicted[:0]
	clear(l.dirty)
	clear(l.pending)
	l.resized = true
	if !wasEmpty {
		l.notify(ListChange[T]{Op: OpCleared, Authoritative: true})
	}
}

// ResetPredicted discards every unconfirmed prediction.
func (l *List[T]) ResetPredicted() {
	l.predicted = slices.Clone(l.server)
	clear(l.dirty)
}

// SerializeAll writes every server item in order.
func (l *List[T]) SerializeAll(w *wire.Writer) {
	for _, item := range l.server {
		l.codec.Encode(w, listItemField, item)
	}
}

// DeserializeAll replaces the server generation, resets the predicted
// generation to match and clears all markers.
func (l *List[T]) DeserializeAll(r *wire.Reader) error {
	var next []T
	err := r.Each(func(f wire.Field) error {
		if f.Num != listItemField {
			return nil
		}
		item, err := l.codec.Decode(f)
		if err != nil {
			return fmt.Errorf("predicted list item: %w", err)
		}
		next = append(next, item)
		return nil
	})
	if err != nil {
		return err
	}
	l.ResetPredicted()
	l.truncate(len(next))
	for i, item := range next {
		l.ServerSet(i, item)
	}
	l.ResetPredicted()
	clear(l.pending)
	l.resized = false
	return nil
}

// SerializeDelta writes the server length and every changed index.
func (l *List[T]) SerializeDelta(w *wire.Writer) {
	w.Uint(listLengthField, uint64(len(l.server)))
	for _, i := range slices.Sorted(maps.Keys(l.pending)) {
		if i >= len(l.server) {
			continue
		}
		item := l.server[i]
		w.Message(listSetField, func(iw *wire.Writer) {
			iw.Uint(indexField, uint64(i))
			l.codec.Encode(iw, itemField, item)
		})
	}
	clear(l.pending)
	l.resized = false
}

// DeserializeDelta truncates to the transmitted length and applies each
// changed index through ServerSet in ascending order.
func (l *List[T]) DeserializeDelta(r *wire.Reader) error {
	length := -1
	var updates []listUpdate[T]
	err := r.Each(func(f wire.Field) error {
		switch f.Num {
		case listLengthField:
			v, err := f.Uint()
			if err != nil {
				return err
			}
			length = int(v)
		case listSetField:
			ir, err := f.Reader()
			if err != nil {
				return err
			}
			var u listUpdate[T]
			err = ir.Each(func(inf wire.Field) error {
				var err error
				switch inf.Num {
				case indexField:
					var v uint64
					v, err = inf.Uint()
					u.index = int(v)
				case itemField:
					u.item, err = l.codec.Decode(inf)
				}
				return err
			})
			if err != nil {
				return fmt.Errorf("predicted list delta: %w", err)
			}
			updates = append(updates, u)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if length >= 0 {
		l.truncate(length)
	}
	slices.SortFunc(updates, func(a, b listUpdate[T]) int { return a.index - b.index })
	for _, u := range updates {
		l.ServerSet(u.index, u.item)
	}
	clear(l.pending)
	l.resized = false
	return nil
}

func (l *List[T]) truncate(n int) {
	if n >= len(l.server) {
		return
	}
	l.rebaseIfDiverged()
	for i := len(l.server) - 1; i >= n; i-- {
		old := l.server[i]
		l.server = l.server[:i]
		l.notify(ListChange[T]{Op: OpRemoved, Index: i, Old: old, Authoritative: true})
	}
	l.predicted = slices.Clone(l.server)
	l.resized = true
}

func (l *List[T]) rebaseIfDiverged() {
	if len(l.predicted) != len(l.server) {
		l.ResetPredicted()
	}
}

func (l *List[T]) markDirtyFrom(i int) {
	n := max(len(l.predicted), len(l.server))
	for j := i; j < n; j++ {
		l.dirty[j] = struct{}{}
	}
}

func (l *List[T]) notify(change ListChange[T]) {
	for _, fn := range l.observers {
		fn(change)
	}
}
