package predicted

import (
	"errors"
	"fmt"

	"skirmish/server/internal/wire"
)

var (
	// ErrDuplicateField reports a field name registered twice.
	ErrDuplicateField = errors.New("predicted: duplicate field")
	// ErrNilField reports a nil container passed to the schema.
	ErrNilField = errors.New("predicted: nil field")
)

type namedField struct {
	name  string
	field Field
}

// Schema declares the predicted fields of an entity type in a fixed order.
// The order defines the field numbers used on the wire.
type Schema struct {
	fields []namedField
	err    error
}

// NewSchema starts an empty schema.
func NewSchema() *Schema {
	return &Schema{}
}

// Field registers a container under name.
func (s *Schema) Field(name string, field Field) *Schema {
	if s.err != nil {
		return s
	}
	if field == nil {
		s.err = fmt.Errorf("%w: %s", ErrNilField, name)
		return s
	}
	for _, existing := range s.fields {
		if existing.name == name {
			s.err = fmt.Errorf("%w: %s", ErrDuplicateField, name)
			return s
		}
	}
	s.fields = append(s.fields, namedField{name: name, field: field})
	return s
}

// Build freezes the schema.
func (s *Schema) Build() (*Set, error) {
	if s.err != nil {
		return nil, s.err
	}
	set := &Set{
		fields: append([]namedField(nil), s.fields...),
		index:  make(map[string]int, len(s.fields)),
	}
	for i, nf := range set.fields {
		set.index[nf.name] = i
	}
	return set, nil
}

// Set is the built collection of an entity's predicted fields.
type Set struct {
	fields []namedField
	index  map[string]int
}

// Field looks up a registered container.
func (s *Set) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.fields[i].field, true
}

// Names lists the registered fields in wire order.
func (s *Set) Names() []string {
	names := make([]string, len(s.fields))
	for i, nf := range s.fields {
		names[i] = nf.name
	}
	return names
}

// Dirty reports whether any field holds unconfirmed predictions.
func (s *Set) Dirty() bool {
	for _, nf := range s.fields {
		if nf.field.Dirty() {
			return true
		}
	}
	return false
}

// HasDelta reports whether any field has unsent authoritative changes.
func (s *Set) HasDelta() bool {
	for _, nf := range s.fields {
		if nf.field.HasDelta() {
			return true
		}
	}
	return false
}

// SerializeAll writes every field as a nested message.
func (s *Set) SerializeAll(w *wire.Writer) {
	for i, nf := range s.fields {
		w.Message(wire.Number(i+1), nf.field.SerializeAll)
	}
}

// SerializeDelta writes only fields with pending changes. It reports whether
// anything was written.
func (s *Set) SerializeDelta(w *wire.Writer) bool {
	wrote := false
	for i, nf := range s.fields {
		if !nf.field.HasDelta() {
			continue
		}
		w.Message(wire.Number(i+1), nf.field.SerializeDelta)
		wrote = true
	}
	return wrote
}

// DeserializeAll applies a full snapshot.
func (s *Set) DeserializeAll(r *wire.Reader) error {
	return s.apply(r, func(f Field, fr *wire.Reader) error { return f.DeserializeAll(fr) })
}

// DeserializeDelta applies a delta snapshot.
func (s *Set) DeserializeDelta(r *wire.Reader) error {
	return s.apply(r, func(f Field, fr *wire.Reader) error { return f.DeserializeDelta(fr) })
}

func (s *Set) apply(r *wire.Reader, fn func(Field, *wire.Reader) error) error {
	return r.Each(func(f wire.Field) error {
		i := int(f.Num) - 1
		if i < 0 || i >= len(s.fields) {
			return nil
		}
		fr, err := f.Reader()
		if err != nil {
			return fmt.Errorf("field %s: %w", s.fields[i].name, err)
		}
		if err := fn(s.fields[i].field, fr); err != nil {
			return fmt.Errorf("field %s: %w", s.fields[i].name, err)
		}
		return nil
	})
}
