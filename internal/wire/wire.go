// Package wire implements the position-stable binary encoding shared by
// predicted containers, prediction commands and interaction requests.
//
// Every field is written with an explicit field number. Full and delta
// encodings of the same type reuse the same numbers so either can be decoded
// by the same schema.
package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Number identifies a field within an encoded message.
type Number = protowire.Number

var (
	// ErrTruncated reports a buffer that ended in the middle of a field.
	ErrTruncated = errors.New("wire: truncated field")
	// ErrWireType reports a field whose wire type does not match the accessor.
	ErrWireType = errors.New("wire: unexpected wire type")
	// ErrUnknownVariant reports a tagged union discriminant the decoder does not know.
	ErrUnknownVariant = errors.New("wire: unknown variant")
)

// Writer accumulates encoded fields.
type Writer struct {
	buf []byte
}

// NewWriter returns a writer with the provided initial capacity.
func NewWriter(capacity int) *Writer {
	if capacity < 0 {
		capacity = 0
	}
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Bytes returns the encoded buffer. The slice aliases the writer.
func (w *Writer) Bytes() []byte {
	if w == nil {
		return nil
	}
	return w.buf
}

// Len reports the encoded size in bytes.
func (w *Writer) Len() int {
	if w == nil {
		return 0
	}
	return len(w.buf)
}

// Reset discards the encoded buffer while keeping its capacity.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

// Uint writes an unsigned varint field.
func (w *Writer) Uint(num Number, v uint64) {
	w.buf = protowire.AppendTag(w.buf, num, protowire.VarintType)
	w.buf = protowire.AppendVarint(w.buf, v)
}

// Int writes a zig-zag encoded signed varint field.
func (w *Writer) Int(num Number, v int64) {
	w.Uint(num, protowire.EncodeZigZag(v))
}

// Bool writes a boolean as a varint field.
func (w *Writer) Bool(num Number, v bool) {
	w.Uint(num, protowire.EncodeBool(v))
}

// Float writes a float64 as a fixed 64-bit field.
func (w *Writer) Float(num Number, v float64) {
	w.buf = protowire.AppendTag(w.buf, num, protowire.Fixed64Type)
	w.buf = protowire.AppendFixed64(w.buf, math.Float64bits(v))
}

// String writes a length-delimited string field.
func (w *Writer) String(num Number, v string) {
	w.buf = protowire.AppendTag(w.buf, num, protowire.BytesType)
	w.buf = protowire.AppendString(w.buf, v)
}

// Raw writes a length-delimited byte field.
func (w *Writer) Raw(num Number, v []byte) {
	w.buf = protowire.AppendTag(w.buf, num, protowire.BytesType)
	w.buf = protowire.AppendBytes(w.buf, v)
}

// Message writes a nested message produced by fn.
func (w *Writer) Message(num Number, fn func(*Writer)) {
	nested := Writer{}
	if fn != nil {
		fn(&nested)
	}
	w.Raw(num, nested.buf)
}

// Field is a single decoded field. Accessors validate the wire type.
type Field struct {
	Num    Number
	Type   protowire.Type
	varint uint64
	bytes  []byte
}

// Uint returns the field as an unsigned varint.
func (f Field) Uint() (uint64, error) {
	if f.Type != protowire.VarintType {
		return 0, fmt.Errorf("field %d: %w", f.Num, ErrWireType)
	}
	return f.varint, nil
}

// Int returns the field as a zig-zag decoded signed varint.
func (f Field) Int() (int64, error) {
	v, err := f.Uint()
	if err != nil {
		return 0, err
	}
	return protowire.DecodeZigZag(v), nil
}

// Bool returns the field as a boolean.
func (f Field) Bool() (bool, error) {
	v, err := f.Uint()
	if err != nil {
		return false, err
	}
	return protowire.DecodeBool(v), nil
}

// Float returns the field as a float64.
func (f Field) Float() (float64, error) {
	if f.Type != protowire.Fixed64Type {
		return 0, fmt.Errorf("field %d: %w", f.Num, ErrWireType)
	}
	return math.Float64frombits(f.varint), nil
}

// Bytes returns the raw payload of a length-delimited field.
func (f Field) Bytes() ([]byte, error) {
	if f.Type != protowire.BytesType {
		return nil, fmt.Errorf("field %d: %w", f.Num, ErrWireType)
	}
	return f.bytes, nil
}

// String returns the field as a string.
func (f Field) String() (string, error) {
	b, err := f.Bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Reader returns a reader over a nested message field.
func (f Field) Reader() (*Reader, error) {
	b, err := f.Bytes()
	if err != nil {
		return nil, err
	}
	return NewReader(b), nil
}

// Reader iterates the fields of an encoded buffer.
type Reader struct {
	buf []byte
}

// NewReader wraps an encoded buffer.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Done reports whether every field has been consumed.
func (r *Reader) Done() bool {
	return r == nil || len(r.buf) == 0
}

// Next decodes the next field. It returns false once the buffer is empty.
func (r *Reader) Next() (Field, bool, error) {
	if r.Done() {
		return Field{}, false, nil
	}
	num, typ, n := protowire.ConsumeTag(r.buf)
	if n < 0 {
		return Field{}, false, fmt.Errorf("%w: %v", ErrTruncated, protowire.ParseError(n))
	}
	r.buf = r.buf[n:]

	field := Field{Num: num, Type: typ}
	switch typ {
	case protowire.VarintType:
		v, m := protowire.ConsumeVarint(r.buf)
		if m < 0 {
			return Field{}, false, fmt.Errorf("field %d: %w", num, ErrTruncated)
		}
		field.varint = v
		r.buf = r.buf[m:]
	case protowire.Fixed64Type:
		v, m := protowire.ConsumeFixed64(r.buf)
		if m < 0 {
			return Field{}, false, fmt.Errorf("field %d: %w", num, ErrTruncated)
		}
		field.varint = v
		r.buf = r.buf[m:]
	case protowire.BytesType:
		v, m := protowire.ConsumeBytes(r.buf)
		if m < 0 {
			return Field{}, false, fmt.Errorf("field %d: %w", num, ErrTruncated)
		}
		field.bytes = v
		r.buf = r.buf[m:]
	default:
		m := protowire.ConsumeFieldValue(num, typ, r.buf)
		if m < 0 {
			return Field{}, false, fmt.Errorf("field %d: %w", num, ErrTruncated)
		}
		r.buf = r.buf[m:]
	}
	return field, true, nil
}

// Each invokes fn for every remaining field, stopping at the first error.
func (r *Reader) Each(fn func(Field) error) error {
	for {
		field, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(field); err != nil {
			return err
		}
	}
}
