package wire

// Codec encodes a single value of T as one field.
type Codec[T any] interface {
	Encode(w *Writer, num Number, v T)
	Decode(f Field) (T, error)
}

// Int64Codec encodes signed integers.
type Int64Codec struct{}

func (Int64Codec) Encode(w *Writer, num Number, v int64) { w.Int(num, v) }
func (Int64Codec) Decode(f Field) (int64, error)         { return f.Int() }

// IntCodec encodes platform ints as signed varints.
type IntCodec struct{}

func (IntCodec) Encode(w *Writer, num Number, v int) { w.Int(num, int64(v)) }
func (IntCodec) Decode(f Field) (int, error) {
	v, err := f.Int()
	return int(v), err
}

// Uint32Codec encodes unsigned 32-bit identifiers.
type Uint32Codec struct{}

func (Uint32Codec) Encode(w *Writer, num Number, v uint32) { w.Uint(num, uint64(v)) }
func (Uint32Codec) Decode(f Field) (uint32, error) {
	v, err := f.Uint()
	return uint32(v), err
}

// Float64Codec encodes floats as fixed 64-bit fields.
type Float64Codec struct{}

func (Float64Codec) Encode(w *Writer, num Number, v float64) { w.Float(num, v) }
func (Float64Codec) Decode(f Field) (float64, error)         { return f.Float() }

// BoolCodec encodes booleans.
type BoolCodec struct{}

func (BoolCodec) Encode(w *Writer, num Number, v bool) { w.Bool(num, v) }
func (BoolCodec) Decode(f Field) (bool, error)         { return f.Bool() }

// StringCodec encodes strings.
type StringCodec struct{}

func (StringCodec) Encode(w *Writer, num Number, v string) { w.String(num, v) }
func (StringCodec) Decode(f Field) (string, error)         { return f.String() }

// FuncCodec adapts a pair of functions into a Codec.
type FuncCodec[T any] struct {
	EncodeFunc func(w *Writer, num Number, v T)
	DecodeFunc func(f Field) (T, error)
}

func (c FuncCodec[T]) Encode(w *Writer, num Number, v T) {
	if c.EncodeFunc != nil {
		c.EncodeFunc(w, num, v)
	}
}

func (c FuncCodec[T]) Decode(f Field) (T, error) {
	if c.DecodeFunc == nil {
		var zero T
		return zero, ErrWireType
	}
	return c.DecodeFunc(f)
}
