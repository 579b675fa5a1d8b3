package wire

import (
	"errors"
	"testing"
)

func TestWriterReaderFieldOrder(t *testing.T) {
	w := NewWriter(32)
	w.Uint(1, 42)
	w.Int(2, -7)
	w.Float(3, 1.5)
	w.Bool(4, true)
	w.String(5, "chest")
	w.Message(6, func(nested *Writer) {
		nested.Uint(1, 9)
	})

	r := NewReader(w.Bytes())
	var seen []Number
	err := r.Each(func(f Field) error {
		seen = append(seen, f.Num)
		switch f.Num {
		case 1:
			v, err := f.Uint()
			if err != nil || v != 42 {
				t.Fatalf("expected 42, got %d (%v)", v, err)
			}
		case 2:
			v, err := f.Int()
			if err != nil || v != -7 {
				t.Fatalf("expected -7, got %d (%v)", v, err)
			}
		case 3:
			v, err := f.Float()
			if err != nil || v != 1.5 {
				t.Fatalf("expected 1.5, got %v (%v)", v, err)
			}
		case 4:
			v, err := f.Bool()
			if err != nil || !v {
				t.Fatalf("expected true, got %v (%v)", v, err)
			}
		case 5:
			v, err := f.String()
			if err != nil || v != "chest" {
				t.Fatalf("expected chest, got %q (%v)", v, err)
			}
		case 6:
			nested, err := f.Reader()
			if err != nil {
				t.Fatalf("unexpected nested error: %v", err)
			}
			inner, ok, err := nested.Next()
			if err != nil || !ok {
				t.Fatalf("expected nested field, got ok=%v err=%v", ok, err)
			}
			if v, _ := inner.Uint(); v != 9 {
				t.Fatalf("expected nested 9, got %d", v)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 6 {
		t.Fatalf("expected 6 fields, got %v", seen)
	}
	for i, num := range seen {
		if num != Number(i+1) {
			t.Fatalf("expected field order 1..6, got %v", seen)
		}
	}
}

func TestReaderTruncated(t *testing.T) {
	w := NewWriter(8)
	w.String(1, "truncated")
	data := w.Bytes()
	r := NewReader(data[:len(data)-2])
	_, _, err := r.Next()
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestFieldWireTypeMismatch(t *testing.T) {
	w := NewWriter(8)
	w.Uint(1, 3)
	f, ok, err := NewReader(w.Bytes()).Next()
	if err != nil || !ok {
		t.Fatalf("expected field, got ok=%v err=%v", ok, err)
	}
	if _, err := f.Float(); !errors.Is(err, ErrWireType) {
		t.Fatalf("expected ErrWireType, got %v", err)
	}
}
