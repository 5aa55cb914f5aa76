package xrage

import (
	"context"
	"fmt"
)

// View is a read-only window over the values of one field, bounded by the
// record count of the stream that owns it.
type View struct {
	data []float32
}

// NewView returns a view over data, which must hold exactly n values.
func NewView(data []float32, n int) (View, error) {
	if n < 0 {
		return View{}, fmt.Errorf("invalid record count %d", n)
	}
	if len(data) != n {
		return View{}, fmt.Errorf("field has %d values, want %d", len(data), n)
	}
	return View{data: data[:n:n]}, nil
}

// Len returns the number of values in the view.
func (v View) Len() int { return len(v.data) }

// At returns the i-th value. It panics if i is outside [0, Len()).
func (v View) At(i int) float32 { return v.data[i] }

// Stream is a forward cursor over the records of a snapshot, restricted to a
// fixed set of fields. A Stream is not safe for concurrent use.
type Stream struct {
	n      int
	i      int
	names  []string
	views  []View
	byName map[string]int
}

// NewStream resolves fields against src and returns a cursor positioned at
// the first record. A field missing from src is an error wrapping
// ErrFieldNotFound.
func NewStream(ctx context.Context, src Snapshot, fields ...string) (*Stream, error) {
	n := src.NumRecords()
	data := make([][]float32, len(fields))
	for i, name := range fields {
		values, err := src.Field(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to select field %q: %w", name, err)
		}
		data[i] = values
	}
	return NewStreamFromViews(n, fields, data)
}

// NewStreamFromViews builds a stream of n records over already decoded field
// values. data[i] holds the values of names[i].
func NewStreamFromViews(n int, names []string, data [][]float32) (*Stream, error) {
	if len(names) != len(data) {
		return nil, fmt.Errorf("got %d field names for %d fields", len(names), len(data))
	}
	s := &Stream{
		n:      n,
		names:  append([]string(nil), names...),
		views:  make([]View, len(names)),
		byName: make(map[string]int, len(names)),
	}
	for i, name := range names {
		if _, dup := s.byName[name]; dup {
			return nil, fmt.Errorf("field %q selected twice", name)
		}
		v, err := NewView(data[i], n)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		s.views[i] = v
		s.byName[name] = i
	}
	return s, nil
}

func (s *Stream) SeekToFirst() { s.i = 0 }

// Valid reports whether the cursor points at a record.
func (s *Stream) Valid() bool { return s.i >= 0 && s.i < s.n }

func (s *Stream) Next() { s.i++ }

// Len returns the total number of records.
func (s *Stream) Len() int { return s.n }

// Index returns the position of the cursor.
func (s *Stream) Index() int { return s.i }

// Fields returns the selected field names in selection order.
func (s *Stream) Fields() []string { return s.names }

// Value returns the j-th selected field at the cursor.
func (s *Stream) Value(j int) float32 { return s.views[j].At(s.i) }

// Values fills dst with every selected field at the cursor, growing it if
// needed, and returns it.
func (s *Stream) Values(dst []float32) []float32 {
	dst = dst[:0]
	for _, v := range s.views {
		dst = append(dst, v.At(s.i))
	}
	return dst
}

// Accessor returns a function reading the named field at the cursor.
func (s *Stream) Accessor(name string) (func() float32, error) {
	j, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q was not selected", ErrFieldNotFound, name)
	}
	v := s.views[j]
	return func() float32 { return v.At(s.i) }, nil
}
