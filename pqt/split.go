package pqt

import (
	"fmt"
	"io"
)

// SinkFunc opens the sink of the part-th output of a split writer and
// returns the name it is recorded under.
type SinkFunc func(part int) (name string, sink io.WriteCloser, err error)

// Result describes one finished output.
type Result struct {
	Name      string
	Rows      int64
	RowGroups int
}

// SplitWriter spreads one logical row sequence over as many outputs as a
// row ceiling requires. Every part gets the same schema, policy and
// metadata; the row-id counter carries over from one part to the next.
//
// With a zero ceiling the single output is opened immediately, so an empty
// input still yields a file. With a positive ceiling parts are opened on the
// first row that needs them.
type SplitWriter struct {
	schema  *Schema
	policy  Policy
	opts    []Option
	rowid   RowIDPolicy
	ceiling int64
	open    SinkFunc

	cur     *Writer
	curName string
	part    int
	nextID  int32
	results []Result
	closed  bool
}

// NewSplitWriter returns a writer that closes its current output after
// ceiling rows and continues in a new one. A ceiling of zero disables
// splitting.
func NewSplitWriter(schema *Schema, policy Policy, ceiling int64, open SinkFunc, opts ...Option) (*SplitWriter, error) {
	if ceiling < 0 {
		return nil, fmt.Errorf("invalid row ceiling %d", ceiling)
	}
	if schema == nil {
		return nil, fmt.Errorf("%w: nil schema", ErrSchema)
	}
	if err := policy.Validate(schema); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	s := &SplitWriter{
		schema:  schema,
		policy:  policy,
		opts:    opts,
		rowid:   o.rowid,
		ceiling: ceiling,
		open:    open,
		nextID:  o.start,
	}
	if ceiling == 0 {
		if err := s.rotate(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// rotate finishes the current part, if any, and opens the next one.
func (s *SplitWriter) rotate() error {
	if s.cur != nil {
		if err := s.finish(); err != nil {
			return err
		}
	}
	name, sink, err := s.open(s.part)
	if err != nil {
		return fmt.Errorf("failed to open part %d: %w", s.part, err)
	}
	opts := append(append([]Option(nil), s.opts...), WithStartRowID(s.nextID))
	w, err := Open(sink, s.schema, s.policy, opts...)
	if err != nil {
		sink.Close()
		return err
	}
	s.cur, s.curName = w, name
	s.part++
	return nil
}

func (s *SplitWriter) finish() error {
	w := s.cur
	s.cur = nil
	s.nextID = w.NextRowID()
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", s.curName, err)
	}
	s.results = append(s.results, Result{Name: s.curName, Rows: w.Rows(), RowGroups: w.RowGroups()})
	return nil
}

func (s *SplitWriter) ready() error {
	if s.closed {
		return ErrWriterClosed
	}
	if s.cur == nil || (s.ceiling > 0 && s.cur.Rows() >= s.ceiling) {
		return s.rotate()
	}
	return nil
}

// AppendRow appends a row numbered by the writer. See Writer.AppendRow.
func (s *SplitWriter) AppendRow(timestep int32, values ...float32) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.cur.AppendRow(timestep, values...)
}

// WriteRow appends r verbatim. See Writer.WriteRow.
func (s *SplitWriter) WriteRow(r Row) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.cur.WriteRow(r)
}

// FlushRowGroup marks a row-group boundary in the current part.
func (s *SplitWriter) FlushRowGroup() error {
	if s.closed {
		return ErrWriterClosed
	}
	if s.cur == nil {
		if s.rowid == RowIDPerGroup {
			s.nextID = 0
		}
		return nil
	}
	return s.cur.FlushRowGroup()
}

// Close finishes the open part and returns every output written, in order.
func (s *SplitWriter) Close() ([]Result, error) {
	if s.closed {
		return nil, ErrWriterClosed
	}
	s.closed = true
	if s.cur != nil {
		if err := s.finish(); err != nil {
			return s.results, err
		}
	}
	return s.results, nil
}

// Rows returns the number of rows appended across all parts.
func (s *SplitWriter) Rows() int64 {
	var n int64
	for _, r := range s.results {
		n += r.Rows
	}
	if s.cur != nil {
		n += s.cur.Rows()
	}
	return n
}

// Parts returns the number of outputs opened so far.
func (s *SplitWriter) Parts() int { return s.part }
