package pqt

import (
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

const readBatchSize = 1024

// Reader decodes the rows of a file written by Writer, in file order.
type Reader struct {
	file   *parquet.File
	rows   *parquet.Reader
	schema *Schema
	buf    []parquet.Row
	n, i   int
	eof    bool
	values []float32
	// measure slot of each column, -1 for keys
	slot []int
}

// OpenReader opens the Parquet file in r and recovers its schema. Only flat
// files of required int32 and float32 columns are accepted; an int32 column
// named "timestep" or "rowid" is read as that key.
func OpenReader(r io.ReaderAt, size int64) (*Reader, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	schema, err := schemaOf(pf.Schema())
	if err != nil {
		return nil, err
	}

	rd := &Reader{
		file:   pf,
		rows:   parquet.NewReader(pf),
		schema: schema,
		buf:    make([]parquet.Row, readBatchSize),
		values: make([]float32, len(schema.measures)),
		slot:   make([]int, schema.Len()),
	}
	for i := range rd.slot {
		rd.slot[i] = -1
	}
	for j, col := range schema.measures {
		rd.slot[col] = j
	}
	return rd, nil
}

func schemaOf(s *parquet.Schema) (*Schema, error) {
	var columns []Column
	for _, f := range s.Fields() {
		if !f.Leaf() || !f.Required() {
			return nil, fmt.Errorf("%w: column %q is not a required leaf", ErrSchema, f.Name())
		}
		switch kind := f.Type().Kind(); {
		case kind == parquet.Float:
			columns = append(columns, MeasureColumn(f.Name()))
		case kind == parquet.Int32 && f.Name() == ColumnTimestep:
			columns = append(columns, TimestepColumn())
		case kind == parquet.Int32 && f.Name() == ColumnRowID:
			columns = append(columns, RowIDColumn())
		default:
			return nil, fmt.Errorf("%w: unsupported column %q of type %s", ErrSchema, f.Name(), f.Type())
		}
	}
	return NewSchema(columns...)
}

func (r *Reader) Schema() *Schema { return r.schema }

// Metadata returns the file-level key/value metadata.
func (r *Reader) Metadata() map[string]string {
	kv := r.file.Metadata().KeyValueMetadata
	m := make(map[string]string, len(kv))
	for _, e := range kv {
		m[e.Key] = e.Value
	}
	return m
}

func (r *Reader) NumRows() int64 { return r.file.NumRows() }

func (r *Reader) RowGroups() int { return len(r.file.RowGroups()) }

// Next returns the next row, or io.EOF after the last one. The Values slice
// of the returned row is reused by the following call.
func (r *Reader) Next() (Row, error) {
	for r.i >= r.n {
		if r.eof {
			return Row{}, io.EOF
		}
		n, err := r.rows.ReadRows(r.buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return Row{}, fmt.Errorf("failed to read rows: %w", err)
			}
			r.eof = true
		}
		r.n, r.i = n, 0
	}

	var row Row
	for _, v := range r.buf[r.i] {
		col := v.Column()
		if col < 0 || col >= len(r.slot) {
			return Row{}, fmt.Errorf("value for unknown column %d", col)
		}
		switch {
		case r.slot[col] >= 0:
			r.values[r.slot[col]] = v.Float()
		case col == r.schema.timestep:
			row.Timestep = v.Int32()
		case col == r.schema.rowid:
			row.RowID = v.Int32()
		}
	}
	r.i++
	row.Values = r.values
	return row, nil
}

// Close releases the row reader. The underlying io.ReaderAt is left open.
func (r *Reader) Close() error {
	return r.rows.Close()
}
