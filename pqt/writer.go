package pqt

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/parquet-go/parquet-go"

	"github.com/lanl-asteroid-impact/xrage-format"
)

// ErrWriterClosed is returned by every call on a writer after Close.
var ErrWriterClosed = errors.New("writer is closed")

const defaultBatchSize = 4096

// RowIDPolicy selects the lifecycle of the row-id counter.
type RowIDPolicy int

const (
	// RowIDContinuous numbers rows across the whole output and never resets.
	RowIDContinuous RowIDPolicy = iota
	// RowIDPerGroup resets the counter to zero at every row-group boundary.
	RowIDPerGroup
)

func (p RowIDPolicy) String() string {
	if p == RowIDPerGroup {
		return "per-group"
	}
	return "continuous"
}

// Row is one decoded or explicitly numbered row. Timestep and RowID are
// ignored when the schema has no such column; Values holds the measure
// columns in schema order.
type Row struct {
	Timestep int32
	RowID    int32
	Values   []float32
}

type options struct {
	metadata  map[string]string
	rowid     RowIDPolicy
	start     int32
	batchSize int
}

// Option configures a Writer.
type Option func(*options)

// WithMetadata attaches file-level key/value metadata.
func WithMetadata(kv map[string]string) Option {
	return func(o *options) { o.metadata = kv }
}

func WithRowIDPolicy(p RowIDPolicy) Option {
	return func(o *options) { o.rowid = p }
}

// WithStartRowID sets the first row id assigned by AppendRow.
func WithStartRowID(id int32) Option {
	return func(o *options) { o.start = id }
}

// WithBatchSize sets how many rows are buffered before they are handed to
// the Parquet writer.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

func newOptions(opts []Option) options {
	o := options{batchSize: defaultBatchSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Writer appends rows to one Parquet output. It is the only owner of the sink
// until Close returns; a Writer is not safe for concurrent use.
type Writer struct {
	schema *Schema
	sink   io.WriteCloser
	pw     *parquet.Writer
	opts   options

	digits []int // per column, 0 = keep
	batch  []parquet.Row
	n      int // rows buffered in batch

	rowid        int32
	pendingFlush bool
	groupRows    int64
	rows         int64
	rowGroups    int
	closed       bool
}

// Open validates policy against schema and starts a Parquet file on sink.
// Close closes sink.
func Open(sink io.WriteCloser, schema *Schema, policy Policy, opts ...Option) (*Writer, error) {
	if sink == nil {
		return nil, errors.New("nil sink")
	}
	if schema == nil {
		return nil, fmt.Errorf("%w: nil schema", ErrSchema)
	}
	if err := policy.Validate(schema); err != nil {
		return nil, err
	}
	o := newOptions(opts)

	writerOpts := []parquet.WriterOption{
		schema.parquetSchema(policy),
		parquet.Compression(policy.Default.codec()),
	}
	// Sorted so that the footer does not depend on map order.
	keys := make([]string, 0, len(o.metadata))
	for k := range o.metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writerOpts = append(writerOpts, parquet.KeyValueMetadata(k, o.metadata[k]))
	}

	w := &Writer{
		schema: schema,
		sink:   sink,
		pw:     parquet.NewWriter(sink, writerOpts...),
		opts:   o,
		digits: make([]int, schema.Len()),
		batch:  make([]parquet.Row, o.batchSize),
		rowid:  o.start,
	}
	for i, c := range schema.Columns() {
		w.digits[i] = policy.Column(c.Name).Quantize
	}
	for i := range w.batch {
		w.batch[i] = make(parquet.Row, schema.Len())
	}
	return w, nil
}

// AppendRow appends one row with the next row id. values are the measure
// columns in schema order.
func (w *Writer) AppendRow(timestep int32, values ...float32) error {
	if w.closed {
		return ErrWriterClosed
	}
	if w.schema.HasRowID() && w.rowid == math.MaxInt32 {
		return fmt.Errorf("row id overflows int32 after %d rows", w.rows)
	}
	if err := w.append(Row{Timestep: timestep, RowID: w.rowid, Values: values}); err != nil {
		return err
	}
	if w.schema.HasRowID() {
		w.rowid++
	}
	return nil
}

// WriteRow appends r as is, including its row id. The row-id counter used
// by AppendRow is left untouched.
func (w *Writer) WriteRow(r Row) error {
	if w.closed {
		return ErrWriterClosed
	}
	return w.append(r)
}

func (w *Writer) append(r Row) error {
	if len(r.Values) != len(w.schema.measures) {
		return fmt.Errorf("got %d values for %d measure columns", len(r.Values), len(w.schema.measures))
	}
	if w.pendingFlush && w.groupRows > 0 {
		if err := w.cutRowGroup(); err != nil {
			return err
		}
	}
	w.pendingFlush = false

	row := w.batch[w.n]
	for j, col := range w.schema.measures {
		v := r.Values[j]
		if d := w.digits[col]; d > 0 {
			v = xrage.Quantize(v, d)
		}
		row[col] = parquet.FloatValue(v).Level(0, 0, col)
	}
	if w.schema.timestep >= 0 {
		row[w.schema.timestep] = parquet.Int32Value(r.Timestep).Level(0, 0, w.schema.timestep)
	}
	if w.schema.rowid >= 0 {
		row[w.schema.rowid] = parquet.Int32Value(r.RowID).Level(0, 0, w.schema.rowid)
	}
	w.n++
	w.groupRows++
	w.rows++

	if w.n == len(w.batch) {
		return w.writeBatch()
	}
	return nil
}

func (w *Writer) writeBatch() error {
	if w.n == 0 {
		return nil
	}
	if _, err := w.pw.WriteRows(w.batch[:w.n]); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	w.n = 0
	return nil
}

func (w *Writer) cutRowGroup() error {
	if err := w.writeBatch(); err != nil {
		return err
	}
	if err := w.pw.Flush(); err != nil {
		return fmt.Errorf("failed to flush row group: %w", err)
	}
	w.rowGroups++
	w.groupRows = 0
	return nil
}

// FlushRowGroup marks a row-group boundary. Nothing reaches the sink until
// the next append, so a boundary with no rows after it costs nothing and
// never produces an empty row group. Under RowIDPerGroup the row id restarts
// at zero.
func (w *Writer) FlushRowGroup() error {
	if w.closed {
		return ErrWriterClosed
	}
	w.pendingFlush = true
	if w.opts.rowid == RowIDPerGroup {
		w.rowid = 0
	}
	return nil
}

// Close writes the buffered rows and the file footer, then closes the sink.
// Calling Close twice returns ErrWriterClosed.
func (w *Writer) Close() error {
	if w.closed {
		return ErrWriterClosed
	}
	w.closed = true

	if err := w.writeBatch(); err != nil {
		w.sink.Close()
		return err
	}
	if w.groupRows > 0 {
		w.rowGroups++
	}
	if err := w.pw.Close(); err != nil {
		w.sink.Close()
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	if err := w.sink.Close(); err != nil {
		return fmt.Errorf("failed to close sink: %w", err)
	}
	return nil
}

// Rows returns the number of rows appended so far.
func (w *Writer) Rows() int64 { return w.rows }

// RowGroups returns the number of row groups cut so far, counting the open
// one once the writer is closed.
func (w *Writer) RowGroups() int { return w.rowGroups }

// NextRowID returns the row id the next AppendRow will use.
func (w *Writer) NextRowID() int32 { return w.rowid }

func (w *Writer) Schema() *Schema { return w.schema }
