// Package convert drives the conversion of a directory of snapshots into
// Parquet files: it discovers and orders the sources, reads the selected
// fields of each and feeds them to a split writer per output.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"gocloud.dev/blob"

	"github.com/lanl-asteroid-impact/xrage-format"
	"github.com/lanl-asteroid-impact/xrage-format/pqt"
)

const contentType = "application/vnd.apache.parquet"

// Mode selects how sources map to outputs.
type Mode string

const (
	// ModePerFile writes one output per source.
	ModePerFile Mode = "per-file"
	// ModeSingle writes one output for the directory, one row group per
	// source.
	ModeSingle Mode = "single"
	// ModeRepack rewrites existing Parquet files under a new row ceiling.
	ModeRepack Mode = "repack"
)

// ParseMode maps a mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModePerFile, ModeSingle, ModeRepack:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Options configures a Converter.
type Options struct {
	Format string
	Mode   Mode

	// Fields are the measure columns, in output order.
	Fields      []string
	Timestep    bool
	RowID       bool
	RowIDPolicy pqt.RowIDPolicy

	// QuantizeDigits rounds measures to that many decimals; zero keeps full
	// precision. QuantizeFields restricts rounding to the named fields, all
	// measures when empty.
	QuantizeDigits int
	QuantizeFields []string

	// Ceiling is the row limit of one output, zero for no limit.
	Ceiling      int64
	DefaultCodec pqt.Codec
	KeyCodec     pqt.Codec
	Dictionary   bool

	// Metadata attaches the grid geometry and cycle index of the first
	// source of each output.
	Metadata bool
	Naming   NameRule
}

// Converter runs one conversion batch. It is not safe for concurrent use.
type Converter struct {
	opts    Options
	format  Format
	rule    NameRule
	schema  *pqt.Schema
	policy  pqt.Policy
	logger  log.Logger
	metrics *Metrics
}

// New checks opts and returns a Converter. A nil logger discards logs and
// nil metrics are registered nowhere.
func New(opts Options, logger log.Logger, metrics *Metrics) (*Converter, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	format, err := LookupFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if opts.Ceiling < 0 {
		return nil, fmt.Errorf("invalid row ceiling %d", opts.Ceiling)
	}

	rule := opts.Naming
	rule.Suffix, rule.Dirs = format.Suffix, format.Dirs
	if err := rule.validate(); err != nil {
		return nil, err
	}

	c := &Converter{opts: opts, format: format, rule: rule, logger: logger, metrics: metrics}
	if opts.Mode == ModeRepack {
		if format.Open != nil {
			return nil, fmt.Errorf("repack reads parquet sources, not %s", format.Name)
		}
		if opts.Ceiling == 0 {
			return nil, errors.New("repack needs a row ceiling")
		}
		return c, nil
	}

	if format.Open == nil {
		return nil, fmt.Errorf("%s sources can only be repacked", format.Name)
	}
	if len(opts.Fields) == 0 {
		return nil, errors.New("no fields selected")
	}
	var columns []pqt.Column
	if opts.Timestep {
		columns = append(columns, pqt.TimestepColumn())
	}
	if opts.RowID {
		columns = append(columns, pqt.RowIDColumn())
	}
	for _, name := range opts.Fields {
		columns = append(columns, pqt.MeasureColumn(name))
	}
	if c.schema, err = pqt.NewSchema(columns...); err != nil {
		return nil, err
	}
	for _, name := range opts.QuantizeFields {
		if !slices.Contains(opts.Fields, name) {
			return nil, fmt.Errorf("quantized field %q is not selected", name)
		}
	}
	c.policy = c.policyFor(c.schema)
	if err := c.policy.Validate(c.schema); err != nil {
		return nil, err
	}
	return c, nil
}

// Schema returns the output schema, nil in repack mode where each output
// takes the schema of its source.
func (c *Converter) Schema() *pqt.Schema { return c.schema }

// policyFor applies the codec, dictionary and quantization options to the
// measures of s.
func (c *Converter) policyFor(s *pqt.Schema) pqt.Policy {
	p := pqt.NewPolicy(s, c.opts.DefaultCodec, c.opts.KeyCodec)
	quantized := make(map[string]bool, len(c.opts.QuantizeFields))
	for _, name := range c.opts.QuantizeFields {
		quantized[name] = true
	}
	for _, name := range s.Measures() {
		cp := p.Columns[name]
		cp.Dictionary = c.opts.Dictionary
		if len(quantized) == 0 || quantized[name] {
			cp.Quantize = c.opts.QuantizeDigits
		}
		p.Columns[name] = cp
	}
	return p
}

// Run converts the sources of inDir into out and returns the outputs
// written, in order. The first error stops the batch; outputs finished
// before it are kept, the one in progress is discarded.
func (c *Converter) Run(ctx context.Context, inDir string, out *blob.Bucket) ([]pqt.Result, error) {
	items, err := Discover(inDir, c.rule)
	if err != nil {
		return nil, err
	}
	level.Info(c.logger).Log("msg", "found sources", "count", len(items), "dir", inDir, "format", c.format.Name)

	// Cancelling the sinks' context makes the bucket drop an unfinished output.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var results []pqt.Result
	switch c.opts.Mode {
	case ModeSingle:
		results, err = c.runSingle(ctx, cancel, items, out)
	case ModeRepack:
		results, err = c.runRepack(ctx, cancel, items, out)
	default:
		results, err = c.runPerFile(ctx, cancel, items, out)
	}
	if err != nil {
		return results, err
	}

	var rows int64
	for _, r := range results {
		rows += r.Rows
	}
	level.Info(c.logger).Log("msg", "done", "files", len(results), "rows", rows)
	return results, nil
}

func (c *Converter) runPerFile(ctx context.Context, cancel context.CancelFunc, items []WorkItem, out *blob.Bucket) ([]pqt.Result, error) {
	var results []pqt.Result
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		level.Info(c.logger).Log("msg", "rewriting", "source", item.Path, "key", item.Key)
		rs, err := c.convertFile(ctx, cancel, item, out)
		results = append(results, rs...)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (c *Converter) convertFile(ctx context.Context, cancel context.CancelFunc, item WorkItem, out *blob.Bucket) ([]pqt.Result, error) {
	snap, stream, err := c.open(ctx, item)
	if err != nil {
		return nil, err
	}
	defer snap.Close()

	kv, err := c.metadata(item, snap)
	if err != nil {
		return nil, err
	}
	w, err := pqt.NewSplitWriter(c.schema, c.policy, c.opts.Ceiling,
		c.sinks(ctx, out, c.rule.Base(item.Name)+".parquet"), c.writerOptions(kv)...)
	if err != nil {
		return nil, err
	}
	if err := copyStream(w, stream, item.Key); err != nil {
		abort(cancel, w)
		return nil, fmt.Errorf("failed to convert %s: %w", item.Path, err)
	}
	return c.finish(w)
}

func (c *Converter) runSingle(ctx context.Context, cancel context.CancelFunc, items []WorkItem, out *blob.Bucket) ([]pqt.Result, error) {
	if len(items) == 0 {
		level.Warn(c.logger).Log("msg", "no sources found, nothing written")
		return nil, nil
	}
	name := c.rule.Stem(items[0].Name) + ".parquet"

	var w *pqt.SplitWriter
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			abort(cancel, w)
			return nil, err
		}
		level.Info(c.logger).Log("msg", "rewriting", "source", item.Path, "key", item.Key)
		snap, stream, err := c.open(ctx, item)
		if err != nil {
			abort(cancel, w)
			return nil, err
		}
		if w == nil {
			// The output takes the metadata of its first source.
			kv, err := c.metadata(item, snap)
			if err == nil {
				w, err = pqt.NewSplitWriter(c.schema, c.policy, c.opts.Ceiling, c.sinks(ctx, out, name), c.writerOptions(kv)...)
			}
			if err != nil {
				snap.Close()
				return nil, err
			}
		}

		err = copyStream(w, stream, item.Key)
		snap.Close()
		if err == nil {
			err = w.FlushRowGroup()
		}
		if err != nil {
			abort(cancel, w)
			return nil, fmt.Errorf("failed to convert %s: %w", item.Path, err)
		}
	}
	return c.finish(w)
}

func (c *Converter) open(ctx context.Context, item WorkItem) (xrage.Snapshot, *xrage.Stream, error) {
	snap, err := c.format.Open(ctx, item.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", item.Path, err)
	}
	stream, err := xrage.NewStream(ctx, snap, c.opts.Fields...)
	if err != nil {
		snap.Close()
		return nil, nil, fmt.Errorf("failed to read %s: %w", item.Path, err)
	}
	c.metrics.SourcesRead.WithLabelValues(c.format.Name).Inc()
	return snap, stream, nil
}

func (c *Converter) metadata(item WorkItem, snap xrage.Snapshot) (map[string]string, error) {
	if !c.opts.Metadata {
		return nil, nil
	}
	g, ok := snap.(xrage.Grid)
	if !ok {
		return nil, fmt.Errorf("%s carries no grid metadata", item.Path)
	}
	kv, err := xrage.ExtractMetadata(g)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata of %s: %w", item.Path, err)
	}
	return kv, nil
}

func (c *Converter) writerOptions(kv map[string]string) []pqt.Option {
	return []pqt.Option{pqt.WithRowIDPolicy(c.opts.RowIDPolicy), pqt.WithMetadata(kv)}
}

// sinks names the outputs of one split writer: base itself without a
// ceiling, base.0, base.1 and so on with one.
func (c *Converter) sinks(ctx context.Context, out *blob.Bucket, base string) pqt.SinkFunc {
	return func(part int) (string, io.WriteCloser, error) {
		name := base
		if c.opts.Ceiling > 0 {
			name += "." + strconv.Itoa(part)
		}
		w, err := out.NewWriter(ctx, name, &blob.WriterOptions{ContentType: contentType})
		if err != nil {
			return "", nil, fmt.Errorf("failed to create %s: %w", name, err)
		}
		level.Debug(c.logger).Log("msg", "opened output", "name", name)
		return name, w, nil
	}
}

func (c *Converter) finish(w *pqt.SplitWriter) ([]pqt.Result, error) {
	results, err := w.Close()
	c.metrics.observe(results)
	for _, r := range results {
		level.Info(c.logger).Log("msg", "wrote", "output", r.Name, "rows", r.Rows, "row_groups", r.RowGroups)
	}
	return results, err
}

// copyStream appends every record of s with key as its timestep.
func copyStream(w *pqt.SplitWriter, s *xrage.Stream, key int) error {
	values := make([]float32, 0, len(s.Fields()))
	for s.SeekToFirst(); s.Valid(); s.Next() {
		values = s.Values(values)
		if err := w.AppendRow(int32(key), values...); err != nil {
			return err
		}
	}
	return nil
}

// abort drops the output in progress. The cancelled context stops the
// bucket from committing it when the writer closes.
func abort(cancel context.CancelFunc, w *pqt.SplitWriter) {
	cancel()
	if w != nil {
		w.Close()
	}
}
