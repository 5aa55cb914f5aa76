package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log/level"
	"gocloud.dev/blob"

	"github.com/lanl-asteroid-impact/xrage-format/pqt"
)

func (c *Converter) runRepack(ctx context.Context, cancel context.CancelFunc, items []WorkItem, out *blob.Bucket) ([]pqt.Result, error) {
	var results []pqt.Result
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		level.Info(c.logger).Log("msg", "rewriting", "source", item.Path)
		rs, err := c.repackFile(ctx, cancel, item, out)
		results = append(results, rs...)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// repackFile copies the rows of one Parquet file, row ids and metadata
// included, into <name>.0, <name>.1 and so on, each holding at most the
// row ceiling.
func (c *Converter) repackFile(ctx context.Context, cancel context.CancelFunc, item WorkItem, out *blob.Bucket) ([]pqt.Result, error) {
	f, err := os.Open(item.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", item.Path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", item.Path, err)
	}
	r, err := pqt.OpenReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", item.Path, err)
	}
	defer r.Close()
	c.metrics.SourcesRead.WithLabelValues(c.format.Name).Inc()

	schema := r.Schema()
	w, err := pqt.NewSplitWriter(schema, c.policyFor(schema), c.opts.Ceiling,
		c.sinks(ctx, out, item.Name), pqt.WithMetadata(r.Metadata()))
	if err != nil {
		return nil, err
	}
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err == nil {
			err = w.WriteRow(row)
		}
		if err != nil {
			abort(cancel, w)
			return nil, fmt.Errorf("failed to repack %s: %w", item.Path, err)
		}
	}
	return c.finish(w)
}
