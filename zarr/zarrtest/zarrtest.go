// Package zarrtest writes small Zarr V2 snapshot groups for tests.
package zarrtest

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"path"

	"github.com/klauspost/compress/zstd"
	"gocloud.dev/blob"

	"github.com/lanl-asteroid-impact/xrage-format/zarr"
)

// Group describes a snapshot group. Fields are written as one-dimensional
// "<f4" arrays chunked by Chunk elements, zstd compressed when Compress is set.
type Group struct {
	Attrs    map[string]any
	Fields   map[string][]float32
	Chunk    int
	Compress bool
}

// Write stores g under prefix in bucket.
func Write(ctx context.Context, bucket *blob.Bucket, prefix string, g Group) error {
	if g.Attrs != nil {
		data, err := json.Marshal(g.Attrs)
		if err != nil {
			return fmt.Errorf("failed to encode attributes: %w", err)
		}
		if err := bucket.WriteAll(ctx, path.Join(prefix, ".zattrs"), data, nil); err != nil {
			return fmt.Errorf("failed to write attributes: %w", err)
		}
	}
	for name, values := range g.Fields {
		if err := WriteArray(ctx, bucket, path.Join(prefix, name), values, g.Chunk, g.Compress); err != nil {
			return fmt.Errorf("failed to write array %s: %w", name, err)
		}
	}
	return nil
}

// WriteArray stores values as a one-dimensional float32 array.
func WriteArray(ctx context.Context, bucket *blob.Bucket, prefix string, values []float32, chunk int, compress bool) error {
	if chunk <= 0 {
		chunk = max(len(values), 1)
	}
	meta := zarr.Metadata{
		ZarrFormat: 2,
		Shape:      []int{len(values)},
		Chunks:     []int{chunk},
		DType:      "<f4",
		Order:      "C",
	}
	var encoder *zstd.Encoder
	if compress {
		var err error
		if encoder, err = zstd.NewWriter(nil); err != nil {
			return err
		}
		defer encoder.Close()
		meta.Compressor = &zarr.CompressorConfig{ID: "zstd", Level: 3}
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := bucket.WriteAll(ctx, path.Join(prefix, ".zarray"), metaBytes, nil); err != nil {
		return err
	}

	for i, start := 0, 0; start < len(values); i, start = i+1, start+chunk {
		// Trailing chunks are padded to full size, as zarr writers do.
		buf := make([]byte, chunk*4)
		for j, v := range values[start:min(start+chunk, len(values))] {
			binary.LittleEndian.PutUint32(buf[j*4:], math.Float32bits(v))
		}
		if encoder != nil {
			buf = encoder.EncodeAll(buf, nil)
		}
		if err := bucket.WriteAll(ctx, path.Join(prefix, zarr.ChunkKey([]int{i}, ".")), buf, nil); err != nil {
			return err
		}
	}
	return nil
}
