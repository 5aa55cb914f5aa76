package zarr

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"path"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// Reader reads one Zarr V2 array stored under a prefix of a bucket.
type Reader struct {
	bucket   *blob.Bucket
	prefix   string
	meta     *Metadata
	itemSize int
}

// NewReader loads the .zarray document found under prefix. The bucket stays
// owned by the caller.
func NewReader(ctx context.Context, bucket *blob.Bucket, prefix string) (*Reader, error) {
	reader, err := bucket.NewReader(ctx, path.Join(prefix, ".zarray"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open .zarray: %w", err)
	}
	defer reader.Close()

	meta, err := LoadMetadata(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}

	_, itemSize, err := ParseDType(meta.DType)
	if err != nil {
		return nil, fmt.Errorf("invalid dtype: %w", err)
	}

	return &Reader{
		bucket:   bucket,
		prefix:   prefix,
		meta:     meta,
		itemSize: itemSize,
	}, nil
}

// Len returns the number of elements in the array.
func (r *Reader) Len() int {
	return numElements(r.meta.Shape)
}

// ReadFull reads the entire Zarr array into a flat byte slice.
func (r *Reader) ReadFull(ctx context.Context) ([]byte, error) {
	buffer := make([]byte, r.Len()*r.itemSize)

	// If 0D, read the single chunk "0" and return
	if len(r.meta.Shape) == 0 {
		chunk, err := r.ReadChunk(ctx, []int{})
		if err != nil {
			return nil, err
		}
		copy(buffer, chunk)
		return buffer, nil
	}

	grid := GridShape(r.meta.Shape, r.meta.Chunks)
	globalStrides := strides(r.meta.Shape)
	chunkStrides := strides(r.meta.Chunks)

	// Recursive function to iterate over all chunk coordinates
	var iterateChunks func(dim int, currentCoords []int) error
	iterateChunks = func(dim int, currentCoords []int) error {
		if dim == len(grid) {
			return r.processChunk(ctx, currentCoords, buffer, globalStrides, chunkStrides)
		}

		for i := 0; i < grid[dim]; i++ {
			currentCoords[dim] = i
			if err := iterateChunks(dim+1, currentCoords); err != nil {
				return err
			}
		}
		return nil
	}

	coords := make([]int, len(grid))
	if err := iterateChunks(0, coords); err != nil {
		return nil, err
	}

	return buffer, nil
}

// Float32s reads the whole array as little-endian float32 values.
func (r *Reader) Float32s(ctx context.Context) ([]float32, error) {
	if r.meta.DType != "<f4" {
		return nil, fmt.Errorf("array %s has dtype %s, expected <f4", r.prefix, r.meta.DType)
	}
	data, err := r.ReadFull(ctx)
	if err != nil {
		return nil, err
	}
	values := make([]float32, len(data)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return values, nil
}

// ReadChunk reads a single decompressed chunk given its coordinates.
// A chunk missing from the store reads as zeros.
func (r *Reader) ReadChunk(ctx context.Context, coords []int) ([]byte, error) {
	key := ChunkKey(coords, r.meta.Separator())

	reader, err := r.bucket.NewReader(ctx, path.Join(r.prefix, key), nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return make([]byte, numElements(r.meta.Chunks)*r.itemSize), nil
		}
		return nil, fmt.Errorf("failed to open chunk %s: %w", key, err)
	}
	defer reader.Close()

	chunkData, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk %s: %w", key, err)
	}

	if r.meta.Compressor != nil {
		chunkData, err = decompress(r.meta.Compressor.ID, chunkData)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress chunk %s: %w", key, err)
		}
	}

	return chunkData, nil
}

func decompress(id string, data []byte) ([]byte, error) {
	switch id {
	case "zstd":
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer decoder.Close()
		return decoder.DecodeAll(data, nil)
	case "zlib":
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "gzip":
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		return io.ReadAll(gr)
	default:
		return nil, fmt.Errorf("unsupported compressor: %s", id)
	}
}

func (r *Reader) processChunk(ctx context.Context, chunkCoords []int, globalBuffer []byte, globalStrides, chunkStrides []int) error {
	chunkData, err := r.ReadChunk(ctx, chunkCoords)
	if err != nil {
		return err
	}

	// Calculate bounds for this chunk within the global array
	chunkStartGlobal := make([]int, len(r.meta.Shape))
	chunkShape := make([]int, len(r.meta.Shape))
	for i, coord := range chunkCoords {
		chunkStartGlobal[i] = coord * r.meta.Chunks[i]
		endGlobal := min(chunkStartGlobal[i]+r.meta.Chunks[i], r.meta.Shape[i])
		chunkShape[i] = endGlobal - chunkStartGlobal[i]
	}

	itemSize := r.itemSize
	var copyElements func(dim int, relCoords []int)
	copyElements = func(dim int, relCoords []int) {
		if dim == len(chunkShape) {
			chunkFlatIdx := 0
			globalFlatIdx := 0
			for i, rc := range relCoords {
				chunkFlatIdx += rc * chunkStrides[i]
				globalFlatIdx += (chunkStartGlobal[i] + rc) * globalStrides[i]
			}

			chunkByteOffset := chunkFlatIdx * itemSize
			globalByteOffset := globalFlatIdx * itemSize

			// Bounds checking before copy to prevent panics on malformed chunks
			if chunkByteOffset+itemSize <= len(chunkData) && globalByteOffset+itemSize <= len(globalBuffer) {
				copy(globalBuffer[globalByteOffset:globalByteOffset+itemSize], chunkData[chunkByteOffset:chunkByteOffset+itemSize])
			}
			return
		}

		for i := 0; i < chunkShape[dim]; i++ {
			relCoords[dim] = i
			copyElements(dim+1, relCoords)
		}
	}

	relCoords := make([]int, len(chunkShape))
	copyElements(0, relCoords)

	return nil
}

func (r *Reader) Metadata() *Metadata {
	return r.meta
}
