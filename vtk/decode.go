package vtk

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// maxBlockSize bounds the uncompressed size of one compressed block.
const maxBlockSize = 1 << 30

// appended is the payload of the AppendedData section. Array offsets index
// into data, counted in base64 characters when the section is encoded.
type appended struct {
	raw  bool
	data []byte
}

// decoder turns DataArray payloads into bytes following the layout VTK
// writes: a block is prefixed by a header of UInt32 or UInt64 words. An
// uncompressed block has one word, the byte count. A compressed block has
// [nblocks, blocksize, lastblocksize, csize_0 .. csize_n-1] followed by the
// zlib streams. In base64 form an uncompressed header is encoded together
// with its data, a compressed header on its own.
type decoder struct {
	order      binary.ByteOrder
	header     int
	compressed bool
	appended   *appended
}

func newDecoder(byteOrder, headerType, compressor string, app *appended) (*decoder, error) {
	d := &decoder{order: binary.LittleEndian, header: 4, appended: app}
	switch byteOrder {
	case "", "LittleEndian":
	case "BigEndian":
		d.order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: byte order %q", ErrFormat, byteOrder)
	}
	switch headerType {
	case "", "UInt32":
	case "UInt64":
		d.header = 8
	default:
		return nil, fmt.Errorf("%w: header type %q", ErrFormat, headerType)
	}
	switch compressor {
	case "":
	case "vtkZLibDataCompressor":
		d.compressed = true
	default:
		return nil, fmt.Errorf("%w: compressor %q", ErrFormat, compressor)
	}
	return d, nil
}

var typeSizes = map[string]int{
	"Int8": 1, "UInt8": 1,
	"Int16": 2, "UInt16": 2,
	"Int32": 4, "UInt32": 4,
	"Int64": 8, "UInt64": 8,
	"Float32": 4, "Float64": 8,
}

func (d *decoder) float32s(a *dataArray) ([]float32, error) {
	if a.Format == "ascii" {
		parts := strings.Fields(a.Data)
		v := make([]float32, len(parts))
		for i, p := range parts {
			x, err := strconv.ParseFloat(p, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q: %w", p, err)
			}
			v[i] = float32(x)
		}
		return v, nil
	}

	b, err := d.bytes(a)
	if err != nil {
		return nil, err
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of Float32 values", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(d.order.Uint32(b[i*4:]))
	}
	return v, nil
}

func (d *decoder) ints(a *dataArray) ([]int64, error) {
	size, ok := typeSizes[a.Type]
	if !ok || strings.HasPrefix(a.Type, "Float") {
		return nil, fmt.Errorf("array is %s, want an integer type", a.Type)
	}
	if a.Format == "ascii" {
		parts := strings.Fields(a.Data)
		v := make([]int64, len(parts))
		for i, p := range parts {
			x, err := strconv.ParseInt(p, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q: %w", p, err)
			}
			v[i] = x
		}
		return v, nil
	}

	b, err := d.bytes(a)
	if err != nil {
		return nil, err
	}
	if len(b)%size != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of %s values", len(b), a.Type)
	}
	signed := !strings.HasPrefix(a.Type, "U")
	v := make([]int64, len(b)/size)
	for i := range v {
		w := b[i*size:]
		switch {
		case size == 1 && signed:
			v[i] = int64(int8(w[0]))
		case size == 1:
			v[i] = int64(w[0])
		case size == 2 && signed:
			v[i] = int64(int16(d.order.Uint16(w)))
		case size == 2:
			v[i] = int64(d.order.Uint16(w))
		case size == 4 && signed:
			v[i] = int64(int32(d.order.Uint32(w)))
		case size == 4:
			v[i] = int64(d.order.Uint32(w))
		default:
			v[i] = int64(d.order.Uint64(w))
		}
	}
	return v, nil
}

// bytes returns the decoded payload of a binary or appended array.
func (d *decoder) bytes(a *dataArray) ([]byte, error) {
	switch a.Format {
	case "binary":
		return d.block([]byte(strings.Join(strings.Fields(a.Data), "")), true)
	case "appended":
		if d.appended == nil {
			return nil, fmt.Errorf("%w: appended array %s without AppendedData", ErrFormat, a.Name)
		}
		if a.Offset < 0 || a.Offset > int64(len(d.appended.data)) {
			return nil, fmt.Errorf("offset %d outside appended data of %d bytes", a.Offset, len(d.appended.data))
		}
		return d.block(d.appended.data[a.Offset:], !d.appended.raw)
	default:
		return nil, fmt.Errorf("%w: array format %q", ErrFormat, a.Format)
	}
}

func (d *decoder) word(b []byte, i int) uint64 {
	if d.header == 8 {
		return d.order.Uint64(b[i*8:])
	}
	return uint64(d.order.Uint32(b[i*4:]))
}

func (d *decoder) block(src []byte, encoded bool) ([]byte, error) {
	if !d.compressed {
		return d.plainBlock(src, encoded)
	}

	var header, rest []byte
	first, err := d.take(src, d.header, encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to read block header: %w", err)
	}
	nblocks := d.word(first, 0)
	if nblocks > uint64(len(src)) {
		return nil, fmt.Errorf("block count %d exceeds payload", nblocks)
	}
	hlen := (3 + int(nblocks)) * d.header
	if header, err = d.take(src, hlen, encoded); err != nil {
		return nil, fmt.Errorf("failed to read block header: %w", err)
	}
	rest = src[encodedLen(hlen, encoded):]

	var total uint64
	sizes := make([]int, nblocks)
	for i := range sizes {
		s := d.word(header, 3+i)
		total += s
		if total > uint64(len(rest)) {
			return nil, fmt.Errorf("compressed blocks exceed payload of %d bytes", len(rest))
		}
		sizes[i] = int(s)
	}
	data, err := d.take(rest, int(total), encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to read compressed blocks: %w", err)
	}

	blockSize, lastSize := d.word(header, 1), d.word(header, 2)
	if blockSize > maxBlockSize || lastSize > blockSize {
		return nil, fmt.Errorf("%w: block size %d, last block size %d", ErrFormat, blockSize, lastSize)
	}
	var out []byte
	for i, size := range sizes {
		block, err := inflate(data[:size], int64(blockSize))
		if err != nil {
			return nil, fmt.Errorf("failed to inflate block %d: %w", i, err)
		}
		want := blockSize
		if i == len(sizes)-1 && lastSize != 0 {
			want = lastSize
		}
		if uint64(len(block)) != want {
			return nil, fmt.Errorf("block %d inflated to %d bytes, want %d", i, len(block), want)
		}
		out = append(out, block...)
		data = data[size:]
	}
	return out, nil
}

func (d *decoder) plainBlock(src []byte, encoded bool) ([]byte, error) {
	first, err := d.take(src, d.header, encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to read block header: %w", err)
	}
	n := d.word(first, 0)
	if n > uint64(len(src)) {
		return nil, fmt.Errorf("block of %d bytes exceeds payload of %d", n, len(src))
	}
	total := d.header + int(n)
	b, err := d.take(src, total, encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to read block: %w", err)
	}
	return b[d.header:total], nil
}

// take returns the first n decoded bytes of src.
func (d *decoder) take(src []byte, n int, encoded bool) ([]byte, error) {
	m := encodedLen(n, encoded)
	if m > len(src) {
		return nil, io.ErrUnexpectedEOF
	}
	if !encoded {
		return src[:n], nil
	}
	b := make([]byte, base64.StdEncoding.DecodedLen(m))
	k, err := base64.StdEncoding.Decode(b, src[:m])
	if err != nil {
		return nil, err
	}
	if k < n {
		return nil, io.ErrUnexpectedEOF
	}
	return b[:n], nil
}

// encodedLen is the number of source bytes holding n decoded bytes.
func encodedLen(n int, encoded bool) int {
	if !encoded {
		return n
	}
	return (n + 2) / 3 * 4
}

// inflate decompresses one zlib block, reading at most limit+1 bytes so an
// oversized block shows up as a length mismatch.
func inflate(b []byte, limit int64) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(io.LimitReader(zr, limit+1))
}
