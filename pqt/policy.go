package pqt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/lanl-asteroid-impact/xrage-format"
)

// ErrPolicyColumn is returned when a policy does not fit its schema.
var ErrPolicyColumn = errors.New("invalid column policy")

// Codec is a page compression codec.
type Codec int

const (
	// CodecDefault leaves a column on the file default codec.
	CodecDefault Codec = iota
	CodecNone
	CodecSnappy
	CodecZstd
	CodecGzip
)

var codecNames = map[Codec]string{
	CodecDefault: "default",
	CodecNone:    "none",
	CodecSnappy:  "snappy",
	CodecZstd:    "zstd",
	CodecGzip:    "gzip",
}

func (c Codec) String() string {
	if s, ok := codecNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Codec(%d)", int(c))
}

// ParseCodec maps a codec name to a Codec. "uncompressed" is an alias of
// "none" and the empty string means the default.
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return CodecDefault, nil
	case "none", "uncompressed":
		return CodecNone, nil
	case "snappy":
		return CodecSnappy, nil
	case "zstd":
		return CodecZstd, nil
	case "gzip":
		return CodecGzip, nil
	default:
		return CodecDefault, fmt.Errorf("unknown codec %q", s)
	}
}

func (c Codec) tag() string {
	switch c {
	case CodecNone:
		return "uncompressed"
	case CodecSnappy, CodecZstd, CodecGzip:
		return codecNames[c]
	default:
		return ""
	}
}

func (c Codec) codec() compress.Codec {
	switch c {
	case CodecSnappy:
		return &parquet.Snappy
	case CodecZstd:
		return &parquet.Zstd
	case CodecGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// Encoding is the value encoding of a column.
type Encoding int

const (
	EncodingPlain Encoding = iota
	// EncodingDelta is delta-binary-packed; int32 columns only.
	EncodingDelta
)

func (e Encoding) String() string {
	if e == EncodingDelta {
		return "delta"
	}
	return "plain"
}

// ColumnPolicy configures one column. Quantize is the number of decimal
// digits measure values are rounded to before they are written; zero keeps
// full precision.
type ColumnPolicy struct {
	Codec      Codec
	Encoding   Encoding
	Dictionary bool
	Quantize   int
}

// Policy is the encoding policy of one output file. Default is the codec of
// every column whose policy leaves the codec unset.
type Policy struct {
	Default Codec
	Columns map[string]ColumnPolicy
}

// NewPolicy returns the policy the converters start from: key columns use
// delta encoding compressed with keyCodec, measures are plain, and the file
// default codec is def.
func NewPolicy(s *Schema, def, keyCodec Codec) Policy {
	p := Policy{Default: def, Columns: make(map[string]ColumnPolicy, s.Len())}
	for _, c := range s.Columns() {
		if c.Role == Measure {
			p.Columns[c.Name] = ColumnPolicy{Encoding: EncodingPlain}
			continue
		}
		p.Columns[c.Name] = ColumnPolicy{Codec: keyCodec, Encoding: EncodingDelta}
	}
	return p
}

// Column returns the policy of the named column.
func (p Policy) Column(name string) ColumnPolicy { return p.Columns[name] }

// Validate checks that p only names columns of s and that every directive is
// supported by the column type.
func (p Policy) Validate(s *Schema) error {
	if _, ok := codecNames[p.Default]; !ok {
		return fmt.Errorf("%w: unknown default codec %d", ErrPolicyColumn, p.Default)
	}
	for name, cp := range p.Columns {
		c, _, ok := s.Lookup(name)
		if !ok {
			return fmt.Errorf("%w: column %q is not in %s", ErrPolicyColumn, name, s)
		}
		if _, ok := codecNames[cp.Codec]; !ok {
			return fmt.Errorf("%w: column %q has unknown codec %d", ErrPolicyColumn, name, cp.Codec)
		}
		if cp.Encoding == EncodingDelta && c.Kind != Int32 {
			return fmt.Errorf("%w: delta encoding on %s column %q", ErrPolicyColumn, c.Kind, name)
		}
		if cp.Encoding == EncodingDelta && cp.Dictionary {
			return fmt.Errorf("%w: column %q asks for both delta and dictionary encoding", ErrPolicyColumn, name)
		}
		if cp.Quantize != 0 && c.Kind != Float32 {
			return fmt.Errorf("%w: quantization on %s column %q", ErrPolicyColumn, c.Kind, name)
		}
		if cp.Quantize < 0 || cp.Quantize > xrage.MaxQuantizeDigits {
			return fmt.Errorf("%w: column %q quantizes to %d digits, want 0..%d",
				ErrPolicyColumn, name, cp.Quantize, xrage.MaxQuantizeDigits)
		}
	}
	return nil
}

// tag renders the parquet struct tag of c.
func (p Policy) tag(c Column) string {
	cp := p.Columns[c.Name]
	parts := []string{c.Name}
	switch {
	case cp.Dictionary:
		parts = append(parts, "dict")
	case cp.Encoding == EncodingDelta:
		parts = append(parts, "delta")
	default:
		parts = append(parts, "plain")
	}
	if t := cp.Codec.tag(); t != "" {
		parts = append(parts, t)
	}
	return strings.Join(parts, ",")
}
