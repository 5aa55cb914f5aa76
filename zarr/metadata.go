package zarr

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// CompressorConfig represents the Zarr compressor metadata.
type CompressorConfig struct {
	ID    string `json:"id"`
	Level int    `json:"level,omitempty"`
}

// Metadata represents the Zarr V2 .zarray metadata.
type Metadata struct {
	ZarrFormat         int               `json:"zarr_format"`
	Shape              []int             `json:"shape"`
	Chunks             []int             `json:"chunks"`
	DType              string            `json:"dtype"`
	Compressor         *CompressorConfig `json:"compressor"`
	FillValue          interface{}       `json:"fill_value"`
	Order              string            `json:"order"`
	DimensionSeparator string            `json:"dimension_separator,omitempty"`
}

// Separator returns the chunk key separator, "." unless the array declares one.
func (m *Metadata) Separator() string {
	if m.DimensionSeparator == "" {
		return "."
	}
	return m.DimensionSeparator
}

// GroupAttrs is the .zattrs document of a snapshot group: the grid geometry
// and the simulation cycle the snapshot was dumped at.
type GroupAttrs struct {
	Extent  []int     `json:"extent"`
	Origin  []float64 `json:"origin"`
	Spacing []float64 `json:"spacing"`

	// Raw holds every attribute, including the ones decoded above.
	Raw map[string]json.RawMessage `json:"-"`
}

// LoadMetadata reads and parses a .zarray document.
func LoadMetadata(reader io.Reader) (*Metadata, error) {
	var meta Metadata
	if err := json.NewDecoder(reader).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	if meta.ZarrFormat != 2 {
		return nil, fmt.Errorf("unsupported zarr_format: %d, expected 2", meta.ZarrFormat)
	}
	if len(meta.Chunks) != len(meta.Shape) {
		return nil, fmt.Errorf("chunks %v do not match shape %v", meta.Chunks, meta.Shape)
	}
	for _, c := range meta.Chunks {
		if c <= 0 {
			return nil, fmt.Errorf("invalid chunk size in %v", meta.Chunks)
		}
	}
	if meta.Order != "" && meta.Order != "C" {
		return nil, fmt.Errorf("unsupported order: %s", meta.Order)
	}

	return &meta, nil
}

// LoadGroupAttrs reads and parses a .zattrs document.
func LoadGroupAttrs(reader io.Reader) (*GroupAttrs, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read attributes: %w", err)
	}
	var attrs GroupAttrs
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, fmt.Errorf("failed to decode attributes: %w", err)
	}
	if err := json.Unmarshal(data, &attrs.Raw); err != nil {
		return nil, fmt.Errorf("failed to decode attributes: %w", err)
	}
	if attrs.Extent != nil && len(attrs.Extent) != 6 {
		return nil, fmt.Errorf("extent has %d values, expected 6", len(attrs.Extent))
	}
	if attrs.Origin != nil && len(attrs.Origin) != 3 {
		return nil, fmt.Errorf("origin has %d values, expected 3", len(attrs.Origin))
	}
	if attrs.Spacing != nil && len(attrs.Spacing) != 3 {
		return nil, fmt.Errorf("spacing has %d values, expected 3", len(attrs.Spacing))
	}
	return &attrs, nil
}

// Int returns an integer attribute. A one-element array is accepted as well,
// matching how field-data arrays are usually exported.
func (a *GroupAttrs) Int(name string) (int64, bool, error) {
	raw, ok := a.Raw[name]
	if !ok {
		return 0, false, nil
	}
	var v int64
	if err := json.Unmarshal(raw, &v); err == nil {
		return v, true, nil
	}
	var arr []int64
	if err := json.Unmarshal(raw, &arr); err != nil || len(arr) == 0 {
		return 0, true, fmt.Errorf("attribute %s is not an integer: %s", name, raw)
	}
	return arr[0], true, nil
}

// ParseDType takes a numpy-style string like "<f4", "|b1", "<i8",
// and returns a simplified string name (e.g., "float32", "bool", "int64"),
// the byte size (e.g., 4, 1, 8), and an error if unsupported.
// Reject big-endian (>) types for now.
func ParseDType(s string) (string, int, error) {
	if len(s) < 3 {
		return "", 0, fmt.Errorf("invalid dtype: %s", s)
	}

	endian := s[0]
	if endian == '>' {
		return "", 0, fmt.Errorf("big-endian types are unsupported: %s", s)
	}

	kind := s[1]
	sizeStr := s[2:]

	size, err := strconv.Atoi(sizeStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid size in dtype: %s", s)
	}

	switch kind {
	case 'b':
		return "bool", size, nil
	case 'i':
		return fmt.Sprintf("int%d", size*8), size, nil
	case 'u':
		return fmt.Sprintf("uint%d", size*8), size, nil
	case 'f':
		return fmt.Sprintf("float%d", size*8), size, nil
	default:
		return "", 0, fmt.Errorf("unsupported dtype kind: %c in %s", kind, s)
	}
}
