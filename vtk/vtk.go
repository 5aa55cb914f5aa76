// Package vtk reads single-piece VTK XML ImageData (.vti) and
// UnstructuredGrid (.vtu) files as snapshots.
//
// ImageData snapshots expose their point data, UnstructuredGrid snapshots
// their cell data. Integer arrays of the FieldData section are reachable
// through FieldInt. Arrays may be stored as ascii, inline base64 or
// appended (raw or base64) data, optionally zlib compressed. Arrays are
// decoded on first use.
package vtk

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/lanl-asteroid-impact/xrage-format"
)

const (
	TypeImageData        = "ImageData"
	TypeUnstructuredGrid = "UnstructuredGrid"
)

// ErrFormat is returned for a file this package cannot read.
var ErrFormat = errors.New("unsupported vtk file")

type vtkFile struct {
	XMLName          xml.Name `xml:"VTKFile"`
	Type             string   `xml:"type,attr"`
	ByteOrder        string   `xml:"byte_order,attr"`
	HeaderType       string   `xml:"header_type,attr"`
	Compressor       string   `xml:"compressor,attr"`
	ImageData        *dataSet `xml:"ImageData"`
	UnstructuredGrid *dataSet `xml:"UnstructuredGrid"`
}

type dataSet struct {
	WholeExtent string    `xml:"WholeExtent,attr"`
	Origin      string    `xml:"Origin,attr"`
	Spacing     string    `xml:"Spacing,attr"`
	FieldData   arrayList `xml:"FieldData"`
	Pieces      []piece   `xml:"Piece"`
}

type piece struct {
	Extent         string    `xml:"Extent,attr"`
	NumberOfPoints int       `xml:"NumberOfPoints,attr"`
	NumberOfCells  int       `xml:"NumberOfCells,attr"`
	PointData      arrayList `xml:"PointData"`
	CellData       arrayList `xml:"CellData"`
}

type arrayList struct {
	Arrays []dataArray `xml:"DataArray"`
}

type dataArray struct {
	Type               string `xml:"type,attr"`
	Name               string `xml:"Name,attr"`
	NumberOfComponents int    `xml:"NumberOfComponents,attr"`
	NumberOfTuples     int    `xml:"NumberOfTuples,attr"`
	Format             string `xml:"format,attr"`
	Offset             int64  `xml:"offset,attr"`
	Data               string `xml:",chardata"`
}

// File is an opened VTK XML snapshot.
type File struct {
	kind    string
	n       int
	extent  [6]int
	origin  [3]float64
	spacing [3]float64

	dec    *decoder
	fields map[string]*dataArray
	attrs  map[string]*dataArray
	cache  map[string][]float32
}

var _ xrage.Grid = (*File)(nil)

// Open reads and parses the file at path.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return f, nil
}

// Parse parses an in-memory VTK XML document.
func Parse(data []byte) (*File, error) {
	head, tail, err := splitAppended(data)
	if err != nil {
		return nil, err
	}

	var doc vtkFile
	if err := xml.Unmarshal(head, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode xml: %w", err)
	}

	dec, err := newDecoder(doc.ByteOrder, doc.HeaderType, doc.Compressor, tail)
	if err != nil {
		return nil, err
	}
	f := &File{
		kind:    doc.Type,
		spacing: [3]float64{1, 1, 1},
		dec:     dec,
		fields:  make(map[string]*dataArray),
		attrs:   make(map[string]*dataArray),
		cache:   make(map[string][]float32),
	}

	var ds *dataSet
	switch doc.Type {
	case TypeImageData:
		ds = doc.ImageData
	case TypeUnstructuredGrid:
		ds = doc.UnstructuredGrid
	default:
		return nil, fmt.Errorf("%w: type %q", ErrFormat, doc.Type)
	}
	if ds == nil {
		return nil, fmt.Errorf("%w: missing %s element", ErrFormat, doc.Type)
	}
	if len(ds.Pieces) != 1 {
		return nil, fmt.Errorf("%w: %d pieces, only single-piece files are supported", ErrFormat, len(ds.Pieces))
	}
	p := &ds.Pieces[0]

	attrs := p.CellData.Arrays
	if doc.Type == TypeImageData {
		if err := f.readGeometry(ds, p); err != nil {
			return nil, err
		}
		attrs = p.PointData.Arrays
	} else {
		f.n = p.NumberOfCells
	}
	for i := range attrs {
		f.fields[attrs[i].Name] = &attrs[i]
	}
	for i := range ds.FieldData.Arrays {
		f.attrs[ds.FieldData.Arrays[i].Name] = &ds.FieldData.Arrays[i]
	}
	return f, nil
}

func (f *File) readGeometry(ds *dataSet, p *piece) error {
	extent := p.Extent
	if extent == "" {
		extent = ds.WholeExtent
	}
	ext, err := parseInts(extent, 6)
	if err != nil {
		return fmt.Errorf("invalid extent %q: %w", extent, err)
	}
	copy(f.extent[:], ext)

	if ds.Origin != "" {
		o, err := parseFloats(ds.Origin, 3)
		if err != nil {
			return fmt.Errorf("invalid origin %q: %w", ds.Origin, err)
		}
		copy(f.origin[:], o)
	}
	if ds.Spacing != "" {
		s, err := parseFloats(ds.Spacing, 3)
		if err != nil {
			return fmt.Errorf("invalid spacing %q: %w", ds.Spacing, err)
		}
		copy(f.spacing[:], s)
	}

	f.n = 1
	for i := 0; i < 3; i++ {
		d := f.extent[2*i+1] - f.extent[2*i] + 1
		if d < 1 {
			return fmt.Errorf("invalid extent %q", extent)
		}
		f.n *= d
	}
	return nil
}

// splitAppended cuts the AppendedData section, whose raw payload is not
// valid XML, off the document. It returns the XML head, closed again, and
// the bytes that follow the '_' marker.
func splitAppended(data []byte) ([]byte, *appended, error) {
	start := bytes.Index(data, []byte("<AppendedData"))
	if start < 0 {
		return data, nil, nil
	}
	end := bytes.IndexByte(data[start:], '>')
	if end < 0 {
		return nil, nil, fmt.Errorf("%w: unterminated AppendedData tag", ErrFormat)
	}
	tag := data[start : start+end+1]
	var attrs struct {
		Encoding string `xml:"encoding,attr"`
	}
	if err := xml.Unmarshal(append(append([]byte(nil), tag...), "</AppendedData>"...), &attrs); err != nil {
		return nil, nil, fmt.Errorf("failed to decode AppendedData tag: %w", err)
	}

	body := data[start+end+1:]
	mark := bytes.IndexByte(body, '_')
	if mark < 0 {
		return nil, nil, fmt.Errorf("%w: AppendedData without '_' marker", ErrFormat)
	}
	body = body[mark+1:]
	switch attrs.Encoding {
	case "raw":
	case "base64":
		if i := bytes.Index(body, []byte("</AppendedData>")); i >= 0 {
			body = body[:i]
		}
		body = bytes.TrimSpace(body)
	default:
		return nil, nil, fmt.Errorf("%w: appended encoding %q", ErrFormat, attrs.Encoding)
	}

	head := append(append([]byte(nil), data[:start]...), "</VTKFile>"...)
	return head, &appended{raw: attrs.Encoding == "raw", data: body}, nil
}

// Type returns the dataset type, TypeImageData or TypeUnstructuredGrid.
func (f *File) Type() string { return f.kind }

// NumRecords returns the number of points of an ImageData file or the number
// of cells of an UnstructuredGrid file.
func (f *File) NumRecords() int { return f.n }

// Field decodes a scalar Float32 point (vti) or cell (vtu) array.
func (f *File) Field(ctx context.Context, name string) ([]float32, error) {
	if v, ok := f.cache[name]; ok {
		return v, nil
	}
	a, ok := f.fields[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", xrage.ErrFieldNotFound, name)
	}
	if a.Type != "Float32" {
		return nil, fmt.Errorf("field %s is %s, want Float32", name, a.Type)
	}
	if a.NumberOfComponents > 1 {
		return nil, fmt.Errorf("field %s has %d components, want a scalar", name, a.NumberOfComponents)
	}
	v, err := f.dec.float32s(a)
	if err != nil {
		return nil, fmt.Errorf("failed to decode field %s: %w", name, err)
	}
	f.cache[name] = v
	return v, nil
}

func (f *File) Extent() [6]int { return f.extent }

func (f *File) Origin() [3]float64 { return f.origin }

func (f *File) Spacing() [3]float64 { return f.spacing }

// FieldInt returns the first value of an integer FieldData array.
func (f *File) FieldInt(name string) (int64, error) {
	a, ok := f.attrs[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", xrage.ErrAttributeNotFound, name)
	}
	v, err := f.dec.ints(a)
	if err != nil {
		return 0, fmt.Errorf("failed to decode attribute %s: %w", name, err)
	}
	if len(v) == 0 {
		return 0, fmt.Errorf("attribute %s is empty", name)
	}
	return v[0], nil
}

// Close drops the decoded arrays.
func (f *File) Close() error {
	clear(f.cache)
	return nil
}

func parseInts(s string, n int) ([]int, error) {
	parts := strings.Fields(s)
	if len(parts) != n {
		return nil, fmt.Errorf("got %d values, want %d", len(parts), n)
	}
	v := make([]int, n)
	for i, p := range parts {
		x, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		v[i] = x
	}
	return v, nil
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Fields(s)
	if len(parts) != n {
		return nil, fmt.Errorf("got %d values, want %d", len(parts), n)
	}
	v := make([]float64, n)
	for i, p := range parts {
		x, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		v[i] = x
	}
	return v, nil
}
