// Package vtktest encodes small VTK XML snapshots for tests, in every data
// layout the vtk package reads.
package vtktest

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// Format is the storage format of the DataArray elements.
type Format int

const (
	ASCII Format = iota
	Binary
	Appended
	AppendedBase64
)

// Options select the encoding of a document.
type Options struct {
	Format    Format
	Compress  bool
	Header64  bool
	BigEndian bool
	// BlockSize is the uncompressed size of a zlib block; 32 KiB when zero.
	BlockSize int
}

type Array struct {
	Name   string
	Values []float32
}

// IntArray is a FieldData array. Type is "Int32" unless set to "Int64".
type IntArray struct {
	Name   string
	Type   string
	Values []int64
}

type ImageData struct {
	Extent    [6]int
	Origin    [3]float64
	Spacing   [3]float64
	PointData []Array
	FieldData []IntArray
}

type UnstructuredGrid struct {
	Cells     int
	CellData  []Array
	FieldData []IntArray
}

// Encode renders the image as a .vti document.
func (g ImageData) Encode(o Options) []byte {
	e := newEncoder(o)
	var sb strings.Builder
	e.open(&sb, "ImageData")
	fmt.Fprintf(&sb, "  <ImageData WholeExtent=%q Origin=%q Spacing=%q>\n",
		ints(g.Extent[:]), floats(g.Origin[:]), floats(g.Spacing[:]))
	e.fieldData(&sb, g.FieldData)
	fmt.Fprintf(&sb, "    <Piece Extent=%q>\n", ints(g.Extent[:]))
	e.arrays(&sb, "PointData", g.PointData)
	sb.WriteString("      <CellData>\n      </CellData>\n")
	sb.WriteString("    </Piece>\n  </ImageData>\n")
	return e.close(&sb)
}

// Encode renders the grid as a .vtu document. Points and cells are left
// empty; only the cell count matters to readers of cell data.
func (g UnstructuredGrid) Encode(o Options) []byte {
	e := newEncoder(o)
	var sb strings.Builder
	e.open(&sb, "UnstructuredGrid")
	sb.WriteString("  <UnstructuredGrid>\n")
	e.fieldData(&sb, g.FieldData)
	fmt.Fprintf(&sb, "    <Piece NumberOfPoints=\"0\" NumberOfCells=\"%d\">\n", g.Cells)
	sb.WriteString("      <PointData>\n      </PointData>\n")
	e.arrays(&sb, "CellData", g.CellData)
	sb.WriteString("      <Points>\n        <DataArray type=\"Float32\" NumberOfComponents=\"3\" format=\"ascii\"/>\n      </Points>\n")
	sb.WriteString("    </Piece>\n  </UnstructuredGrid>\n")
	return e.close(&sb)
}

// WriteFile encodes doc into path.
func WriteFile(path string, doc []byte) error {
	return os.WriteFile(path, doc, 0o644)
}

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

type encoder struct {
	o        Options
	order    byteOrder
	appended bytes.Buffer
}

func newEncoder(o Options) *encoder {
	if o.BlockSize <= 0 {
		o.BlockSize = 32 << 10
	}
	e := &encoder{o: o, order: binary.LittleEndian}
	if o.BigEndian {
		e.order = binary.BigEndian
	}
	return e
}

func (e *encoder) open(sb *strings.Builder, kind string) {
	order := "LittleEndian"
	if e.o.BigEndian {
		order = "BigEndian"
	}
	header := "UInt32"
	if e.o.Header64 {
		header = "UInt64"
	}
	sb.WriteString("<?xml version=\"1.0\"?>\n")
	fmt.Fprintf(sb, "<VTKFile type=%q version=\"1.0\" byte_order=%q header_type=%q", kind, order, header)
	if e.o.Compress {
		sb.WriteString(` compressor="vtkZLibDataCompressor"`)
	}
	sb.WriteString(">\n")
}

func (e *encoder) close(sb *strings.Builder) []byte {
	var out bytes.Buffer
	out.WriteString(sb.String())
	if e.o.Format == Appended || e.o.Format == AppendedBase64 {
		encoding := "raw"
		if e.o.Format == AppendedBase64 {
			encoding = "base64"
		}
		fmt.Fprintf(&out, "  <AppendedData encoding=%q>\n   _", encoding)
		out.Write(e.appended.Bytes())
		out.WriteString("\n  </AppendedData>\n")
	}
	out.WriteString("</VTKFile>\n")
	return out.Bytes()
}

func (e *encoder) fieldData(sb *strings.Builder, arrays []IntArray) {
	if len(arrays) == 0 {
		return
	}
	sb.WriteString("    <FieldData>\n")
	for _, a := range arrays {
		typ := a.Type
		if typ == "" {
			typ = "Int32"
		}
		var payload []byte
		var text []string
		for _, v := range a.Values {
			text = append(text, strconv.FormatInt(v, 10))
			if typ == "Int64" {
				payload = e.order.AppendUint64(payload, uint64(v))
			} else {
				payload = e.order.AppendUint32(payload, uint32(int32(v)))
			}
		}
		e.array(sb, "      ", typ, a.Name, len(a.Values), text, payload)
	}
	sb.WriteString("    </FieldData>\n")
}

func (e *encoder) arrays(sb *strings.Builder, section string, arrays []Array) {
	fmt.Fprintf(sb, "      <%s>\n", section)
	for _, a := range arrays {
		var payload []byte
		var text []string
		for _, v := range a.Values {
			text = append(text, strconv.FormatFloat(float64(v), 'g', -1, 32))
			payload = e.order.AppendUint32(payload, math.Float32bits(v))
		}
		e.array(sb, "        ", "Float32", a.Name, len(a.Values), text, payload)
	}
	fmt.Fprintf(sb, "      </%s>\n", section)
}

func (e *encoder) array(sb *strings.Builder, indent, typ, name string, tuples int, text []string, payload []byte) {
	fmt.Fprintf(sb, "%s<DataArray type=%q Name=%q NumberOfTuples=\"%d\"", indent, typ, name, tuples)
	switch e.o.Format {
	case ASCII:
		fmt.Fprintf(sb, " format=\"ascii\">\n%s  %s\n%s</DataArray>\n", indent, strings.Join(text, " "), indent)
	case Binary:
		fmt.Fprintf(sb, " format=\"binary\">\n%s  %s\n%s</DataArray>\n", indent, e.encoded(payload), indent)
	case Appended:
		fmt.Fprintf(sb, " format=\"appended\" offset=\"%d\"/>\n", e.appended.Len())
		header, data := e.block(payload)
		e.appended.Write(header)
		e.appended.Write(data)
	case AppendedBase64:
		fmt.Fprintf(sb, " format=\"appended\" offset=\"%d\"/>\n", e.appended.Len())
		e.appended.WriteString(e.encoded(payload))
	}
}

// encoded is the base64 form of a block: one stream for an uncompressed
// block, separate header and data streams for a compressed one.
func (e *encoder) encoded(payload []byte) string {
	header, data := e.block(payload)
	if !e.o.Compress {
		return base64.StdEncoding.EncodeToString(append(header, data...))
	}
	return base64.StdEncoding.EncodeToString(header) + base64.StdEncoding.EncodeToString(data)
}

func (e *encoder) block(payload []byte) (header, data []byte) {
	if !e.o.Compress {
		return e.words(uint64(len(payload))), payload
	}
	bs := e.o.BlockSize
	nblocks := (len(payload) + bs - 1) / bs
	words := []uint64{uint64(nblocks), uint64(bs), uint64(len(payload) % bs)}
	for i := 0; i < nblocks; i++ {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		zw.Write(payload[i*bs : min((i+1)*bs, len(payload))])
		zw.Close()
		words = append(words, uint64(buf.Len()))
		data = append(data, buf.Bytes()...)
	}
	return e.words(words...), data
}

func (e *encoder) words(v ...uint64) []byte {
	var b []byte
	for _, w := range v {
		if e.o.Header64 {
			b = e.order.AppendUint64(b, w)
		} else {
			b = e.order.AppendUint32(b, uint32(w))
		}
	}
	return b
}

func ints(v []int) string {
	s := make([]string, len(v))
	for i, x := range v {
		s[i] = strconv.Itoa(x)
	}
	return strings.Join(s, " ")
}

func floats(v []float64) string {
	s := make([]string, len(v))
	for i, x := range v {
		s[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return strings.Join(s, " ")
}
