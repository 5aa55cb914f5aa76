package vtk_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"

	"github.com/lanl-asteroid-impact/xrage-format"
	"github.com/lanl-asteroid-impact/xrage-format/vtk"
	"github.com/lanl-asteroid-impact/xrage-format/vtk/vtktest"
)

const asciiImage = `<?xml version="1.0"?>
<VTKFile type="ImageData" version="0.1" byte_order="LittleEndian">
  <ImageData WholeExtent="0 2 0 1 0 0" Origin="0 1.5 -2" Spacing="0.5 0.5 1">
    <FieldData>
      <DataArray type="Int32" Name="cycle_index" NumberOfTuples="1" format="ascii">
        42
      </DataArray>
    </FieldData>
    <Piece Extent="0 2 0 1 0 0">
      <PointData Scalars="v02">
        <DataArray type="Float32" Name="v02" format="ascii">
          0 0.5 1 1.5 2 2.5
        </DataArray>
        <DataArray type="Float32" Name="v03" format="ascii">
          -1 -2 -3 -4 -5 -6
        </DataArray>
        <DataArray type="Int32" Name="mat" format="ascii">
          1 1 2 2 3 3
        </DataArray>
      </PointData>
      <CellData>
      </CellData>
    </Piece>
  </ImageData>
</VTKFile>
`

const asciiGrid = `<?xml version="1.0"?>
<VTKFile type="UnstructuredGrid" version="0.1" byte_order="LittleEndian">
  <UnstructuredGrid>
    <Piece NumberOfPoints="4" NumberOfCells="1">
      <PointData>
      </PointData>
      <CellData>
        <DataArray type="Float32" Name="rho" format="ascii">2.5</DataArray>
      </CellData>
      <Points>
        <DataArray type="Float32" NumberOfComponents="3" format="ascii">
          0 0 0 1 0 0 0 1 0 0 0 1
        </DataArray>
      </Points>
      <Cells>
        <DataArray type="Int32" Name="connectivity" format="ascii">0 1 2 3</DataArray>
        <DataArray type="Int32" Name="offsets" format="ascii">4</DataArray>
        <DataArray type="UInt8" Name="types" format="ascii">10</DataArray>
      </Cells>
    </Piece>
  </UnstructuredGrid>
</VTKFile>
`

func TestParse_ASCIIImage(t *testing.T) {
	ctx := context.Background()
	f, err := vtk.Parse([]byte(asciiImage))
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, vtk.TypeImageData, f.Type())
	require.Equal(t, 6, f.NumRecords())
	require.Equal(t, [6]int{0, 2, 0, 1, 0, 0}, f.Extent())
	require.Equal(t, [3]float64{0, 1.5, -2}, f.Origin())
	require.Equal(t, [3]float64{0.5, 0.5, 1}, f.Spacing())

	v02, err := f.Field(ctx, "v02")
	require.NoError(t, err)
	require.Equal(t, []float32{0, 0.5, 1, 1.5, 2, 2.5}, v02)

	cycle, err := f.FieldInt("cycle_index")
	require.NoError(t, err)
	require.Equal(t, int64(42), cycle)

	_, err = f.Field(ctx, "prs")
	require.ErrorIs(t, err, xrage.ErrFieldNotFound)
	_, err = f.Field(ctx, "mat")
	require.ErrorContains(t, err, "want Float32")
	_, err = f.FieldInt("dump")
	require.ErrorIs(t, err, xrage.ErrAttributeNotFound)

	meta, err := xrage.ExtractMetadata(f)
	require.NoError(t, err)
	require.Equal(t, "42", meta["cycle_index"])
	require.Equal(t, "2", meta["extent_1"])
	require.Equal(t, "-2.000000", meta["origin_2"])
}

func TestParse_ASCIIGrid(t *testing.T) {
	f, err := vtk.Parse([]byte(asciiGrid))
	require.NoError(t, err)

	require.Equal(t, vtk.TypeUnstructuredGrid, f.Type())
	require.Equal(t, 1, f.NumRecords())
	rho, err := f.Field(context.Background(), "rho")
	require.NoError(t, err)
	require.Equal(t, []float32{2.5}, rho)

	_, err = xrage.ExtractMetadata(f)
	require.ErrorIs(t, err, xrage.ErrAttributeNotFound)
}

func TestEncodings(t *testing.T) {
	// 3x4x5 points; the small block size forces several zlib blocks.
	n := 60
	v02 := make([]float32, n)
	v03 := make([]float32, n)
	for i := range v02 {
		v02[i] = float32(i) / 7
		v03[i] = -float32(i * i)
	}
	image := vtktest.ImageData{
		Extent:  [6]int{0, 2, 0, 3, 0, 4},
		Origin:  [3]float64{1, 2, 3},
		Spacing: [3]float64{0.25, 0.25, 0.25},
		PointData: []vtktest.Array{
			{Name: "v02", Values: v02},
			{Name: "v03", Values: v03},
		},
		FieldData: []vtktest.IntArray{
			{Name: "cycle_index", Type: "Int64", Values: []int64{1234567890123}},
			{Name: "dump", Values: []int64{-3}},
		},
	}

	for _, format := range []vtktest.Format{vtktest.ASCII, vtktest.Binary, vtktest.Appended, vtktest.AppendedBase64} {
		for _, compress := range []bool{false, true} {
			for _, header64 := range []bool{false, true} {
				for _, bigEndian := range []bool{false, true} {
					o := vtktest.Options{Format: format, Compress: compress, Header64: header64, BigEndian: bigEndian, BlockSize: 100}
					t.Run(fmt.Sprintf("%+v", o), func(t *testing.T) {
						f, err := vtk.Parse(image.Encode(o))
						require.NoError(t, err)

						require.Equal(t, n, f.NumRecords())
						got, err := f.Field(context.Background(), "v02")
						require.NoError(t, err)
						require.Equal(t, v02, got)
						got, err = f.Field(context.Background(), "v03")
						require.NoError(t, err)
						require.Equal(t, v03, got)

						cycle, err := f.FieldInt("cycle_index")
						require.NoError(t, err)
						require.Equal(t, int64(1234567890123), cycle)
						dump, err := f.FieldInt("dump")
						require.NoError(t, err)
						require.Equal(t, int64(-3), dump)
					})
				}
			}
		}
	}
}

func TestOpen_UnstructuredGrid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plt00010.vtu")
	grid := vtktest.UnstructuredGrid{
		Cells: 3,
		CellData: []vtktest.Array{
			{Name: "rho", Values: []float32{1, 2, 3}},
			{Name: "prs", Values: []float32{4, 5, 6}},
		},
	}
	require.NoError(t, vtktest.WriteFile(path, grid.Encode(vtktest.Options{Format: vtktest.Appended, Compress: true})))

	f, err := vtk.Open(path)
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, 3, f.NumRecords())
	prs, err := f.Field(context.Background(), "prs")
	require.NoError(t, err)
	require.Equal(t, []float32{4, 5, 6}, prs)
}

func TestParse_Rejects(t *testing.T) {
	for name, doc := range map[string]string{
		"polydata":   `<VTKFile type="PolyData"><PolyData/></VTKFile>`,
		"no dataset": `<VTKFile type="ImageData"></VTKFile>`,
		"two pieces": `<VTKFile type="UnstructuredGrid"><UnstructuredGrid><Piece/><Piece/></UnstructuredGrid></VTKFile>`,
		"lz4":        `<VTKFile type="ImageData" compressor="vtkLZ4DataCompressor"><ImageData><Piece Extent="0 0 0 0 0 0"/></ImageData></VTKFile>`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := vtk.Parse([]byte(doc))
			require.ErrorIs(t, err, vtk.ErrFormat)
		})
	}

	_, err := vtk.Open(filepath.Join(t.TempDir(), "missing.vti"))
	require.Error(t, err)
}

func TestField_Truncated(t *testing.T) {
	// The header claims 16 bytes but only 8 follow.
	payload := binary.LittleEndian.AppendUint32(nil, 16)
	payload = append(payload, make([]byte, 8)...)
	doc := fmt.Sprintf(`<VTKFile type="ImageData" byte_order="LittleEndian">
  <ImageData WholeExtent="0 3 0 0 0 0">
    <Piece Extent="0 3 0 0 0 0">
      <PointData>
        <DataArray type="Float32" Name="v02" format="binary">%s</DataArray>
      </PointData>
    </Piece>
  </ImageData>
</VTKFile>`, base64.StdEncoding.EncodeToString(payload))

	f, err := vtk.Parse([]byte(doc))
	require.NoError(t, err)
	_, err = f.Field(context.Background(), "v02")
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func compressedDoc(t *testing.T, blockSize, lastSize uint64, payload []byte) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var header []byte
	for _, w := range []uint64{1, blockSize, lastSize, uint64(buf.Len())} {
		header = binary.LittleEndian.AppendUint64(header, w)
	}
	data := base64.StdEncoding.EncodeToString(header) + base64.StdEncoding.EncodeToString(buf.Bytes())
	return fmt.Sprintf(`<VTKFile type="ImageData" byte_order="LittleEndian" header_type="UInt64" compressor="vtkZLibDataCompressor">
  <ImageData WholeExtent="0 3 0 0 0 0">
    <Piece Extent="0 3 0 0 0 0">
      <PointData>
        <DataArray type="Float32" Name="v02" format="binary">%s</DataArray>
      </PointData>
    </Piece>
  </ImageData>
</VTKFile>`, data)
}

func TestField_CorruptBlockHeader(t *testing.T) {
	payload := make([]byte, 16)
	for name, tc := range map[string]struct {
		blockSize, lastSize uint64
		want                error
	}{
		"huge block":          {1 << 62, 0, vtk.ErrFormat},
		"last exceeds block":  {16, 32, vtk.ErrFormat},
		"inflates past block": {4, 0, nil},
	} {
		t.Run(name, func(t *testing.T) {
			f, err := vtk.Parse([]byte(compressedDoc(t, tc.blockSize, tc.lastSize, payload)))
			require.NoError(t, err)
			_, err = f.Field(context.Background(), "v02")
			require.Error(t, err)
			if tc.want != nil {
				require.ErrorIs(t, err, tc.want)
			}
		})
	}

	f, err := vtk.Parse([]byte(compressedDoc(t, 16, 0, payload)))
	require.NoError(t, err)
	v, err := f.Field(context.Background(), "v02")
	require.NoError(t, err)
	require.Equal(t, []float32{0, 0, 0, 0}, v)
}
