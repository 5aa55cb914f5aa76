package pqt_test

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"
	"github.com/stretchr/testify/require"

	"github.com/lanl-asteroid-impact/xrage-format"
	"github.com/lanl-asteroid-impact/xrage-format/pqt"
)

type sink struct {
	bytes.Buffer
	closed int
}

func (s *sink) Close() error {
	s.closed++
	return nil
}

func readAll(t *testing.T, data []byte) (*pqt.Reader, []pqt.Row) {
	t.Helper()
	r, err := pqt.OpenReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	var rows []pqt.Row
	for {
		row, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		row.Values = slices.Clone(row.Values)
		rows = append(rows, row)
	}
	return r, rows
}

func v2Schema() *pqt.Schema {
	return pqt.MustSchema(pqt.TimestepColumn(), pqt.RowIDColumn(), pqt.MeasureColumn("v02"), pqt.MeasureColumn("v03"))
}

func TestWriter_RowIDContinuous(t *testing.T) {
	schema := pqt.MustSchema(pqt.RowIDColumn(), pqt.MeasureColumn("v02"), pqt.MeasureColumn("v03"))
	out := &sink{}
	w, err := pqt.Open(out, schema, pqt.NewPolicy(schema, pqt.CodecNone, pqt.CodecSnappy))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, w.AppendRow(0, float32(i), float32(-i)))
		if i == 1 {
			require.NoError(t, w.FlushRowGroup())
		}
	}
	require.Equal(t, int32(5), w.NextRowID())
	require.NoError(t, w.Close())
	require.Equal(t, 1, out.closed)
	require.Equal(t, int64(5), w.Rows())
	require.Equal(t, 2, w.RowGroups())

	r, rows := readAll(t, out.Bytes())
	require.Equal(t, int64(5), r.NumRows())
	require.Equal(t, 2, r.RowGroups())
	for i, row := range rows {
		require.Equal(t, int32(i), row.RowID)
		require.Equal(t, []float32{float32(i), float32(-i)}, row.Values)
	}
}

func TestWriter_RowIDPerGroup(t *testing.T) {
	schema := v2Schema()
	out := &sink{}
	w, err := pqt.Open(out, schema, pqt.NewPolicy(schema, pqt.CodecNone, pqt.CodecSnappy),
		pqt.WithRowIDPolicy(pqt.RowIDPerGroup))
	require.NoError(t, err)

	steps := []struct {
		timestep int32
		n        int
	}{{2, 3}, {7, 2}, {15, 1}}
	for _, s := range steps {
		for i := 0; i < s.n; i++ {
			require.NoError(t, w.AppendRow(s.timestep, 1, 2))
		}
		require.NoError(t, w.FlushRowGroup())
	}
	require.NoError(t, w.Close())
	require.Equal(t, 3, w.RowGroups())

	r, rows := readAll(t, out.Bytes())
	require.Equal(t, 3, r.RowGroups())

	var got []string
	for _, row := range rows {
		got = append(got, fmt.Sprintf("%d/%d", row.Timestep, row.RowID))
	}
	require.Equal(t, []string{"2/0", "2/1", "2/2", "7/0", "7/1", "15/0"}, got)
}

func TestWriter_LazyFlush(t *testing.T) {
	schema := v2Schema()
	out := &sink{}
	w, err := pqt.Open(out, schema, pqt.NewPolicy(schema, pqt.CodecNone, pqt.CodecSnappy))
	require.NoError(t, err)

	// Boundaries without rows in between never produce empty groups.
	require.NoError(t, w.FlushRowGroup())
	require.NoError(t, w.FlushRowGroup())
	require.NoError(t, w.AppendRow(1, 0, 0))
	require.NoError(t, w.FlushRowGroup())
	require.NoError(t, w.FlushRowGroup())
	require.NoError(t, w.AppendRow(1, 0, 0))
	require.NoError(t, w.FlushRowGroup())
	require.NoError(t, w.Close())

	require.Equal(t, 2, w.RowGroups())
	r, rows := readAll(t, out.Bytes())
	require.Len(t, rows, 2)
	require.Equal(t, 2, r.RowGroups())
}

func TestWriter_Empty(t *testing.T) {
	schema := v2Schema()
	out := &sink{}
	w, err := pqt.Open(out, schema, pqt.NewPolicy(schema, pqt.CodecNone, pqt.CodecSnappy))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.Equal(t, 0, w.RowGroups())

	r, rows := readAll(t, out.Bytes())
	require.Empty(t, rows)
	require.True(t, r.Schema().Equal(schema))
}

func TestWriter_Quantize(t *testing.T) {
	schema := pqt.MustSchema(pqt.MeasureColumn("q"), pqt.MeasureColumn("raw"))
	policy := pqt.NewPolicy(schema, pqt.CodecZstd, pqt.CodecSnappy)
	policy.Columns["q"] = pqt.ColumnPolicy{Quantize: 6}

	out := &sink{}
	w, err := pqt.Open(out, schema, policy)
	require.NoError(t, err)
	inputs := []float32{0.12345678, -3.3333333, 1e-7, 42}
	for _, v := range inputs {
		require.NoError(t, w.AppendRow(0, v, v))
	}
	require.NoError(t, w.Close())

	_, rows := readAll(t, out.Bytes())
	require.Len(t, rows, len(inputs))
	for i, row := range rows {
		require.Equal(t, xrage.Quantize(inputs[i], 6), row.Values[0])
		require.Equal(t, inputs[i], row.Values[1])
	}
}

func TestWriter_Metadata(t *testing.T) {
	schema := v2Schema()
	out := &sink{}
	meta := map[string]string{"cycle_index": "42", "origin_1": "1.500000"}
	w, err := pqt.Open(out, schema, pqt.NewPolicy(schema, pqt.CodecNone, pqt.CodecSnappy), pqt.WithMetadata(meta))
	require.NoError(t, err)
	require.NoError(t, w.AppendRow(3, 1, 2))
	require.NoError(t, w.Close())

	r, _ := readAll(t, out.Bytes())
	require.Equal(t, meta, r.Metadata())
}

func TestWriter_ColumnEncodings(t *testing.T) {
	schema := v2Schema()
	out := &sink{}
	w, err := pqt.Open(out, schema, pqt.NewPolicy(schema, pqt.CodecNone, pqt.CodecSnappy))
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		require.NoError(t, w.AppendRow(5, float32(i), 0.5))
	}
	require.NoError(t, w.Close())

	pf, err := parquet.OpenFile(bytes.NewReader(out.Bytes()), int64(out.Len()))
	require.NoError(t, err)
	columns := pf.Metadata().RowGroups[0].Columns
	require.Len(t, columns, 4)

	for _, i := range []int{0, 1} {
		md := columns[i].MetaData
		require.Equal(t, format.Snappy, md.Codec, md.PathInSchema)
		require.Contains(t, md.Encoding, format.DeltaBinaryPacked, md.PathInSchema)
	}
	for _, i := range []int{2, 3} {
		md := columns[i].MetaData
		require.Equal(t, format.Uncompressed, md.Codec, md.PathInSchema)
		require.Contains(t, md.Encoding, format.Plain, md.PathInSchema)
		require.NotContains(t, md.Encoding, format.RLEDictionary, md.PathInSchema)
	}
	require.Equal(t, []string{"timestep"}, columns[0].MetaData.PathInSchema)
	require.Equal(t, []string{"v03"}, columns[3].MetaData.PathInSchema)
}

func TestWriter_Closed(t *testing.T) {
	schema := v2Schema()
	w, err := pqt.Open(&sink{}, schema, pqt.NewPolicy(schema, pqt.CodecNone, pqt.CodecSnappy))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.ErrorIs(t, w.Close(), pqt.ErrWriterClosed)
	require.ErrorIs(t, w.AppendRow(0, 1, 2), pqt.ErrWriterClosed)
	require.ErrorIs(t, w.FlushRowGroup(), pqt.ErrWriterClosed)
	require.ErrorIs(t, w.WriteRow(pqt.Row{Values: []float32{1, 2}}), pqt.ErrWriterClosed)
}

func TestWriter_Arity(t *testing.T) {
	schema := v2Schema()
	w, err := pqt.Open(&sink{}, schema, pqt.NewPolicy(schema, pqt.CodecNone, pqt.CodecSnappy))
	require.NoError(t, err)
	defer w.Close()

	require.Error(t, w.AppendRow(0, 1))
	require.Error(t, w.AppendRow(0, 1, 2, 3))
	require.Equal(t, int64(0), w.Rows())
}

func TestWriter_RejectsPolicy(t *testing.T) {
	schema := v2Schema()
	policy := pqt.NewPolicy(schema, pqt.CodecNone, pqt.CodecSnappy)
	policy.Columns["v04"] = pqt.ColumnPolicy{}

	_, err := pqt.Open(&sink{}, schema, policy)
	require.ErrorIs(t, err, pqt.ErrPolicyColumn)
}

func TestRoundTrip(t *testing.T) {
	schema := v2Schema()
	policy := pqt.NewPolicy(schema, pqt.CodecNone, pqt.CodecSnappy)
	policy.Columns["v02"] = pqt.ColumnPolicy{Quantize: 6}
	policy.Columns["v03"] = pqt.ColumnPolicy{Quantize: 6}

	first := &sink{}
	w, err := pqt.Open(first, schema, policy, pqt.WithBatchSize(7))
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		require.NoError(t, w.AppendRow(int32(i/10), float32(i)/3, -float32(i)/7))
		if i%10 == 9 {
			require.NoError(t, w.FlushRowGroup())
		}
	}
	require.NoError(t, w.Close())
	_, want := readAll(t, first.Bytes())

	// Re-encoding quantized values under the same policy changes nothing.
	second := &sink{}
	w, err = pqt.Open(second, schema, policy)
	require.NoError(t, err)
	for _, row := range want {
		require.NoError(t, w.WriteRow(row))
	}
	require.NoError(t, w.Close())
	_, got := readAll(t, second.Bytes())
	require.Equal(t, want, got)
}

func TestWriter_RequantizeStable(t *testing.T) {
	schema := pqt.MustSchema(pqt.RowIDColumn(), pqt.MeasureColumn("v02"))
	policy := pqt.NewPolicy(schema, pqt.CodecNone, pqt.CodecSnappy)
	policy.Columns["v02"] = pqt.ColumnPolicy{Quantize: 6}

	inputs := []float32{8.203815, 8.2038155, 12.345678, 15.999999, -9.876543, 1234.5678, 1e33}
	out := &sink{}
	w, err := pqt.Open(out, schema, policy)
	require.NoError(t, err)
	for _, v := range inputs {
		require.NoError(t, w.AppendRow(0, v))
	}
	require.NoError(t, w.Close())
	_, want := readAll(t, out.Bytes())

	// Each pass through a quantizing writer must reproduce the previous one.
	for pass := 0; pass < 3; pass++ {
		next := &sink{}
		w, err := pqt.Open(next, schema, policy)
		require.NoError(t, err)
		for _, row := range want {
			require.NoError(t, w.WriteRow(row))
		}
		require.NoError(t, w.Close())
		_, got := readAll(t, next.Bytes())
		require.Equal(t, want, got, "pass %d", pass)
	}
}
