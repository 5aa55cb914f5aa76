package pqt_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lanl-asteroid-impact/xrage-format/pqt"
)

func TestNewSchema(t *testing.T) {
	s, err := pqt.NewSchema(pqt.TimestepColumn(), pqt.RowIDColumn(), pqt.MeasureColumn("v02"))
	require.NoError(t, err)
	require.True(t, s.HasTimestep())
	require.True(t, s.HasRowID())
	require.Equal(t, []string{"v02"}, s.Measures())
	require.Equal(t, "schema(timestep int32, rowid int32, v02 float32)", s.String())

	_, i, ok := s.Lookup("rowid")
	require.True(t, ok)
	require.Equal(t, 1, i)

	for name, columns := range map[string][]pqt.Column{
		"empty":         nil,
		"duplicate":     {pqt.MeasureColumn("a"), pqt.MeasureColumn("a")},
		"two timesteps": {pqt.TimestepColumn(), {Name: "t2", Kind: pqt.Int32, Role: pqt.Timestep}},
		"float key":     {{Name: "rowid", Kind: pqt.Float32, Role: pqt.RowID}},
		"int measure":   {{Name: "mat", Kind: pqt.Int32, Role: pqt.Measure}},
		"unnamed":       {pqt.MeasureColumn("")},
		"dotted name":   {pqt.MeasureColumn("a.b")},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := pqt.NewSchema(columns...)
			require.ErrorIs(t, err, pqt.ErrSchema)
		})
	}
}

func TestPolicy_Validate(t *testing.T) {
	schema := v2Schema()

	p := pqt.NewPolicy(schema, pqt.CodecNone, pqt.CodecSnappy)
	require.NoError(t, p.Validate(schema))
	require.Equal(t, pqt.EncodingDelta, p.Column("rowid").Encoding)
	require.Equal(t, pqt.CodecSnappy, p.Column("timestep").Codec)
	require.Equal(t, pqt.EncodingPlain, p.Column("v02").Encoding)

	for name, cp := range map[string]struct {
		column string
		policy pqt.ColumnPolicy
	}{
		"unknown column":   {"v04", pqt.ColumnPolicy{}},
		"delta float":      {"v02", pqt.ColumnPolicy{Encoding: pqt.EncodingDelta}},
		"quantized key":    {"rowid", pqt.ColumnPolicy{Encoding: pqt.EncodingDelta, Quantize: 6}},
		"too many digits":  {"v03", pqt.ColumnPolicy{Quantize: 12}},
		"delta dictionary": {"rowid", pqt.ColumnPolicy{Encoding: pqt.EncodingDelta, Dictionary: true}},
		"unknown codec":    {"v03", pqt.ColumnPolicy{Codec: pqt.Codec(99)}},
	} {
		t.Run(name, func(t *testing.T) {
			p := pqt.NewPolicy(schema, pqt.CodecNone, pqt.CodecSnappy)
			p.Columns[cp.column] = cp.policy
			require.ErrorIs(t, p.Validate(schema), pqt.ErrPolicyColumn)
		})
	}
}

func TestParseCodec(t *testing.T) {
	for in, want := range map[string]pqt.Codec{
		"":             pqt.CodecDefault,
		"none":         pqt.CodecNone,
		"uncompressed": pqt.CodecNone,
		"Snappy":       pqt.CodecSnappy,
		"zstd":         pqt.CodecZstd,
		"gzip":         pqt.CodecGzip,
	} {
		got, err := pqt.ParseCodec(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := pqt.ParseCodec("lzo")
	require.Error(t, err)
}
