package xrage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lanl-asteroid-impact/xrage-format"
)

func TestExtractMetadata(t *testing.T) {
	g := &fakeSnapshot{
		ints:   map[string]int64{"cycle_index": 42},
		extent: [6]int{0, 99, 0, 49, 0, 0},
		origin: [3]float64{0.0, 1.5, -2.0},
		space:  [3]float64{0.25, 0.25, 1},
	}

	kv, err := xrage.ExtractMetadata(g)
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"extent_0":    "0",
		"extent_1":    "99",
		"extent_2":    "0",
		"extent_3":    "49",
		"extent_4":    "0",
		"extent_5":    "0",
		"origin_0":    "0.000000",
		"origin_1":    "1.500000",
		"origin_2":    "-2.000000",
		"spacing_0":   "0.250000",
		"spacing_1":   "0.250000",
		"spacing_2":   "1.000000",
		"cycle_index": "42",
	}, kv)
}

func TestExtractMetadata_MissingCycleIndex(t *testing.T) {
	g := &fakeSnapshot{ints: map[string]int64{}}
	_, err := xrage.ExtractMetadata(g)
	require.ErrorIs(t, err, xrage.ErrAttributeNotFound)
}
