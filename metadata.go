package xrage

import (
	"fmt"
	"strconv"
)

// KeyCycleIndex names the field-data array holding the simulation cycle.
const KeyCycleIndex = "cycle_index"

// ExtractMetadata reads the geometry and cycle index of g as the string
// key/value pairs attached to an output file: extent_0..5, origin_0..2,
// spacing_0..2 and cycle_index. Reals keep six decimals.
func ExtractMetadata(g Grid) (map[string]string, error) {
	cycle, err := g.FieldInt(KeyCycleIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", KeyCycleIndex, err)
	}

	kv := make(map[string]string, 13)
	for i, e := range g.Extent() {
		kv["extent_"+strconv.Itoa(i)] = strconv.Itoa(e)
	}
	for i, o := range g.Origin() {
		kv["origin_"+strconv.Itoa(i)] = formatReal(o)
	}
	for i, s := range g.Spacing() {
		kv["spacing_"+strconv.Itoa(i)] = formatReal(s)
	}
	kv[KeyCycleIndex] = strconv.FormatInt(cycle, 10)
	return kv, nil
}

func formatReal(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
