package zarr

import (
	"reflect"
	"testing"
)

func TestChunkKey(t *testing.T) {
	tests := []struct {
		indices   []int
		separator string
		expected  string
	}{
		{[]int{1, 4}, ".", "1.4"},
		{[]int{0, 0, 0}, ".", "0.0.0"},
		{[]int{10}, ".", "10"},
		{[]int{1, 2}, "/", "1/2"}, // Test different separator
		{[]int{}, ".", "0"},
	}

	for _, tt := range tests {
		got := ChunkKey(tt.indices, tt.separator)
		if got != tt.expected {
			t.Errorf("ChunkKey(%v, %q) = %q, want %q", tt.indices, tt.separator, got, tt.expected)
		}
	}
}

func TestGridShape(t *testing.T) {
	tests := []struct {
		shape, chunks, expected []int
	}{
		{[]int{10, 2}, []int{5, 2}, []int{2, 1}},
		{[]int{7}, []int{3}, []int{3}},
		{[]int{4, 4}, []int{4, 4}, []int{1, 1}},
		{nil, nil, []int{}},
	}

	for _, tt := range tests {
		got := GridShape(tt.shape, tt.chunks)
		if !reflect.DeepEqual(got, tt.expected) {
			t.Errorf("GridShape(%v, %v) = %v, want %v", tt.shape, tt.chunks, got, tt.expected)
		}
	}
}

func TestStrides(t *testing.T) {
	got := strides([]int{2, 3, 4})
	if !reflect.DeepEqual(got, []int{12, 4, 1}) {
		t.Errorf("strides = %v", got)
	}
}
