// Package xrage converts xRAGE mesh snapshots into Parquet row streams.
//
// A Snapshot exposes the scalar fields of one simulation dump. A Stream walks
// a selected subset of those fields record by record, and ExtractMetadata
// turns the grid geometry of a snapshot into Parquet key/value metadata.
package xrage

import (
	"context"
	"errors"
)

var (
	// ErrFieldNotFound is returned when a requested field is absent from a snapshot.
	ErrFieldNotFound = errors.New("field not found")

	// ErrAttributeNotFound is returned when a field-data attribute is absent.
	ErrAttributeNotFound = errors.New("attribute not found")
)

// Snapshot is one mesh snapshot opened for reading.
type Snapshot interface {
	// NumRecords is the number of points or cells carrying field values.
	NumRecords() int

	// Field returns the values of a scalar float32 field. The returned slice
	// must not be modified by the caller.
	Field(ctx context.Context, name string) ([]float32, error)

	Close() error
}

// Grid is a snapshot of a structured grid. Its geometry and field-data
// attributes are the source of the output file metadata.
type Grid interface {
	Snapshot

	Extent() [6]int
	Origin() [3]float64
	Spacing() [3]float64

	// FieldInt returns the first value of an integer field-data array.
	FieldInt(name string) (int64, error)
}
