package zarr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/lanl-asteroid-impact/xrage-format"
)

// Snapshot is a mesh snapshot stored as a Zarr V2 group: one float32 array
// per field and a .zattrs document carrying extent, origin, spacing and the
// cycle index.
type Snapshot struct {
	bucket *blob.Bucket
	owned  bool
	attrs  *GroupAttrs
	arrays map[string]*Reader
	n      int
}

var _ xrage.Grid = (*Snapshot)(nil)

// Open opens the snapshot group at a bucket URL such as "file:///data/plt.00010.zarr".
func Open(ctx context.Context, url string) (*Snapshot, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket: %w", err)
	}
	s, err := OpenBucket(ctx, bucket)
	if err != nil {
		bucket.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// OpenBucket reads a snapshot group rooted at bucket. Close does not close a
// bucket passed in by the caller.
func OpenBucket(ctx context.Context, bucket *blob.Bucket) (*Snapshot, error) {
	s := &Snapshot{bucket: bucket, arrays: make(map[string]*Reader), attrs: &GroupAttrs{}}

	reader, err := bucket.NewReader(ctx, ".zattrs", nil)
	switch {
	case err == nil:
		defer reader.Close()
		if s.attrs, err = LoadGroupAttrs(reader); err != nil {
			return nil, err
		}
	case gcerrors.Code(err) != gcerrors.NotFound:
		return nil, fmt.Errorf("failed to open .zattrs: %w", err)
	}

	iter := bucket.List(&blob.ListOptions{Delimiter: "/"})
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list arrays: %w", err)
		}
		if !obj.IsDir {
			continue
		}
		name := strings.TrimSuffix(obj.Key, "/")
		ok, err := bucket.Exists(ctx, name+"/.zarray")
		if err != nil {
			return nil, fmt.Errorf("failed to stat array %s: %w", name, err)
		}
		if !ok {
			continue
		}
		r, err := NewReader(ctx, bucket, name)
		if err != nil {
			return nil, fmt.Errorf("failed to open array %s: %w", name, err)
		}
		s.arrays[name] = r
	}
	if s.n, err = s.records(); err != nil {
		return nil, err
	}
	return s, nil
}

// records is the point count of the extent when the group has one.
// Otherwise every array must hold the same number of elements.
func (s *Snapshot) records() (int, error) {
	if e := s.attrs.Extent; len(e) == 6 {
		n := 1
		for i := 0; i < 3; i++ {
			d := e[2*i+1] - e[2*i] + 1
			if d < 1 {
				return 0, fmt.Errorf("invalid extent %v", e)
			}
			n *= d
		}
		return n, nil
	}
	n := -1
	for name, r := range s.arrays {
		switch {
		case n < 0:
			n = r.Len()
		case r.Len() != n:
			return 0, fmt.Errorf("array %s has %d elements, others have %d and the group has no extent", name, r.Len(), n)
		}
	}
	return max(n, 0), nil
}

func (s *Snapshot) NumRecords() int { return s.n }

func (s *Snapshot) Field(ctx context.Context, name string) ([]float32, error) {
	r, ok := s.arrays[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", xrage.ErrFieldNotFound, name)
	}
	return r.Float32s(ctx)
}

func (s *Snapshot) Extent() [6]int {
	var e [6]int
	copy(e[:], s.attrs.Extent)
	return e
}

func (s *Snapshot) Origin() [3]float64 {
	var o [3]float64
	copy(o[:], s.attrs.Origin)
	return o
}

func (s *Snapshot) Spacing() [3]float64 {
	sp := [3]float64{1, 1, 1}
	if s.attrs.Spacing != nil {
		copy(sp[:], s.attrs.Spacing)
	}
	return sp
}

func (s *Snapshot) FieldInt(name string) (int64, error) {
	v, ok, err := s.attrs.Int(name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s", xrage.ErrAttributeNotFound, name)
	}
	return v, nil
}

// Close closes the reader.
func (s *Snapshot) Close() error {
	if !s.owned {
		return nil
	}
	return s.bucket.Close()
}
