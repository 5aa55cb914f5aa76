package convert

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
)

// OpenBucket opens the bucket outputs are written to. A location with a
// scheme ("file:///out", "mem://") is opened as is; a plain path becomes a
// file bucket, created if missing and without attribute sidecar files.
func OpenBucket(ctx context.Context, location string) (*blob.Bucket, error) {
	url := location
	if !strings.Contains(location, "://") {
		abs, err := filepath.Abs(location)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", location, err)
		}
		url = "file://" + filepath.ToSlash(abs) + "?create_dir=true&metadata=skip&no_tmp_dir=true"
	}
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %s: %w", location, err)
	}
	return bucket, nil
}
