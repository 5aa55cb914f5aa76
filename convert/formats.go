package convert

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/lanl-asteroid-impact/xrage-format"
	"github.com/lanl-asteroid-impact/xrage-format/vtk"
	"github.com/lanl-asteroid-impact/xrage-format/zarr"
)

// Format is a source format the converter reads.
type Format struct {
	Name   string
	Suffix string
	// Dirs is set when a source is a directory rather than a file.
	Dirs bool
	// Open opens the source at path. It is nil for Parquet sources, which
	// are only repacked.
	Open func(ctx context.Context, path string) (xrage.Snapshot, error)
}

var formats = map[string]Format{
	"vti":     {Name: "vti", Suffix: ".vti", Open: openVTK},
	"vtu":     {Name: "vtu", Suffix: ".vtu", Open: openVTK},
	"zarr":    {Name: "zarr", Suffix: ".zarr", Dirs: true, Open: openZarr},
	"parquet": {Name: "parquet", Suffix: ".parquet"},
}

// LookupFormat returns the registered format called name.
func LookupFormat(name string) (Format, error) {
	f, ok := formats[name]
	if !ok {
		return Format{}, fmt.Errorf("unknown format %q, want one of %v", name, FormatNames())
	}
	return f, nil
}

// FormatNames returns the registered format names in order.
func FormatNames() []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func openVTK(_ context.Context, path string) (xrage.Snapshot, error) {
	return vtk.Open(path)
}

func openZarr(ctx context.Context, path string) (xrage.Snapshot, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return zarr.Open(ctx, "file://"+filepath.ToSlash(abs))
}
