package convert

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrBadKey is returned for a source whose name matches the suffix but does
// not carry a decimal key where the naming rule expects one.
var ErrBadKey = errors.New("invalid ordering key")

// maxKeyWidth keeps every key inside int32, the type of the timestep column.
const maxKeyWidth = 9

// NameRule describes how sources are recognised in a directory and where
// their ordering key sits in the file name.
type NameRule struct {
	// Suffix selects the sources, ".vti" for instance.
	Suffix string
	// KeyWidth is the number of digits of the key. Zero disables key
	// parsing: sources are then ordered by name and numbered from zero.
	KeyWidth int
	// KeyGap is the number of characters between the key and the suffix.
	KeyGap int
	// Symlinks accepts symbolic links next to regular files.
	Symlinks bool
	// Dirs selects directories instead of files, as for Zarr groups.
	Dirs bool
}

func (r NameRule) validate() error {
	if r.Suffix == "" {
		return errors.New("empty source suffix")
	}
	if r.KeyWidth < 0 || r.KeyWidth > maxKeyWidth {
		return fmt.Errorf("key width %d outside 0..%d", r.KeyWidth, maxKeyWidth)
	}
	if r.KeyGap < 0 {
		return fmt.Errorf("negative key gap %d", r.KeyGap)
	}
	return nil
}

// Key parses the ordering key of name.
func (r NameRule) Key(name string) (int, error) {
	end := len(name) - len(r.Suffix) - r.KeyGap
	start := end - r.KeyWidth
	if start < 0 {
		return 0, fmt.Errorf("%w: %q is too short for a %d digit key", ErrBadKey, name, r.KeyWidth)
	}
	digits := name[start:end]
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: %q in %q", ErrBadKey, digits, name)
		}
	}
	return strconv.Atoi(digits)
}

// Base strips the suffix off name.
func (r NameRule) Base(name string) string {
	return strings.TrimSuffix(name, r.Suffix)
}

// Stem strips the suffix, the gap, the key and one separator character
// off name: "plt.00010.vti" becomes "plt".
func (r NameRule) Stem(name string) string {
	end := len(name) - len(r.Suffix)
	if r.KeyWidth > 0 {
		end -= r.KeyGap + r.KeyWidth
	}
	if end <= 0 {
		return ""
	}
	stem := name[:end]
	if r.KeyWidth > 0 && strings.ContainsAny(stem[len(stem)-1:], "._-") {
		stem = stem[:len(stem)-1]
	}
	return stem
}

func (r NameRule) accepts(e fs.DirEntry) bool {
	if !strings.HasSuffix(e.Name(), r.Suffix) {
		return false
	}
	switch t := e.Type(); {
	case r.Dirs:
		return t.IsDir()
	case t.IsRegular():
		return true
	default:
		return r.Symlinks && t&fs.ModeSymlink != 0
	}
}

// WorkItem is one source to convert.
type WorkItem struct {
	Key  int
	Path string
	Name string
}

// Discover lists the sources of dir matching rule in ascending key order.
// When two sources share a key the one listed later wins; os.ReadDir lists
// by file name.
func Discover(dir string, rule NameRule) ([]WorkItem, error) {
	if err := rule.validate(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open dir %s: %w", dir, err)
	}

	byKey := make(map[int]WorkItem)
	next := 0
	for _, e := range entries {
		if !rule.accepts(e) {
			continue
		}
		item := WorkItem{Key: next, Path: filepath.Join(dir, e.Name()), Name: e.Name()}
		if rule.KeyWidth > 0 {
			if item.Key, err = rule.Key(e.Name()); err != nil {
				return nil, err
			}
		} else {
			next++
		}
		byKey[item.Key] = item
	}

	items := make([]WorkItem, 0, len(byKey))
	for _, item := range byKey {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items, nil
}
