package treesync

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"
)

// DefaultMaxDepth bounds how deep Map descends. Symlinks are followed, so a
// link cycle would otherwise recurse until the OS refuses to resolve the path.
const DefaultMaxDepth = 128

// ErrTreeTooDeep is returned when a walk exceeds the configured depth.
var ErrTreeTooDeep = errors.New("directory tree exceeds maximum depth")

// separator is the trailing separator used to normalize prefix comparisons.
const separator = string(filepath.Separator)

// Entry is one path produced by a tree walk.
type Entry struct {
	// Path is absolute and never ends with a separator.
	Path string
	// IsDir reports whether the path was a directory when it was mapped.
	IsDir bool
	// HasExcluded marks a directory with an excluded entry somewhere below it.
	// Such a directory must never be removed as a whole.
	HasExcluded bool
}

// PathList is the ordered result of a walk. A directory always precedes its
// descendants; siblings come in directory-listing order.
type PathList []Entry

// Paths returns the bare paths of the list.
func (l PathList) Paths() []string {
	return lo.Map(l, func(e Entry, _ int) string {
		return e.Path
	})
}

// ExclusionRule tells Map what to skip.
type ExclusionRule struct {
	// Paths are absolute files or directories whose whole subtree is skipped.
	Paths []string
	// Filenames are base names of files skipped wherever they appear.
	// They never apply to directories.
	Filenames []string
}

// Mapper enumerates directory trees.
type Mapper struct {
	fs       afero.Fs
	maxDepth int
}

// MapperOption configures a Mapper.
type MapperOption func(*Mapper)

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(depth int) MapperOption {
	return func(m *Mapper) {
		if depth > 0 {
			m.maxDepth = depth
		}
	}
}

// NewMapper creates a Mapper over the provided filesystem.
func NewMapper(fsys afero.Fs, opts ...MapperOption) *Mapper {
	m := &Mapper{
		fs:       fsys,
		maxDepth: DefaultMaxDepth,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Map walks root depth-first and returns every directory and file below it.
// The root itself is not part of the result.
func (m *Mapper) Map(root string, rule ExclusionRule) (PathList, error) {
	w := &walk{
		mapper: m,
		excludedPaths: lo.Uniq(lo.Map(rule.Paths, func(p string, _ int) string {
			return withSeparator(filepath.Clean(p))
		})),
		excludedNames: lo.Keyify(rule.Filenames),
	}

	if _, err := w.dir(filepath.Clean(root), 0); err != nil {
		return nil, err
	}

	return w.list, nil
}

// walk holds the state of one Map call.
type walk struct {
	mapper        *Mapper
	excludedPaths []string
	excludedNames map[string]struct{}
	list          PathList
}

// dir maps the children of path and reports whether any entry below it was excluded.
func (w *walk) dir(path string, depth int) (bool, error) {
	if depth > w.mapper.maxDepth {
		return false, fmt.Errorf("%s: %w", path, ErrTreeTooDeep)
	}

	children, err := afero.ReadDir(w.mapper.fs, path)
	if err != nil {
		return false, fmt.Errorf("read directory %s: %w", path, err)
	}

	var hasExcluded bool

	for _, child := range children {
		childPath := filepath.Join(path, child.Name())
		if w.isExcluded(childPath) {
			hasExcluded = true

			continue
		}

		// Stat follows symlinks, so a link is mapped as whatever it points to.
		info, err := w.mapper.fs.Stat(childPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}

			return false, fmt.Errorf("stat %s: %w", childPath, err)
		}

		switch {
		case info.IsDir():
			idx := len(w.list)
			w.list = append(w.list, Entry{Path: childPath, IsDir: true})

			below, err := w.dir(childPath, depth+1)
			if err != nil {
				return false, err
			}

			if below {
				w.list[idx].HasExcluded = true
				hasExcluded = true
			}
		case info.Mode().IsRegular():
			if _, skip := w.excludedNames[child.Name()]; skip {
				hasExcluded = true

				continue
			}

			w.list = append(w.list, Entry{Path: childPath})
		}
	}

	return hasExcluded, nil
}

func (w *walk) isExcluded(path string) bool {
	if len(w.excludedPaths) == 0 {
		return false
	}

	normalized := withSeparator(path)

	return lo.SomeBy(w.excludedPaths, func(excluded string) bool {
		return strings.HasPrefix(normalized, excluded)
	})
}

func withSeparator(path string) string {
	if strings.HasSuffix(path, separator) {
		return path
	}

	return path + separator
}
