package treesync

import (
	"path/filepath"
	"slices"
	"strings"
)

// DiffResult holds root-relative paths. A relative path starts with a separator.
type DiffResult struct {
	// ToApply lists every release path in mapping order, parents first.
	ToApply []string
	// ToDelete lists source paths missing from the release. When a directory
	// is listed, none of its descendants are: removing it removes them.
	// A directory holding excluded entries is never listed; its obsolete
	// descendants are listed instead.
	ToDelete []string
}

// Diff compares the mapped source tree with the mapped release tree.
// Roots are stripped byte-for-byte, so each must be an exact prefix of its entries.
func Diff(sourceRoot string, source PathList, releaseRoot string, release PathList) *DiffResult {
	sourceRoot = filepath.Clean(sourceRoot)
	releaseRoot = filepath.Clean(releaseRoot)

	result := &DiffResult{
		ToApply: make([]string, 0, len(release)),
	}

	inRelease := make(map[string]struct{}, len(release))

	for _, e := range release {
		rel := relative(releaseRoot, e.Path)
		result.ToApply = append(result.ToApply, rel)
		inRelease[rel] = struct{}{}
	}

	// relative path -> removable as a whole
	obsolete := make(map[string]bool)

	for _, e := range source {
		rel := relative(sourceRoot, e.Path)
		if _, ok := inRelease[rel]; !ok {
			obsolete[rel] = !e.HasExcluded
		}
	}

	for rel, removable := range obsolete {
		if !removable || hasObsoleteAncestor(rel, obsolete) {
			continue
		}

		result.ToDelete = append(result.ToDelete, rel)
	}

	slices.Sort(result.ToDelete)

	return result
}

// hasObsoleteAncestor reports whether a parent directory of rel is itself removed as a whole.
func hasObsoleteAncestor(rel string, obsolete map[string]bool) bool {
	for parent := filepath.Dir(rel); parent != separator && parent != "."; parent = filepath.Dir(parent) {
		if obsolete[parent] {
			return true
		}
	}

	return false
}

func relative(root, path string) string {
	if root == separator {
		return path
	}

	return strings.TrimPrefix(path, root)
}
