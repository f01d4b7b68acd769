package treesync

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// writeTree creates the given entries under root. Keys ending with "/" are directories,
// the rest are files holding the mapped content.
func writeTree(t *testing.T, fsys afero.Fs, root string, entries map[string]string) {
	t.Helper()

	require.NoError(t, fsys.MkdirAll(root, 0o755))

	for rel, content := range entries {
		path := filepath.Join(root, filepath.FromSlash(rel))

		if strings.HasSuffix(rel, "/") {
			require.NoError(t, fsys.MkdirAll(path, 0o755))

			continue
		}

		require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0o644))
	}
}

// relativeSet maps a tree and returns its root-relative paths.
func relativeSet(t *testing.T, fsys afero.Fs, root string, rule ExclusionRule) []string {
	t.Helper()

	list, err := NewMapper(fsys).Map(root, rule)
	require.NoError(t, err)

	paths := make([]string, 0, len(list))
	for _, p := range list.Paths() {
		paths = append(paths, filepath.ToSlash(strings.TrimPrefix(p, root)))
	}

	return paths
}

// recordingFs remembers the order of Remove calls.
type recordingFs struct {
	afero.Fs

	removed []string
}

func (r *recordingFs) Remove(name string) error {
	r.removed = append(r.removed, name)

	return r.Fs.Remove(name)
}
