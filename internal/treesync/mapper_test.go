package treesync

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// TestMapper_ListsDirectoriesBeforeDescendants verifies the walk order and that the root is omitted.
func TestMapper_ListsDirectoriesBeforeDescendants(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeTree(t, fsys, "/app", map[string]string{
		"a/file1":   "one",
		"a/b/file2": "two",
		"empty/":    "",
		"top.txt":   "top",
	})

	list, err := NewMapper(fsys).Map("/app/", ExclusionRule{})
	require.NoError(t, err)

	index := make(map[string]int, len(list))
	for i, e := range list {
		require.False(t, strings.HasSuffix(e.Path, "/"), e.Path)
		index[e.Path] = i
	}

	require.NotContains(t, index, "/app")
	require.Len(t, list, 6)
	require.Less(t, index["/app/a"], index["/app/a/file1"])
	require.Less(t, index["/app/a"], index["/app/a/b"])
	require.Less(t, index["/app/a/b"], index["/app/a/b/file2"])
	require.True(t, list[index["/app/empty"]].IsDir)
	require.False(t, list[index["/app/top.txt"]].IsDir)
}

// TestMapper_PathExclusions verifies excluded subtrees are never visited (scenario E).
func TestMapper_PathExclusions(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeTree(t, fsys, "/app", map[string]string{
		"vendor/lib.ext":    "lib",
		"vendor2/keep.ext":  "prefix sibling survives",
		"src/main.ext":      "main",
		"src/cache/tmp.bin": "tmp",
	})

	rule := ExclusionRule{Paths: []string{"/app/vendor", "/app/src/cache/"}}

	got := relativeSet(t, fsys, "/app", rule)
	require.ElementsMatch(t, []string{
		"/vendor2", "/vendor2/keep.ext",
		"/src", "/src/main.ext",
	}, got)
}

// TestMapper_FilenameExclusionsSkipFilesOnly checks that filename rules never drop directories.
func TestMapper_FilenameExclusionsSkipFilesOnly(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeTree(t, fsys, "/rel", map[string]string{
		".gitkeep":          "",
		"docs/.gitkeep":     "",
		"docs/readme.md":    "read me",
		".gitignore/":       "",
		".gitignore/inside": "x",
	})

	got := relativeSet(t, fsys, "/rel", ExclusionRule{Filenames: []string{".gitkeep", ".gitignore"}})
	require.ElementsMatch(t, []string{
		"/docs", "/docs/readme.md",
		"/.gitignore", "/.gitignore/inside",
	}, got)
}

// TestMapper_MaxDepth verifies the depth guard stops runaway walks.
func TestMapper_MaxDepth(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeTree(t, fsys, "/deep", map[string]string{"1/2/3/4/file": "x"})

	_, err := NewMapper(fsys, WithMaxDepth(2)).Map("/deep", ExclusionRule{})
	require.ErrorIs(t, err, ErrTreeTooDeep)

	list, err := NewMapper(fsys, WithMaxDepth(4)).Map("/deep", ExclusionRule{})
	require.NoError(t, err)
	require.Len(t, list, 5)
}

// TestMapper_MissingRoot returns an error instead of an empty list.
func TestMapper_MissingRoot(t *testing.T) {
	t.Parallel()

	_, err := NewMapper(afero.NewMemMapFs()).Map("/nowhere", ExclusionRule{})
	require.Error(t, err)
}

// TestMapper_SymlinkCycleTerminates ensures a link cycle ends in an error rather than looping forever.
func TestMapper_SymlinkCycleTerminates(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("symlinks need elevated rights on windows")
	}

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(root, "a"), filepath.Join(root, "a", "loop")))

	_, err := NewMapper(afero.NewOsFs()).Map(root, ExclusionRule{})
	require.Error(t, err)
}

// TestMapper_BrokenSymlinkContributesNothing verifies dangling links are skipped silently.
func TestMapper_BrokenSymlinkContributesNothing(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("symlinks need elevated rights on windows")
	}

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "real"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(root, "gone"), filepath.Join(root, "dangling")))

	list, err := NewMapper(afero.NewOsFs()).Map(root, ExclusionRule{})
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(root, "real")}, list.Paths())
}

// TestMapper_FlagsDirectoriesHoldingExcludedEntries marks every ancestor of an excluded entry.
func TestMapper_FlagsDirectoriesHoldingExcludedEntries(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeTree(t, fsys, "/app", map[string]string{
		"config/local.php":     "site",
		"config/app.php":       "app",
		"data/cache/.env":      "SECRET=1",
		"data/cache/page.html": "page",
		"src/main.php":         "main",
	})

	list, err := NewMapper(fsys).Map("/app", ExclusionRule{
		Paths:     []string{"/app/config/local.php"},
		Filenames: []string{".env"},
	})
	require.NoError(t, err)

	flagged := make(map[string]bool, len(list))
	for _, e := range list {
		flagged[e.Path] = e.HasExcluded
	}

	require.Equal(t, map[string]bool{
		"/app/config":               true,
		"/app/config/app.php":       false,
		"/app/data":                 true,
		"/app/data/cache":           true,
		"/app/data/cache/page.html": false,
		"/app/src":                  false,
		"/app/src/main.php":         false,
	}, flagged)
}
