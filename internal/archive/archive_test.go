package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/release-updater/internal/domain/update"
)

// writeZip stores a zip built from entries at path. Names ending with "/" are directories.
func writeZip(t *testing.T, fsys afero.Fs, path string, entries ...[2]string) {
	t.Helper()

	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e[0])
		require.NoError(t, err)

		_, err = w.Write([]byte(e[1]))
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())
	require.NoError(t, afero.WriteFile(fsys, path, buf.Bytes(), 0o644))
}

func TestExtractor_ReportsTopLevelDirectory(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeZip(t, fsys, "/stage/shop.zip",
		[2]string{"acme-shop-1a2b3c/", ""},
		[2]string{"acme-shop-1a2b3c/index.php", "<?php"},
		[2]string{"acme-shop-1a2b3c/lib/util.php", "util"},
		[2]string{"acme-shop-1a2b3c/empty/", ""},
	)

	top, err := NewExtractor(fsys).Extract(context.Background(), "/stage/shop.zip", "/stage/extract")
	require.NoError(t, err)
	require.Equal(t, "acme-shop-1a2b3c", top)

	content, err := afero.ReadFile(fsys, "/stage/extract/acme-shop-1a2b3c/lib/util.php")
	require.NoError(t, err)
	require.Equal(t, "util", string(content))

	ok, err := afero.DirExists(fsys, "/stage/extract/acme-shop-1a2b3c/empty")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestExtractor_ImplicitDirectories(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeZip(t, fsys, "/a.zip", [2]string{"root/deep/file.txt", "x"})

	top, err := NewExtractor(fsys).Extract(context.Background(), "/a.zip", "/out")
	require.NoError(t, err)
	require.Equal(t, "root", top)
}

func TestExtractor_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entries [][2]string
		wantErr error
	}{
		{
			name:    "zip slip",
			entries: [][2]string{{"root/ok.txt", "ok"}, {"../evil.txt", "evil"}},
			wantErr: update.ErrArchive,
		},
		{
			name:    "nested zip slip",
			entries: [][2]string{{"root/../../evil.txt", "evil"}},
			wantErr: update.ErrArchive,
		},
		{
			name:    "several roots",
			entries: [][2]string{{"one/a.txt", "a"}, {"two/b.txt", "b"}},
			wantErr: update.ErrArchive,
		},
		{
			name:    "file at top level",
			entries: [][2]string{{"README", "read me"}},
			wantErr: update.ErrArchive,
		},
		{
			name:    "empty archive",
			entries: nil,
			wantErr: update.ErrArchive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fsys := afero.NewMemMapFs()
			writeZip(t, fsys, "/a.zip", tt.entries...)

			_, err := NewExtractor(fsys).Extract(context.Background(), "/a.zip", "/out/extract")
			require.ErrorIs(t, err, tt.wantErr)

			exists, err := afero.Exists(fsys, "/out/evil.txt")
			require.NoError(t, err)
			require.False(t, exists)
		})
	}
}

func TestExtractor_CorruptArchive(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/a.zip", []byte("definitely not a zip"), 0o644))

	_, err := NewExtractor(fsys).Extract(context.Background(), "/a.zip", "/out")
	require.ErrorIs(t, err, update.ErrArchive)
}

func TestExtractor_MissingArchive(t *testing.T) {
	t.Parallel()

	_, err := NewExtractor(afero.NewMemMapFs()).Extract(context.Background(), "/none.zip", "/out")
	require.ErrorIs(t, err, update.ErrStagingIO)
}

func TestCleanEntryName(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"root/":         "root",
		"root/./a/../b": "root/b",
		"root\\win\\f":  "root/win/f",
		"./":            "",
	} {
		got, err := cleanEntryName(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	for _, bad := range []string{"/etc/passwd", "../x", "a/../../x", ".."} {
		_, err := cleanEntryName(bad)
		require.ErrorIs(t, err, errUnsafePath, bad)
	}
}

func TestArchiver_PacksUnderPrefix(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/stage/shop/lib", 0o755))
	require.NoError(t, fsys.MkdirAll("/stage/shop/empty", 0o755))
	require.NoError(t, afero.WriteFile(fsys, "/stage/shop/index.php", []byte("index"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/stage/shop/lib/util.php", []byte("util"), 0o644))

	require.NoError(t, NewArchiver(fsys).Archive(context.Background(), "/stage/shop", "shop", "/stage/shop.zip", nil))

	data, err := afero.ReadFile(fsys, "/stage/shop.zip")
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}

	require.ElementsMatch(t, []string{"shop/", "shop/empty/", "shop/index.php", "shop/lib/", "shop/lib/util.php"}, names)

	// The result is a valid release archive.
	top, err := NewExtractor(fsys).Extract(context.Background(), "/stage/shop.zip", "/check")
	require.NoError(t, err)
	require.Equal(t, "shop", top)

	content, err := afero.ReadFile(fsys, "/check/shop/lib/util.php")
	require.NoError(t, err)
	require.Equal(t, "util", string(content))
}

func TestArchiver_OnlySelectedEntries(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/src/keep", 0o755))
	require.NoError(t, fsys.MkdirAll("/src/skip", 0o755))
	require.NoError(t, afero.WriteFile(fsys, "/src/keep/a", []byte("a"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/src/skip/b", []byte("b"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/src/.gitignore", []byte("*"), 0o644))

	only := []string{"/src/keep", "/src/keep/a"}
	require.NoError(t, NewArchiver(fsys).Archive(context.Background(), "/src", "app", "/out.zip", only))

	data, err := afero.ReadFile(fsys, "/out.zip")
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}

	require.ElementsMatch(t, []string{"app/", "app/keep/", "app/keep/a"}, names)
}

func TestArchiver_MissingSource(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()

	err := NewArchiver(fsys).Archive(context.Background(), "/missing", "app", "/out.zip", nil)
	require.ErrorIs(t, err, update.ErrStagingIO)

	exists, err := afero.Exists(fsys, "/out.zip")
	require.NoError(t, err)
	require.False(t, exists)
}
