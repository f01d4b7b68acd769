package archive

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/mholt/archives"
	"github.com/spf13/afero"

	"github.com/oshokin/release-updater/internal/domain/update"
	"github.com/oshokin/release-updater/internal/logger"
)

// Archiver packs trees into zip files.
type Archiver struct {
	fs afero.Fs
}

// NewArchiver creates an Archiver.
func NewArchiver(fsys afero.Fs) *Archiver {
	return &Archiver{fs: fsys}
}

// Archive writes every directory and regular file under srcDir into a zip at
// outPath, nested below a single top-level directory named prefix.
// When only is non-nil, it limits the entries to those absolute paths.
// A partially written archive is removed.
func (a *Archiver) Archive(ctx context.Context, srcDir, prefix, outPath string, only []string) error {
	srcDir = filepath.Clean(srcDir)

	files, err := a.collect(srcDir, prefix, only)
	if err != nil {
		return err
	}

	out, err := a.fs.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fileMode)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", update.ErrStagingIO, outPath, err)
	}

	err = (archives.Zip{}).Archive(ctx, out, files)
	if cerr := out.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		if rerr := a.fs.Remove(outPath); rerr != nil {
			logger.WarnKV(ctx, "Could not remove partial archive", "path", outPath, "error", rerr)
		}

		return fmt.Errorf("%w: archive %s: %w", update.ErrStagingIO, srcDir, err)
	}

	logger.InfoKV(ctx, "Archive created", "path", outPath, "entries", len(files))

	return nil
}

func (a *Archiver) collect(srcDir, prefix string, only []string) ([]archives.FileInfo, error) {
	var allowed map[string]struct{}

	if only != nil {
		allowed = make(map[string]struct{}, len(only))
		for _, p := range only {
			allowed[filepath.Clean(p)] = struct{}{}
		}
	}

	var files []archives.FileInfo

	err := afero.Walk(a.fs, srcDir, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}

		if rel != "." && allowed != nil {
			if _, ok := allowed[p]; !ok {
				if info.IsDir() {
					return filepath.SkipDir
				}

				return nil
			}
		}

		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		name := path.Join(prefix, filepath.ToSlash(rel))
		if rel == "." {
			name = prefix
		}

		files = append(files, archives.FileInfo{
			FileInfo:      info,
			NameInArchive: name,
			Open: func() (fs.File, error) {
				return a.fs.Open(p)
			},
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: walk %s: %w", update.ErrStagingIO, srcDir, err)
	}

	return files, nil
}
