package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
	"github.com/spf13/afero"

	"github.com/oshokin/release-updater/internal/domain/update"
	"github.com/oshokin/release-updater/internal/logger"
)

const (
	dirMode  os.FileMode = 0o755
	fileMode os.FileMode = 0o644
)

var (
	errUnsafePath    = errors.New("entry escapes the destination")
	errNotSingleRoot = errors.New("archive must contain exactly one top-level directory")
)

// Extractor unpacks zip archives on an afero filesystem.
type Extractor struct {
	fs afero.Fs
}

// NewExtractor creates an Extractor.
func NewExtractor(fsys afero.Fs) *Extractor {
	return &Extractor{fs: fsys}
}

// Extract unpacks archivePath into destDir and returns the name of the single
// top-level directory it produced. Link entries are skipped. Every failure
// wraps update.ErrArchive, except destination write failures which wrap
// update.ErrStagingIO.
func (e *Extractor) Extract(ctx context.Context, archivePath, destDir string) (string, error) {
	destDir = filepath.Clean(destDir)

	src, err := e.fs.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %w", update.ErrStagingIO, archivePath, err)
	}

	defer func() {
		_ = src.Close()
	}()

	if err = e.fs.MkdirAll(destDir, dirMode); err != nil {
		return "", fmt.Errorf("%w: create %s: %w", update.ErrStagingIO, destDir, err)
	}

	tops := make(map[string]struct{}, 1)

	handler := func(ctx context.Context, info archives.FileInfo) error {
		name, err := cleanEntryName(info.NameInArchive)
		if err != nil {
			return err
		}

		if name == "" {
			return nil
		}

		target := filepath.Join(destDir, filepath.FromSlash(name))
		if !strings.HasPrefix(target, destDir+string(os.PathSeparator)) {
			return fmt.Errorf("%w: %s", errUnsafePath, info.NameInArchive)
		}

		tops[strings.SplitN(name, "/", 2)[0]] = struct{}{}

		switch {
		case info.IsDir():
			if err = e.fs.MkdirAll(target, dirMode); err != nil {
				return stagingErr(target, err)
			}
		case info.LinkTarget != "" || !info.Mode().IsRegular():
			logger.DebugKV(ctx, "Skipping non-regular archive entry", "entry", info.NameInArchive)
		default:
			return e.writeEntry(info, target)
		}

		return nil
	}

	if err = (archives.Zip{}).Extract(ctx, src, handler); err != nil {
		if errors.Is(err, update.ErrStagingIO) {
			return "", err
		}

		return "", fmt.Errorf("%w: extract %s: %w", update.ErrArchive, archivePath, err)
	}

	if len(tops) != 1 {
		return "", fmt.Errorf("%w: %s: %w (found %d)", update.ErrArchive, archivePath, errNotSingleRoot, len(tops))
	}

	var top string
	for name := range tops {
		top = name
	}

	if ok, _ := afero.DirExists(e.fs, filepath.Join(destDir, top)); !ok {
		return "", fmt.Errorf("%w: %s: %w (%s is a file)", update.ErrArchive, archivePath, errNotSingleRoot, top)
	}

	logger.InfoKV(ctx, "Archive extracted", "archive", archivePath, "top", top)

	return top, nil
}

func (e *Extractor) writeEntry(info archives.FileInfo, target string) error {
	if err := e.fs.MkdirAll(filepath.Dir(target), dirMode); err != nil {
		return stagingErr(target, err)
	}

	in, err := info.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", info.NameInArchive, err)
	}

	defer func() {
		_ = in.Close()
	}()

	mode := info.Mode().Perm()
	if mode == 0 {
		mode = fileMode
	}

	out, err := e.fs.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return stagingErr(target, err)
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()

		return fmt.Errorf("write entry %s: %w", info.NameInArchive, err)
	}

	if err = out.Close(); err != nil {
		return stagingErr(target, err)
	}

	return nil
}

// cleanEntryName normalizes an archive entry name to a relative slash path.
// An empty result means the entry names the archive root.
func cleanEntryName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, "/") || path.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: %s", errUnsafePath, name)
	}

	cleaned := path.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %s", errUnsafePath, name)
	}

	if cleaned == "." {
		return "", nil
	}

	return cleaned, nil
}

func stagingErr(path string, err error) error {
	return fmt.Errorf("%w: write %s: %w", update.ErrStagingIO, path, err)
}
