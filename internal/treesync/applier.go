package treesync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"
	"github.com/spf13/afero"

	"github.com/oshokin/release-updater/internal/logger"
)

// DefaultDirMode is used for directories created in the install tree.
const DefaultDirMode os.FileMode = 0o755

// ErrNotRegular is returned when a release file would overwrite something that is not a regular file.
var ErrNotRegular = errors.New("target is not a regular file")

// Applier merges a release tree into an install tree.
type Applier struct {
	fs afero.Fs
	// executable is the running binary; it is swapped with go-update instead of rewritten in place.
	executable string
}

// ApplierOption configures an Applier.
type ApplierOption func(*Applier)

// WithExecutable marks path as the running executable. When the release
// carries a new version of it, the file is replaced atomically by rename,
// which also works on platforms that lock running binaries.
func WithExecutable(path string) ApplierOption {
	return func(a *Applier) {
		if path != "" {
			a.executable = filepath.Clean(path)
		}
	}
}

// NewApplier creates an Applier over the provided filesystem.
func NewApplier(fsys afero.Fs, opts ...ApplierOption) *Applier {
	a := &Applier{fs: fsys}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Apply creates or rewrites every ToApply path under sourceRoot from releaseRoot,
// then removes every ToDelete path from sourceRoot.
// The first failure aborts; changes made so far are kept.
func (a *Applier) Apply(ctx context.Context, releaseRoot, sourceRoot string, diff *DiffResult) error {
	releaseRoot = filepath.Clean(releaseRoot)
	sourceRoot = filepath.Clean(sourceRoot)

	for _, rel := range diff.ToApply {
		if err := a.applyOne(ctx, releaseRoot+rel, sourceRoot+rel); err != nil {
			return err
		}
	}

	for _, rel := range diff.ToDelete {
		path := sourceRoot + rel

		if err := RemoveTree(a.fs, path); err != nil {
			return fmt.Errorf("delete %s: %w", path, err)
		}

		logger.InfoKV(ctx, "Deleted", "path", path)
	}

	return nil
}

func (a *Applier) applyOne(ctx context.Context, releasePath, sourcePath string) error {
	releaseInfo, err := a.fs.Stat(releasePath)
	if err != nil {
		return fmt.Errorf("stat update content %s: %w", releasePath, err)
	}

	if releaseInfo.IsDir() {
		return a.ensureDir(ctx, sourcePath)
	}

	if !releaseInfo.Mode().IsRegular() {
		return nil
	}

	sourceInfo, err := a.fs.Stat(sourcePath)

	switch {
	case err == nil && sourceInfo.Mode().IsRegular():
		return a.overwrite(ctx, releasePath, sourcePath, sourceInfo)
	case err == nil:
		return fmt.Errorf("overwrite %s: %w", sourcePath, ErrNotRegular)
	case errors.Is(err, os.ErrNotExist):
		return a.copyFile(ctx, releasePath, sourcePath, releaseInfo.Mode())
	default:
		return fmt.Errorf("stat %s: %w", sourcePath, err)
	}
}

func (a *Applier) ensureDir(ctx context.Context, path string) error {
	if info, err := a.fs.Stat(path); err == nil && info.IsDir() {
		return nil
	}

	if err := a.fs.MkdirAll(path, DefaultDirMode); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}

	logger.InfoKV(ctx, "Folder created", "path", path)

	return nil
}

// overwrite replaces the content of an existing file and keeps its mode.
func (a *Applier) overwrite(ctx context.Context, releasePath, sourcePath string, sourceInfo os.FileInfo) error {
	content, err := afero.ReadFile(a.fs, releasePath)
	if err != nil {
		return fmt.Errorf("read update content %s: %w", releasePath, err)
	}

	mode := sourceInfo.Mode()

	if a.isExecutable(sourcePath, sourceInfo) {
		return a.replaceExecutable(ctx, content, sourcePath, mode)
	}

	if err = afero.WriteFile(a.fs, sourcePath, content, mode.Perm()); err != nil {
		return fmt.Errorf("write update content %s: %w", sourcePath, err)
	}

	logger.DebugKV(ctx, "Content written", "bytes", len(content), "from", releasePath, "to", sourcePath)

	return nil
}

// isExecutable compares file identity as well as the path, because the install
// root may be reached through a symlink while the executable path is resolved.
func (a *Applier) isExecutable(path string, info os.FileInfo) bool {
	if a.executable == "" {
		return false
	}

	if path == a.executable {
		return true
	}

	exe, err := a.fs.Stat(a.executable)
	if err != nil {
		return false
	}

	return os.SameFile(exe, info)
}

func (a *Applier) replaceExecutable(ctx context.Context, content []byte, path string, mode os.FileMode) error {
	options := goupdate.Options{
		TargetPath: path,
		TargetMode: mode.Perm(),
	}

	if err := goupdate.Apply(bytes.NewReader(content), options); err != nil {
		if rerr := goupdate.RollbackError(err); rerr != nil {
			return fmt.Errorf("replace executable %s: %w (rollback failed: %w)", path, err, rerr)
		}

		return fmt.Errorf("replace executable %s: %w", path, err)
	}

	logger.InfoKV(ctx, "Executable replaced", "path", path, "bytes", len(content))

	return nil
}

func (a *Applier) copyFile(ctx context.Context, releasePath, sourcePath string, mode os.FileMode) error {
	src, err := a.fs.Open(releasePath)
	if err != nil {
		return fmt.Errorf("open update content %s: %w", releasePath, err)
	}

	defer func() {
		_ = src.Close()
	}()

	dst, err := a.fs.OpenFile(sourcePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("copy update content %s: %w", sourcePath, err)
	}

	if _, err = io.Copy(dst, src); err != nil {
		_ = dst.Close()

		return fmt.Errorf("copy update content %s: %w", sourcePath, err)
	}

	if err = dst.Close(); err != nil {
		return fmt.Errorf("copy update content %s: %w", sourcePath, err)
	}

	logger.DebugKV(ctx, "File copied", "from", releasePath, "to", sourcePath)

	return nil
}
