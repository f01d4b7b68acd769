package treesync

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// RemoveTree deletes path. A directory is emptied depth-first, every child
// before the directory itself. Symlinks are removed as links and never
// followed. A path that does not exist is left alone and reported as success,
// so a nil error means the path is gone.
func RemoveTree(fsys afero.Fs, path string) error {
	info, err := lstat(fsys, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("stat %s: %w", path, err)
	}

	if info.IsDir() {
		children, err := afero.ReadDir(fsys, path)
		if err != nil {
			return fmt.Errorf("read directory %s: %w", path, err)
		}

		for _, child := range children {
			if err = RemoveTree(fsys, filepath.Join(path, child.Name())); err != nil {
				return err
			}
		}
	}

	if err = fsys.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}

	return nil
}

// lstat avoids following symlinks when the filesystem can tell them apart.
func lstat(fsys afero.Fs, path string) (os.FileInfo, error) {
	if l, ok := fsys.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)

		return info, err
	}

	return fsys.Stat(path)
}
