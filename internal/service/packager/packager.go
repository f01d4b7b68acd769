package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/oshokin/release-updater/internal/archive"
	"github.com/oshokin/release-updater/internal/lock"
	"github.com/oshokin/release-updater/internal/logger"
	"github.com/oshokin/release-updater/internal/treesync"
)

// Options contains inputs for the packager entry point.
type Options struct {
	// Dir is the tree to pack.
	Dir string
	// Output is the zip file to write. It must live outside Dir.
	Output string
	// Name is the top-level folder inside the zip. Defaults to the base name of Dir.
	Name string
	// Exclude lists extra paths relative to Dir that are left out.
	Exclude []string
}

// Result describes a written artifact.
type Result struct {
	Output  string
	Name    string
	Entries int
}

var (
	errNoDir         = errors.New("source directory is required")
	errNoOutput      = errors.New("output file is required")
	errOutputInside  = errors.New("output file must be outside the source directory")
	errNotDirectory  = errors.New("source is not a directory")
	errBadFolderName = errors.New("folder name must be a single path element")
)

//nolint:gochecknoglobals // Read-only lists.
var (
	defaultSkipPaths  = []string{".git", "update", lock.DefaultMarkerName}
	defaultSkipByName = []string{".DS_Store"}
)

// Run packs opts.Dir on the local filesystem.
func Run(ctx context.Context, opts *Options) (*Result, error) {
	ctx = logger.WithName(ctx, "release-packager")

	return Pack(ctx, afero.NewOsFs(), opts)
}

// Pack writes the tree under opts.Dir into opts.Output. Version control data,
// the updater staging folder and its lock marker never end up in the archive.
func Pack(ctx context.Context, fsys afero.Fs, opts *Options) (*Result, error) {
	dir, output, name, err := resolve(opts)
	if err != nil {
		return nil, err
	}

	info, err := fsys.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", dir, errNotDirectory)
	}

	rule := treesync.ExclusionRule{
		Paths: lo.Map(slices.Concat(defaultSkipPaths, opts.Exclude), func(p string, _ int) string {
			return filepath.Join(dir, p)
		}),
		Filenames: defaultSkipByName,
	}

	list, err := treesync.NewMapper(fsys).Map(dir, rule)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", dir, err)
	}

	logger.InfoKV(ctx, "Packing release", "dir", dir, "output", output, "folder", name, "entries", len(list))

	if err = fsys.MkdirAll(filepath.Dir(output), os.ModePerm); err != nil {
		return nil, fmt.Errorf("create %s: %w", filepath.Dir(output), err)
	}

	if err = archive.NewArchiver(fsys).Archive(ctx, dir, name, output, list.Paths()); err != nil {
		return nil, err
	}

	return &Result{Output: output, Name: name, Entries: len(list)}, nil
}

func resolve(opts *Options) (dir, output, name string, err error) {
	if opts == nil || strings.TrimSpace(opts.Dir) == "" {
		return "", "", "", errNoDir
	}

	if strings.TrimSpace(opts.Output) == "" {
		return "", "", "", errNoOutput
	}

	if dir, err = filepath.Abs(opts.Dir); err != nil {
		return "", "", "", fmt.Errorf("resolve %s: %w", opts.Dir, err)
	}

	if output, err = filepath.Abs(opts.Output); err != nil {
		return "", "", "", fmt.Errorf("resolve %s: %w", opts.Output, err)
	}

	if rel, rerr := filepath.Rel(dir, output); rerr == nil && !strings.HasPrefix(rel, "..") {
		return "", "", "", errOutputInside
	}

	name = strings.TrimSpace(opts.Name)
	if name == "" {
		name = filepath.Base(dir)
	}

	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", "", "", fmt.Errorf("%q: %w", name, errBadFolderName)
	}

	return dir, output, name, nil
}
