package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	goversion "github.com/hashicorp/go-version"
	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/oshokin/release-updater/internal/config"
	"github.com/oshokin/release-updater/internal/domain/update"
	"github.com/oshokin/release-updater/internal/lock"
	"github.com/oshokin/release-updater/internal/logger"
	"github.com/oshokin/release-updater/internal/release"
	"github.com/oshokin/release-updater/internal/treesync"
)

// Release files that never reach the install tree.
var defaultReleaseFilenames = []string{".gitignore", ".gitkeep"} //nolint:gochecknoglobals // Read-only list.

// Result is the outcome of one run.
type Result struct {
	// RunID tags every log line of the run.
	RunID string
	// Status is the final run status.
	Status update.Status
	// Tag is the latest release tag, when the registry was reached.
	Tag string
	// CleanupFailed is set when staging cleanup failed and the cleanup policy kept the status.
	CleanupFailed bool
	// Err is the failure behind an ERROR or BUSY status.
	Err error
	// LogFile is the flushed run log, empty when none was written.
	LogFile string
}

// runContext carries the state of a single run from step to step.
type runContext struct {
	id      string
	started time.Time
	layout  layout
	journal *logger.Journal

	release *update.Release
	// releaseList is the mapped release tree, archived on cleanup when clear is off.
	releaseList treesync.PathList
	status      update.Status

	cleanupFailed bool
}

// Update executes one run and always returns a result.
func (u *Updater) Update(ctx context.Context) *Result {
	rc := &runContext{
		id:      u.newID(),
		started: u.now(),
		layout:  newLayout(u.cfg.InstallDir, u.cfg.Repository),
		journal: logger.NewJournal(nil),
		status:  update.StatusStarted,
	}

	ctx = logger.WithKV(ctx, "run_id", rc.id)
	ctx = logger.WithCore(ctx, rc.journal.Core())

	logger.InfoKV(ctx, "Update started", "repository", u.cfg.Owner+"/"+u.cfg.Repository, "dir", rc.layout.root)

	locker := lock.New(u.fs, rc.layout.root,
		lock.WithAttempts(u.cfg.Lock.Attempts),
		lock.WithDelay(u.cfg.Lock.RetryDelay()),
		lock.WithFolders(rc.layout.staging, rc.layout.logDir),
		lock.WithSleep(u.sleep),
	)

	if err := locker.Acquire(ctx); err != nil {
		rc.status = update.StatusFor(err)
		if rc.status == update.StatusBusy {
			logger.WarnKV(ctx, "Update already running. Update terminated", "marker", locker.Marker())
		}

		return u.finish(ctx, rc, err)
	}

	status, runErr := u.pipeline(ctx, rc)
	rc.status = status

	if err := locker.Release(ctx, func(ctx context.Context) error { return u.cleanup(ctx, rc) }); err != nil {
		if u.cfg.CleanupFailure == config.CleanupError {
			logger.ErrorKV(ctx, "Cleanup failed", "error", err)

			rc.status = update.StatusError
			runErr = errors.Join(runErr, err)
		} else {
			logger.WarnKV(ctx, "Cleanup failed", "error", err)

			rc.cleanupFailed = true
		}
	}

	return u.finish(ctx, rc, runErr)
}

// errUpToDate stops a run whose installed version is not older than the latest release.
var errUpToDate = errors.New("version already up to date")

type step struct {
	name string
	run  func(context.Context, *runContext) error
}

// pipeline runs the steps done under the lock. A nil error comes with UPDATED or LATEST.
func (u *Updater) pipeline(ctx context.Context, rc *runContext) (update.Status, error) {
	steps := []step{
		{name: "access file", run: u.ensureAccessFile},
		{name: "version check", run: u.checkVersion},
		{name: "download", run: u.download},
		{name: "extract", run: u.extract},
		{name: "upgrade", run: u.upgrade},
	}

	for _, s := range steps {
		err := s.run(ctx, rc)

		switch {
		case err == nil:
			continue
		case errors.Is(err, errUpToDate):
			logger.InfoKV(ctx, "Version already up to date. Update terminated",
				"release", rc.release.Tag, "current", u.cfg.CurrentVersion)

			return update.StatusLatest, nil
		default:
			logger.ErrorKV(ctx, "Step failed. Update terminated", "step", s.name, "error", err)

			return update.StatusError, err
		}
	}

	logger.InfoKV(ctx, "Update completed", "release", rc.release.Tag)

	return update.StatusUpdated, nil
}

// ensureAccessFile keeps run logs out of reach of a web server serving the install dir.
func (u *Updater) ensureAccessFile(ctx context.Context, rc *runContext) error {
	path := filepath.Join(rc.layout.logDir, accessFileName)

	if current, err := afero.ReadFile(u.fs, path); err == nil && string(current) == accessFileContent {
		return nil
	}

	if err := afero.WriteFile(u.fs, path, []byte(accessFileContent), 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %w", update.ErrStagingIO, path, err)
	}

	logger.InfoKV(ctx, "File created", "path", path)

	return nil
}

// checkVersion asks the registry for the latest release and compares it with the installed version.
func (u *Updater) checkVersion(ctx context.Context, rc *runContext) error {
	rel, err := u.registry.FetchLatest(ctx, u.cfg.Owner, u.cfg.Repository, u.cfg.Token)
	if err != nil {
		return err
	}

	rc.release = rel

	newer, err := isNewer(rel.Tag, u.cfg.CurrentVersion)
	if err != nil {
		return err
	}

	if !newer {
		return errUpToDate
	}

	logger.InfoKV(ctx, "Newer release found", "release", rel.Tag, "current", u.cfg.CurrentVersion)

	return nil
}

// isNewer reports whether tag is strictly greater than current.
func isNewer(tag, current string) (bool, error) {
	latest, err := goversion.NewVersion(tag)
	if err != nil {
		return false, fmt.Errorf("%w: release tag %q: %w", update.ErrRemoteFetch, tag, err)
	}

	installed, err := goversion.NewVersion(current)
	if err != nil {
		return false, fmt.Errorf("current version %q: %w", current, err)
	}

	return latest.GreaterThan(installed), nil
}

// artifactURL prefers the mirror copy of the release when one is configured.
func (u *Updater) artifactURL(rc *runContext) string {
	if u.cfg.Mirror.URL != "" {
		return release.MirrorURL(u.cfg.Mirror.URL, u.cfg.Repository, rc.release.Tag)
	}

	return rc.release.ArtifactURL
}

// download makes one attempt plus the configured retries.
func (u *Updater) download(ctx context.Context, rc *runContext) error {
	src := u.artifactURL(rc)
	delay := u.cfg.Download.RetryDelay()
	attempts := 1 + u.cfg.Download.RetryCount()

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			logger.WarnKV(ctx, "Unable to retrieve download. Retrying", "delay", delay, "error", lastErr)

			if err := u.sleep(ctx, delay); err != nil {
				return fmt.Errorf("%w: download interrupted: %w", update.ErrRemoteFetch, err)
			}
		}

		lastErr = u.downloadOnce(ctx, src, rc.layout.archive)
		if lastErr == nil {
			logger.InfoKV(ctx, "Download completed", "url", src, "path", rc.layout.archive, "attempt", attempt)

			return nil
		}

		if errors.Is(lastErr, update.ErrStagingIO) {
			return lastErr
		}
	}

	return fmt.Errorf("download failed after %d attempts: %w", attempts, lastErr)
}

func (u *Updater) downloadOnce(ctx context.Context, src, dst string) error {
	if err := treesync.RemoveTree(u.fs, dst); err != nil {
		return fmt.Errorf("%w: delete previous download: %w", update.ErrStagingIO, err)
	}

	out, err := u.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", update.ErrStagingIO, dst, err)
	}

	err = u.fetcher.Fetch(ctx, src, out)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: close %s: %w", update.ErrStagingIO, dst, cerr)
	}

	return err
}

// extract unpacks the archive and renames its top-level directory after the repository.
func (u *Updater) extract(ctx context.Context, rc *runContext) error {
	if err := treesync.RemoveTree(u.fs, rc.layout.extractDir); err != nil {
		return fmt.Errorf("%w: delete existing extract folder: %w", update.ErrStagingIO, err)
	}

	top, err := u.extractor.Extract(ctx, rc.layout.archive, rc.layout.extractDir)
	if err != nil {
		return err
	}

	from := filepath.Join(rc.layout.extractDir, top)
	if from == rc.layout.releaseRoot {
		return nil
	}

	if err = u.fs.Rename(from, rc.layout.releaseRoot); err != nil {
		return fmt.Errorf("%w: rename %s: %w", update.ErrStagingIO, from, err)
	}

	logger.DebugKV(ctx, "Release folder renamed", "from", from, "to", rc.layout.releaseRoot)

	return nil
}

// upgrade merges the release tree into the install tree.
func (u *Updater) upgrade(ctx context.Context, rc *runContext) error {
	if u.cfg.ApplyDelay > 0 {
		logger.InfoKV(ctx, "Waiting before upgrade", "delay", u.cfg.ApplyDelay)

		if err := u.sleep(ctx, u.cfg.ApplyDelay); err != nil {
			return fmt.Errorf("%w: interrupted before upgrade: %w", update.ErrApply, err)
		}
	}

	if u.stopper != nil {
		if _, err := u.stopper.Stop(ctx); err != nil {
			return fmt.Errorf("%w: stop processes: %w", update.ErrApply, err)
		}
	}

	sourceRule, releaseRule := u.exclusionRules(rc.layout)
	logger.DebugKV(ctx, "Exclusions", "source", sourceRule, "release", releaseRule)

	mapper := treesync.NewMapper(u.fs)

	source, err := mapper.Map(rc.layout.root, sourceRule)
	if err != nil {
		return fmt.Errorf("%w: map install tree: %w", update.ErrApply, err)
	}

	rc.releaseList, err = mapper.Map(rc.layout.releaseRoot, releaseRule)
	if err != nil {
		return fmt.Errorf("%w: map release tree: %w", update.ErrApply, err)
	}

	diff := treesync.Diff(rc.layout.root, source, rc.layout.releaseRoot, rc.releaseList)
	logger.InfoKV(ctx, "Changes computed", "apply", len(diff.ToApply), "delete", len(diff.ToDelete))

	applier := treesync.NewApplier(u.fs, treesync.WithExecutable(u.executable))
	if err = applier.Apply(ctx, rc.layout.releaseRoot, rc.layout.root, diff); err != nil {
		return fmt.Errorf("%w: %w", update.ErrApply, err)
	}

	if u.hook != nil {
		if err = u.hook.Run(ctx, rc.layout.root); err != nil {
			return fmt.Errorf("%w: %w", update.ErrApply, err)
		}
	}

	return nil
}

// exclusionRules joins the configured relative paths to their tree roots and
// adds the entries no run may touch.
func (u *Updater) exclusionRules(l layout) (source, rel treesync.ExclusionRule) {
	under := func(root string, paths []string) []string {
		return lo.Map(paths, func(p string, _ int) string {
			return filepath.Join(root, p)
		})
	}

	mandatory := []string{filepath.Join(l.root, ".git"), l.staging, l.marker}

	source = treesync.ExclusionRule{
		Paths:     lo.Uniq(append(mandatory, under(l.root, u.cfg.Exclude.Source.Paths)...)),
		Filenames: lo.Uniq(u.cfg.Exclude.Source.Filenames),
	}

	rel = treesync.ExclusionRule{
		Paths:     under(l.releaseRoot, u.cfg.Exclude.Release.Paths),
		Filenames: lo.Uniq(append(slices.Clone(defaultReleaseFilenames), u.cfg.Exclude.Release.Filenames...)),
	}

	return source, rel
}
