package updater

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/oshokin/release-updater/internal/domain/update"
	"github.com/oshokin/release-updater/internal/logger"
	"github.com/oshokin/release-updater/internal/treesync"
)

// cleanup empties the staging area while the lock is still held. When clear
// is off and the run did not fail, the release tree is kept as a zip under
// a top-level directory named after the repository.
func (u *Updater) cleanup(ctx context.Context, rc *runContext) error {
	var errs []error

	if err := treesync.RemoveTree(u.fs, rc.layout.archive); err != nil {
		logger.WarnKV(ctx, "Failed to delete downloaded zip file", "path", rc.layout.archive, "error", err)
		errs = append(errs, err)
	}

	if !u.cfg.ClearStaging() && rc.status != update.StatusError && rc.releaseList != nil {
		err := u.archiver.Archive(ctx, rc.layout.releaseRoot, u.cfg.Repository, rc.layout.archive, rc.releaseList.Paths())
		if err != nil {
			logger.WarnKV(ctx, "Failed to archive release", "path", rc.layout.archive, "error", err)
			errs = append(errs, err)
		}
	}

	if err := treesync.RemoveTree(u.fs, rc.layout.extractDir); err != nil {
		logger.WarnKV(ctx, "Failed to delete extracted folder", "path", rc.layout.extractDir, "error", err)
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		logger.Warn(ctx, "Cleanup completed with errors")

		return fmt.Errorf("%w: cleanup: %w", update.ErrStagingIO, err)
	}

	logger.Info(ctx, "Cleanup completed")

	return nil
}

// finish notifies on failure, flushes the run log and builds the result.
func (u *Updater) finish(ctx context.Context, rc *runContext, err error) *Result {
	result := &Result{
		RunID:         rc.id,
		Status:        rc.status,
		CleanupFailed: rc.cleanupFailed,
		Err:           err,
	}

	if rc.release != nil {
		result.Tag = rc.release.Tag
	}

	if rc.status == update.StatusError {
		if nerr := u.notifier.Notify(ctx, u.report(rc)); nerr != nil {
			logger.WarnKV(ctx, "Failed to send notification", "error", nerr)
		}
	}

	logger.InfoKV(ctx, "Update finished", "status", rc.status.String())

	if rc.status == update.StatusBusy {
		return result
	}

	path, ferr := u.flushLog(ctx, rc)
	if ferr != nil {
		logger.WarnKV(ctx, "Failed to save log file", "error", ferr)
	}

	result.LogFile = path

	return result
}

func (u *Updater) report(rc *runContext) update.Report {
	return update.Report{
		RunID:          rc.id,
		Owner:          u.cfg.Owner,
		Repository:     u.cfg.Repository,
		CurrentVersion: u.cfg.CurrentVersion,
		Info:           u.cfg.Info,
		Status:         rc.status,
		Log: lo.Map(rc.journal.Entries(), func(e logger.Entry, _ int) update.LogEntry {
			return update.LogEntry{Time: e.Time, Message: e.Message}
		}),
	}
}

// flushLog makes room for the new file within max_logs, then writes the journal.
func (u *Updater) flushLog(ctx context.Context, rc *runContext) (string, error) {
	logDir := rc.layout.logDir

	existing, err := u.logFiles(logDir)
	if err != nil {
		return "", err
	}

	if excess := len(existing) - (u.cfg.MaxLogs - 1); excess > 0 {
		logger.InfoKV(ctx, "Deleting excess log files", "count", excess)

		for _, name := range existing[:excess] {
			path := filepath.Join(logDir, name)
			if err = u.fs.Remove(path); err != nil {
				logger.WarnKV(ctx, "Failed to delete log file", "path", path, "error", err)
			}
		}
	}

	name := rc.started.Format(logFileLayout)
	if slices.Contains(existing, name+logFileExt) {
		name += "_" + strings.SplitN(rc.id, "-", 2)[0]
	}

	path := filepath.Join(logDir, name+logFileExt)

	logger.InfoKV(ctx, "Saving log file", "path", path)

	if err = afero.WriteFile(u.fs, path, []byte(rc.journal.Lines()+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	return path, nil
}

// logFiles lists run logs oldest first. The names sort by time.
func (u *Updater) logFiles(logDir string) ([]string, error) {
	infos, err := afero.ReadDir(u.fs, logDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", logDir, err)
	}

	names := lo.FilterMap(infos, func(info fs.FileInfo, _ int) (string, bool) {
		return info.Name(), info.Mode().IsRegular() && strings.HasSuffix(info.Name(), logFileExt)
	})

	slices.Sort(names)

	return names, nil
}
