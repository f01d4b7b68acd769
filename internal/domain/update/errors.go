package update

import "errors"

// Error taxonomy of a run. Every pipeline failure wraps exactly one of these.
var (
	// ErrLockUnavailable means another run holds the lock marker.
	ErrLockUnavailable = errors.New("update lock unavailable")
	// ErrStagingIO covers folder and file creation, read, write and copy failures in the staging area.
	ErrStagingIO = errors.New("staging i/o failure")
	// ErrRemoteFetch covers metadata and artifact fetch failures, including malformed responses.
	ErrRemoteFetch = errors.New("remote fetch failure")
	// ErrArchive means the artifact is corrupt or cannot be extracted.
	ErrArchive = errors.New("archive failure")
	// ErrApply means merging the release tree into the install tree failed midway.
	ErrApply = errors.New("apply failure")
)

// StatusFor maps a terminal pipeline error to the run status.
func StatusFor(err error) Status {
	switch {
	case err == nil:
		return StatusUpdated
	case errors.Is(err, ErrLockUnavailable):
		return StatusBusy
	default:
		return StatusError
	}
}
