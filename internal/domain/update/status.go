package update

import "strconv"

// Status is the externally observable outcome of an update run.
// The numeric values follow HTTP-like codes so they can double as exit information.
type Status int

const (
	// StatusStarted is the initial state of a run.
	StatusStarted Status = 100
	// StatusUpdated means the install tree was replaced with a newer release.
	StatusUpdated Status = 200
	// StatusLatest means the installed version is already the newest one.
	StatusLatest Status = 204
	// StatusError means the run failed; the tree may be partially upgraded.
	StatusError Status = 500
	// StatusBusy means another run holds the lock marker.
	StatusBusy Status = 504
)

// String returns the upper-case name of the status.
func (s Status) String() string {
	switch s {
	case StatusStarted:
		return "STARTED"
	case StatusUpdated:
		return "UPDATED"
	case StatusLatest:
		return "LATEST"
	case StatusError:
		return "ERROR"
	case StatusBusy:
		return "BUSY"
	default:
		return "Status(" + strconv.Itoa(int(s)) + ")"
	}
}

// Succeeded reports whether the run ended without a failure.
func (s Status) Succeeded() bool {
	return s == StatusUpdated || s == StatusLatest
}
