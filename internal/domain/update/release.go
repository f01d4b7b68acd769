package update

import "time"

// Release is the part of the registry's latest-release answer the updater consumes.
type Release struct {
	// Tag is the version tag of the release, e.g. "v1.2.0".
	Tag string
	// ArtifactURL points at the downloadable archive of the release tree.
	ArtifactURL string
}

// LogEntry is one timestamped line of a run log.
type LogEntry struct {
	Time    time.Time
	Message string
}

// Report describes a failed run for notifiers.
type Report struct {
	// RunID identifies the run in logs.
	RunID string
	// Owner and Repository name the project in the registry.
	Owner      string
	Repository string
	// CurrentVersion is the version installed before the run.
	CurrentVersion string
	// Info is free-form text configured by the operator.
	Info string
	// Status is the final run status.
	Status Status
	// Log is the full run journal.
	Log []LogEntry
}
