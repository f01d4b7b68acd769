// Package update contains the domain types shared by the updater pipeline:
// the run Status, the Release picked from the registry, the failure Report
// handed to notifiers, and the error taxonomy every pipeline step wraps.
package update
