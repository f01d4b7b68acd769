// Package release talks to the outside world for an update run: it asks the
// release registry for the latest release and fetches release artifacts over
// HTTP or from an S3-compatible mirror.
package release
