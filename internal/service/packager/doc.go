// Package packager builds release artifacts the updater can consume.
//
// It zips a directory below a single top-level folder, the same shape a code
// host produces for a tagged snapshot, so the result can be published to a
// mirror and fetched instead of the registry artifact.
package packager
