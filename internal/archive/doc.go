// Package archive unpacks release archives into the staging area and packs
// trees back into release-shaped zip files.
//
// A release archive has exactly one top-level directory, the way a source
// zipball produced by a code host does. Extract reports that directory so
// callers never guess it from directory listing order.
package archive
