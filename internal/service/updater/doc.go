// Package updater runs one self-update of an installed application.
//
// A run takes the marker lock, asks the registry for the latest release,
// downloads and extracts it when it is newer than the installed version,
// merges the release tree into the install tree and releases the lock, which
// cleans the staging area. The outcome is a single update.Status. Every run
// leaves a dated log file under update/log, except a BUSY run, which does not
// touch the staging area of the run that holds the lock.
package updater
