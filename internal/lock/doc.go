// Package lock guards an install root against concurrent update runs.
//
// The guard is a zero-length marker file created exclusively under the root.
// Its presence is the only witness of a run in progress: there is no owner
// token and no staleness detection, so a marker left behind by a crashed run
// blocks later runs until it is removed by hand.
package lock
