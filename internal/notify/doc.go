// Package notify tells an administrator that an update run failed.
package notify
