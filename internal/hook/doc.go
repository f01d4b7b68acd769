// Package hook holds the steps that run around the tree apply: stopping
// processes that would hold install files open, and the post-upgrade command.
package hook
