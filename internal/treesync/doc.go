// Package treesync merges a freshly extracted release tree into an installed tree.
//
// The work is split in four steps that the updater runs in order:
//   - Mapper walks a tree into a PathList, honoring an ExclusionRule;
//   - Diff relativizes two PathLists and computes what to apply and what to delete;
//   - Applier creates directories, overwrites or copies files, then deletes the obsolete paths;
//   - RemoveTree deletes a path depth-first, children before their parent.
//
// Every function works on an afero.Fs so the same code runs against the real
// disk and against in-memory trees in tests.
package treesync
