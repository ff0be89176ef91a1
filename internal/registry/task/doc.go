// Package task mirrors the build/run tasks defined in the workspace.
//
// Tasks are enumerated from definition files by pluggable sources:
//
//	.runbar/tasks.json    runbar's own task file        (priority 100)
//	.vscode/tasks.json    the editor's task file, JSONC (priority 90)
//	<user dir>/tasks.json optional user-level tasks     (priority 80)
//
// Each workspace folder is scanned independently, so a multi-root
// workspace surfaces tasks from every folder. When both sources define
// a file for the same folder both contribute; task identity keeps them
// apart.
//
// # Task identity
//
// A task's ID is derived, never random:
//
//	<source>:<folder-relative file>:<label>
//
// e.g. "editor:.vscode/tasks.json:build". IDs are stable across
// refreshes as long as the defining entry keeps its label and file,
// which is what lets a persisted selection survive restarts.
//
// # Refresh and caching
//
// The registry keeps a snapshot of the last enumeration. Snapshot
// reads are cheap; a refresh re-runs all sources, diffs against the
// previous snapshot, and reports added/removed/changed IDs. Snapshots
// expire after a TTL so a dead file watcher degrades to periodic
// re-enumeration instead of permanently stale data.
package task
