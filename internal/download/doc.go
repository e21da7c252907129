// Package download implements multi-file, pausable, cancelable model
// downloads.
//
// A start request registers a job in an in-memory table and detaches one
// worker goroutine that drives the job through its lifecycle:
//
//	Starting → Downloading ⇄ Paused → Extracting → Completed
//
// with Failed and Cancelled reachable from any non-terminal state.
// Control operations (pause, resume, cancel) only flip flags on the
// table entry; the worker observes them cooperatively at file boundaries
// and between chunks. Files are written next to their final destination
// under the reserved ".download" suffix and atomically renamed once
// complete, so a crash leaves only suffixed artifacts for the startup
// sweep (CleanLeftovers) to remove.
//
// Jobs are not persisted: the table is rebuilt empty on restart and
// downloads are not auto-resumed.
package download
