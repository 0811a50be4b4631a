// Package asyncsched provides a work-stealing task scheduler with
// structured asynchronous tasks for Go.
//
// The library multiplexes fine-grained cooperative tasks onto a fixed pool
// of worker goroutines. Ready and blocked work live in per-worker lock-free
// stacks; workers execute their own work in priority order, steal from
// neighbors when starved, and re-test blocked tasks as they go. Short-lived
// task frames come from a page-based linear allocator so bursts of small
// tasks do not contend on the heap.
//
// # Quick Start
//
// Initialize the global scheduler at application startup:
//
//	asyncsched.Init(nil) // max(4, NumCPU) workers
//	defer asyncsched.Exit()
//
// Create and schedule a task, then wait for it:
//
//	desc := asyncsched.AsyncTaskDesc{Flags: asyncsched.FlagsShortLived}
//	handle := asyncsched.NewAsyncTask(desc, func(tc *asyncsched.TaskContext) {
//		// One step of work; tc.Await and tc.Yield are suspension points.
//	}).Schedule()
//	handle.Wait()
//	handle.Close()
//
// # Key Concepts
//
// AsyncTask: a suspendable computation. Scheduling it returns a WaitHandle;
// inside a task, tc.Await suspends until a dependency (another handle, a
// composite wait, a resource grant) is done, without blocking the worker.
//
// SchedulingFlags: selects the frame lifetime class. ShortLived frames are
// bump-allocated from 2 MiB pages and released when the handle closes;
// LongLived frames use the regular heap. Inherited picks up the enclosing
// task's class.
//
// ParallelFor: partitions a loop over helper tasks plus the caller, all
// claiming batches from a shared cursor.
//
// # Thread Safety
//
// A task is executed by at most one worker at a time and its step runs
// uninterrupted between suspension points, so state owned by a task needs
// no locks. Writes made before scheduling a task are visible to the worker
// that executes it.
//
// For more details, see the core package.
package asyncsched
