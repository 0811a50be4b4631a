package asyncsched

import "github.com/Swind/go-async-scheduler/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the asyncsched package for most use cases.

// Scheduler multiplexes schedulables onto a worker pool
type Scheduler = core.Scheduler

// SchedulerConfig configures a scheduler instance
type SchedulerConfig = core.SchedulerConfig

// Schedulable is the unit the scheduler manipulates
type Schedulable = core.Schedulable

// Runnable is the behavior a Schedulable dispatches to
type Runnable = core.Runnable

// ExecContext carries the execution environment through Execute calls
type ExecContext = core.ExecContext

// AsyncTask is a created-but-not-yet-scheduled task
type AsyncTask = core.AsyncTask

// AsyncTaskDesc describes a task at creation time
type AsyncTaskDesc = core.AsyncTaskDesc

// TaskFunc is the body of an asynchronous task
type TaskFunc = core.TaskFunc

// TaskContext is the explicit execution context passed to task bodies
type TaskContext = core.TaskContext

// WaitHandle owns a scheduled task until closed
type WaitHandle = core.WaitHandle

// SchedulingFlags selects where a task's frame lives
type SchedulingFlags = core.SchedulingFlags

// AwaitAll is ready when every handle in a set is done
type AwaitAll = core.AwaitAll

// AwaitAny is ready when some handle in a set is done
type AwaitAny = core.AwaitAny

// ResourceLimiter bounds concurrently held resource costs
type ResourceLimiter = core.ResourceLimiter

// ResourceGrant is the awaitable side of a limiter reservation
type ResourceGrant = core.ResourceGrant

// LinearAllocator is the page-based bump allocator backing task frames
type LinearAllocator = core.LinearAllocator

// Logger is the structured logging interface used by the scheduler
type Logger = core.Logger

// Scheduling flag constants
const (
	FlagsInherited  SchedulingFlags = core.FlagsInherited
	FlagsLongLived  SchedulingFlags = core.FlagsLongLived
	FlagsShortLived SchedulingFlags = core.FlagsShortLived
	FlagsDefault    SchedulingFlags = core.FlagsDefault
)

// Priority bounds
const (
	MinPriority = core.MinPriority
	MaxPriority = core.MaxPriority
)

// Convenience constructors and helpers
var (
	NewAsyncTask         = core.NewAsyncTask
	NewScheduler         = core.NewScheduler
	NewAwaitAll          = core.NewAwaitAll
	NewAwaitAny          = core.NewAwaitAny
	NewResourceLimiter   = core.NewResourceLimiter
	NewLinearAllocator   = core.NewLinearAllocator
	ScheduleTasksEvenly  = core.ScheduleTasksEvenly
	ParallelFor          = core.ParallelFor
	DefaultAsyncTaskDesc = core.DefaultAsyncTaskDesc
)
