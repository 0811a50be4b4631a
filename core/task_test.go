package core

import (
	"encoding/binary"
	"sync/atomic"
	"testing"
	"time"
)

// TestAsyncTask_ScheduleWaitClose verifies the basic task round trip
// Given: A short-lived task writing a marker into its frame
// When: It is scheduled and awaited
// Then: Wait returns after completion, the frame holds the marker, and
//       Close releases the task
func TestAsyncTask_ScheduleWaitClose(t *testing.T) {
	// Arrange
	s := newTestScheduler(t, nil)
	desc := AsyncTaskDesc{Flags: FlagsShortLived, FrameSize: 16}
	task := NewAsyncTask(desc, func(tc *TaskContext) {
		binary.LittleEndian.PutUint64(tc.Frame(), 0xfeedface)
	})

	// Act
	handle := task.ScheduleOn(s)
	handle.Wait()

	// Assert
	if !handle.Done() {
		t.Error("Done() = false after Wait()")
	}
	if got := binary.LittleEndian.Uint64(handle.Frame()); got != 0xfeedface {
		t.Errorf("frame marker = %#x, want 0xfeedface", got)
	}
	handle.Close()
	if handle.Valid() {
		t.Error("Valid() = true after Close()")
	}
}

// TestAsyncTask_LongLivedFrame verifies the heap frame class
// Given: A long-lived task
// When: It runs to completion
// Then: Its frame is usable and the frame allocator saw no traffic
func TestAsyncTask_LongLivedFrame(t *testing.T) {
	// Arrange
	s := newTestScheduler(t, nil)
	before := TaskFrameAllocator().Stats().PagesMapped

	// Act
	task := NewAsyncTask(AsyncTaskDesc{Flags: FlagsLongLived}, func(tc *TaskContext) {
		tc.Frame()[0] = 1
	})
	handle := task.ScheduleOn(s)
	handle.Wait()
	handle.Close()

	// Assert
	if after := TaskFrameAllocator().Stats().PagesMapped; after != before {
		t.Errorf("long-lived task mapped %d frame pages", after-before)
	}
}

// TestTaskContext_YieldRequeues verifies dependency-free suspension
// Given: A task that yields twice between increments
// When: It runs under the pool
// Then: All three increments happen and the task completes
func TestTaskContext_YieldRequeues(t *testing.T) {
	// Arrange
	s := newTestScheduler(t, nil)
	var steps atomic.Int32
	task := NewAsyncTask(AsyncTaskDesc{Flags: FlagsLongLived}, func(tc *TaskContext) {
		steps.Add(1)
		tc.Yield()
		steps.Add(1)
		tc.Yield()
		steps.Add(1)
	})

	// Act
	handle := task.ScheduleOn(s)
	handle.Wait()
	handle.Close()

	// Assert
	if got := steps.Load(); got != 3 {
		t.Errorf("steps = %d, want 3", got)
	}
}

// TestTaskContext_AwaitHandle verifies task-on-task dependencies
// Given: A parent task scheduling a gated child and awaiting its handle
// When: The child's gate opens
// Then: The parent resumes only after the child is done
func TestTaskContext_AwaitHandle(t *testing.T) {
	// Arrange
	s := newTestScheduler(t, nil)
	var gate atomic.Bool
	var childDoneAtResume atomic.Bool

	task := NewAsyncTask(AsyncTaskDesc{Flags: FlagsLongLived}, func(tc *TaskContext) {
		child := tc.NewTask(AsyncTaskDesc{Flags: FlagsShortLived}, func(ctc *TaskContext) {
			for !gate.Load() {
				ctc.Yield()
			}
		})
		childHandle := tc.Schedule(child)
		tc.Await(childHandle)
		childDoneAtResume.Store(childHandle.Done())
		childHandle.Close()
	})

	// Act
	handle := task.ScheduleOn(s)
	time.Sleep(10 * time.Millisecond)
	if handle.Done() {
		t.Fatal("parent finished before the child's gate opened")
	}
	gate.Store(true)
	handle.Wait()
	handle.Close()

	// Assert
	if !childDoneAtResume.Load() {
		t.Error("child was not done when the parent resumed")
	}
}

// TestTaskContext_InheritedFlagsResolve verifies the ambient flags scope
// Given: A short-lived parent creating children with Inherited flags
// When: The parent runs
// Then: The ambient scope reports ShortLived inside the parent and inside an
//       inline Inherited child
func TestTaskContext_InheritedFlagsResolve(t *testing.T) {
	// Arrange
	s := newTestScheduler(t, nil)
	var parentFlags, childFlags SchedulingFlags

	task := NewAsyncTask(AsyncTaskDesc{Flags: FlagsShortLived}, func(tc *TaskContext) {
		parentFlags = tc.Flags()
		tc.Call(AsyncTaskDesc{Flags: FlagsInherited}, func(ctc *TaskContext) {
			childFlags = ctc.Flags()
		})
	})

	// Act
	handle := task.ScheduleOn(s)
	handle.Wait()
	handle.Close()

	// Assert
	if parentFlags != FlagsShortLived {
		t.Errorf("parent ambient flags = %d, want ShortLived", parentFlags)
	}
	if childFlags != FlagsShortLived {
		t.Errorf("inherited child flags = %d, want ShortLived", childFlags)
	}
}

// TestTaskContext_CallScopesFlagsAndFrame verifies inline child isolation
// Given: A long-lived parent calling a short-lived inline child
// When: The child runs and returns
// Then: The child sees its own frame and flags; the parent's are restored
func TestTaskContext_CallScopesFlagsAndFrame(t *testing.T) {
	// Arrange
	s := newTestScheduler(t, nil)
	var framesDiffer, flagsRestored atomic.Bool

	task := NewAsyncTask(AsyncTaskDesc{Flags: FlagsLongLived}, func(tc *TaskContext) {
		parentFrame := &tc.Frame()[0]
		tc.Call(AsyncTaskDesc{Flags: FlagsShortLived}, func(ctc *TaskContext) {
			framesDiffer.Store(&ctc.Frame()[0] != parentFrame)
		})
		flagsRestored.Store(tc.Flags() == FlagsLongLived && &tc.Frame()[0] == parentFrame)
	})

	// Act
	handle := task.ScheduleOn(s)
	handle.Wait()
	handle.Close()

	// Assert
	if !framesDiffer.Load() {
		t.Error("inline child shared the parent's frame")
	}
	if !flagsRestored.Load() {
		t.Error("parent scope was not restored after the inline call")
	}
}

// TestNewAsyncTask_InheritedAtRootTraps verifies the root-scope contract
// Given: No enclosing task scope
// When: NewAsyncTask is called with Inherited flags
// Then: The programming-error assertion trips
func TestNewAsyncTask_InheritedAtRootTraps(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewAsyncTask with Inherited flags at root did not trap")
		}
	}()
	NewAsyncTask(AsyncTaskDesc{Flags: FlagsInherited}, func(tc *TaskContext) {})
}

// TestPromise_SingleDependencyOnly verifies the dependency invariant
// Given: A promise already holding a dependency
// When: A second dependency is installed
// Then: The programming-error assertion trips
func TestPromise_SingleDependencyOnly(t *testing.T) {
	// Arrange
	task := NewAsyncTask(AsyncTaskDesc{Flags: FlagsLongLived}, func(tc *TaskContext) {})
	defer func() {
		if recover() == nil {
			t.Error("double dependency installation did not trap")
		}
		task.p.dependency = nil
		task.Close()
	}()

	// Act
	aw := readyAsDone{aw: &WaitHandle{}}
	task.p.setDependency(aw)
	task.p.setDependency(aw)
}

// TestScheduleTasksEvenly verifies the batch fan-out conversion
// Given: Eight tasks bumping a shared counter
// When: ScheduleTasksEvenlyOn converts them to handles in one chain
// Then: All handles resolve and every task ran exactly once
func TestScheduleTasksEvenly(t *testing.T) {
	// Arrange
	s := newTestScheduler(t, nil)
	var total atomic.Int32
	tasks := make([]*AsyncTask, 8)
	for i := range tasks {
		tasks[i] = NewAsyncTask(AsyncTaskDesc{Flags: FlagsShortLived}, func(tc *TaskContext) {
			total.Add(1)
		})
	}

	// Act
	handles := ScheduleTasksEvenlyOn(s, tasks)
	for _, h := range handles {
		h.Wait()
	}

	// Assert
	if got := total.Load(); got != 8 {
		t.Errorf("total = %d, want 8", got)
	}
	for i, task := range tasks {
		if task.p != nil {
			t.Errorf("task %d was not consumed", i)
		}
	}
	for _, h := range handles {
		h.Close()
	}
}

// TestWaitHandle_InvalidHandleIsDone verifies the moved-from behavior
// Given: A handle that owns no task
// When: Its observers run
// Then: It reports done and invalid, and Wait returns immediately
func TestWaitHandle_InvalidHandleIsDone(t *testing.T) {
	var h WaitHandle
	if h.Valid() {
		t.Error("empty handle reports Valid")
	}
	if !h.Done() {
		t.Error("empty handle reports not done")
	}
	h.Wait() // must not block
	h.Close()
}
