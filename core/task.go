package core

import "unsafe"

// SchedulingFlags selects where a task's frame lives. ShortLived frames come
// from the linear allocator and must be released promptly; LongLived frames
// live on the regular heap. Inherited resolves to the enclosing task's flags
// the first time it is read and is invalid at the root.
type SchedulingFlags uint8

const (
	FlagsInherited  SchedulingFlags = 0
	FlagsLongLived  SchedulingFlags = 1 << 0
	FlagsShortLived SchedulingFlags = 1 << 1

	FlagsDefault = FlagsLongLived
)

// DefaultFrameSize is the frame scratch size when AsyncTaskDesc leaves it 0.
const DefaultFrameSize = 256

// AsyncTaskDesc describes a task at creation time.
type AsyncTaskDesc struct {
	Flags    SchedulingFlags
	Priority int32

	// FrameSize is the size in bytes of the task's frame scratch region.
	// Zero selects DefaultFrameSize.
	FrameSize int
}

// DefaultAsyncTaskDesc returns a desc with default flags and priority 0.
func DefaultAsyncTaskDesc() AsyncTaskDesc {
	return AsyncTaskDesc{Flags: FlagsDefault}
}

// TaskFunc is the body of an asynchronous task. It runs one step at a time
// under the scheduler; every call to tc.Await or tc.Yield is a suspension
// point that hands the thread back.
type TaskFunc func(tc *TaskContext)

// Awaitable is the dependency contract: Done must be cheap and
// side-effect-free, because the blocked docket re-tests it on every pass.
type Awaitable interface {
	Done() bool
}

// Awaiter is anything a task can await. Ready may carry side effects (it is
// called exactly once per await); if the implementation also has a Done
// method, that is preferred for blocked-queue re-testing. An optional
// Resume method runs on the awaiting task once the wait is over.
type Awaiter interface {
	Ready() bool
}

type resumer interface {
	Resume()
}

// readyAsDone adapts an Awaiter without a Done method.
type readyAsDone struct {
	aw Awaiter
}

func (r readyAsDone) Done() bool {
	return r.aw.Ready()
}

func asAwaitable(aw Awaiter) Awaitable {
	if done, ok := aw.(Awaitable); ok {
		return done
	}
	return readyAsDone{aw: aw}
}

// =============================================================================
// taskFrame: allocator-backed scratch region
// =============================================================================

// taskFrameAllocator backs every short-lived frame in the process, the same
// way every short-lived task shares one allocator in the scheduler's design.
var taskFrameAllocator = NewLinearAllocator(TaskFramePageSize)

// TaskFrameAllocator exposes the shared frame allocator, mainly for
// observability snapshots.
func TaskFrameAllocator() *LinearAllocator {
	return taskFrameAllocator
}

// taskFrame is a task's scratch region. Frame memory backed by the linear
// allocator is invisible to the garbage collector, so frames must hold
// pointer-free data only.
type taskFrame struct {
	ptr  unsafe.Pointer
	size uintptr
	heap []byte // keeps long-lived frames reachable
}

func newTaskFrame(flags SchedulingFlags, hint uint32, size uintptr) taskFrame {
	f := taskFrame{size: size}
	if flags == FlagsShortLived {
		f.ptr = taskFrameAllocator.AllocPinned(hint, size, DefaultAllocAlignment)
	} else {
		f.heap = make([]byte, size)
		f.ptr = unsafe.Pointer(&f.heap[0])
	}
	clear(f.bytes())
	return f
}

func (f *taskFrame) free(flags SchedulingFlags) {
	if f.ptr == nil {
		return
	}
	if flags == FlagsShortLived {
		taskFrameAllocator.Free(f.ptr)
	}
	f.ptr = nil
	f.heap = nil
}

func (f *taskFrame) bytes() []byte {
	if f.ptr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(f.ptr), f.size)
}

// =============================================================================
// promise: the schedulable face of a task
// =============================================================================

// promise drives one task. The body runs on its own goroutine, started
// lazily on the first Execute and parked at every suspension point; Execute
// resumes it for exactly one step through a channel handoff, so a task step
// runs uninterrupted from resume to the next suspension or completion.
type promise struct {
	Schedulable

	flags      SchedulingFlags
	dependency Awaitable
	safelyDone chan struct{}

	resume  chan struct{}
	yielded chan bool // true: the body returned; false: suspended

	body    TaskFunc
	tc      TaskContext
	frame   taskFrame
	started bool
}

func newPromise(desc AsyncTaskDesc, ambient SchedulingFlags, hint uint32, body TaskFunc) *promise {
	flags := desc.Flags
	if flags == FlagsInherited {
		assertf(ambient != FlagsInherited, "inherited scheduling flags with no enclosing task scope")
		flags = ambient
	}
	frameSize := desc.FrameSize
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}

	p := &promise{
		flags:      flags,
		safelyDone: make(chan struct{}),
		resume:     make(chan struct{}),
		yielded:    make(chan bool),
		body:       body,
		frame:      newTaskFrame(flags, hint, uintptr(frameSize)),
	}
	p.Schedulable.Init(desc.Priority, p)
	p.tc = TaskContext{root: p, flags: flags, frame: &p.frame}
	return p
}

func (p *promise) run() {
	<-p.resume
	p.body(&p.tc)
	p.yielded <- true
}

// Execute resumes the task for one step. Completion releases the safelyDone
// latch exactly once and returns nil; a suspension returns the task itself
// so the scheduler requeues it.
func (p *promise) Execute(ec *ExecContext) *Schedulable {
	assertf(p.IsReady(), "schedulable not ready")
	assertf(!p.completed(), "task already completed")

	p.tc.ec = ec
	if !p.started {
		p.started = true
		go p.run()
	}
	p.resume <- struct{}{}
	if <-p.yielded {
		close(p.safelyDone)
		return nil
	}
	return &p.Schedulable
}

// IsReady reports whether the task can take a step. A satisfied dependency
// is cleared on observation.
func (p *promise) IsReady() bool {
	if p.dependency == nil || p.dependency.Done() {
		p.dependency = nil
		return true
	}
	return false
}

func (p *promise) setDependency(aw Awaitable) {
	assertf(p.dependency == nil, "task can only hold a single dependency")
	p.dependency = aw
}

func (p *promise) completed() bool {
	select {
	case <-p.safelyDone:
		return true
	default:
		return false
	}
}

// release frees the frame and checks the teardown invariants: no pending
// dependency, not linked into any docket.
func (p *promise) release() {
	assertf(p.dependency == nil, "task released with a pending dependency")
	p.Schedulable.release()
	p.frame.free(p.flags)
}

// =============================================================================
// TaskContext: the explicit execution context of a running task
// =============================================================================

// TaskContext is passed to every task body. It carries the stack root (the
// promise dependencies are installed on), the current execution context, the
// ambient scheduling-flags scope, and the active frame. A TaskContext is
// only valid on the goroutine of the task it belongs to.
type TaskContext struct {
	root  *promise
	ec    *ExecContext
	flags SchedulingFlags
	frame *taskFrame
}

// Frame returns the active frame's scratch bytes. Frames of short-lived
// tasks live outside the garbage-collected heap and must not store Go
// pointers.
func (tc *TaskContext) Frame() []byte {
	return tc.frame.bytes()
}

// Scheduler returns the scheduler executing this task.
func (tc *TaskContext) Scheduler() *Scheduler {
	return tc.ec.sched
}

// Flags returns the ambient scheduling-flags scope, which Inherited child
// tasks resolve to.
func (tc *TaskContext) Flags() SchedulingFlags {
	return tc.flags
}

func (tc *TaskContext) suspend() {
	p := tc.root
	p.yielded <- false
	<-p.resume
}

// Yield suspends the task without a dependency: it goes back to the ready
// docket and resumes on a later dispatch round.
func (tc *TaskContext) Yield() {
	tc.suspend()
}

// Await suspends the task until aw is ready. If aw is already ready the task
// continues without suspending; otherwise aw becomes the task's dependency
// and the blocked docket re-tests it via Done. Resume hooks run on the
// awaiting goroutine once the wait is over.
func (tc *TaskContext) Await(aw Awaiter) {
	if !aw.Ready() {
		tc.root.setDependency(asAwaitable(aw))
		tc.suspend()
	}
	if r, ok := aw.(resumer); ok {
		r.Resume()
	}
}

// NewTask creates a task inside this task's scope: Inherited flags resolve
// to the current ambient flags, and short-lived frames come from the
// executing worker's allocator shard.
func (tc *TaskContext) NewTask(desc AsyncTaskDesc, body TaskFunc) *AsyncTask {
	return &AsyncTask{p: newPromise(desc, tc.flags, tc.ec.preferred, body)}
}

// Schedule queues the task on the executing worker's docket stack and
// returns its wait handle. The AsyncTask is consumed.
func (tc *TaskContext) Schedule(t *AsyncTask) *WaitHandle {
	h := &WaitHandle{}
	if t.p != nil {
		h.p = t.p
		node := &t.p.Schedulable
		t.p = nil
		tc.ec.sched.scheduleItems(node, tc.ec.preferred)
	}
	return h
}

// Call runs a child task inline on this goroutine: the child gets its own
// frame and flags scope but shares the caller's suspension, so an await
// inside the child suspends the whole task. The frame is released when the
// child returns.
func (tc *TaskContext) Call(desc AsyncTaskDesc, body TaskFunc) {
	flags := desc.Flags
	if flags == FlagsInherited {
		flags = tc.flags
	}
	frameSize := desc.FrameSize
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	frame := newTaskFrame(flags, tc.ec.preferred, uintptr(frameSize))

	savedFlags, savedFrame := tc.flags, tc.frame
	tc.flags, tc.frame = flags, &frame
	body(tc)
	tc.flags, tc.frame = savedFlags, savedFrame

	frame.free(flags)
}

// =============================================================================
// AsyncTask and WaitHandle
// =============================================================================

// AsyncTask is a created-but-not-yet-scheduled task. Scheduling consumes it
// and yields a WaitHandle; an AsyncTask that is never scheduled must be
// closed to release its frame.
type AsyncTask struct {
	p *promise
}

// NewAsyncTask creates a task at the root scope. Flags must be explicit:
// Inherited has no enclosing scope to resolve from and traps.
func NewAsyncTask(desc AsyncTaskDesc, body TaskFunc) *AsyncTask {
	return &AsyncTask{p: newPromise(desc, FlagsInherited, RandomIndex, body)}
}

// Frame returns the task's frame scratch bytes.
func (t *AsyncTask) Frame() []byte {
	if t.p == nil {
		return nil
	}
	return t.p.frame.bytes()
}

// Schedule queues the task on the default scheduler and returns its handle.
func (t *AsyncTask) Schedule() *WaitHandle {
	return t.ScheduleOn(DefaultScheduler())
}

// ScheduleOn queues the task on s and returns its handle. The AsyncTask is
// consumed.
func (t *AsyncTask) ScheduleOn(s *Scheduler) *WaitHandle {
	h := &WaitHandle{}
	if t.p != nil {
		h.p = t.p
		node := &t.p.Schedulable
		t.p = nil
		s.ScheduleLocally(node)
	}
	return h
}

// Close releases a never-scheduled task's frame.
func (t *AsyncTask) Close() {
	if t.p != nil {
		t.p.release()
		t.p = nil
	}
}

// WaitHandle owns a scheduled task until closed. It reports and awaits
// completion; Close releases the task frame under the task's scheduling
// flags, mirroring the allocation path.
type WaitHandle struct {
	p *promise
}

// Valid reports whether the handle still owns a task.
func (h *WaitHandle) Valid() bool {
	return h != nil && h.p != nil
}

// Done reports whether the task has completed. Handles that own nothing
// count as done.
func (h *WaitHandle) Done() bool {
	if !h.Valid() {
		return true
	}
	return h.p.completed()
}

// Ready makes a WaitHandle awaitable from inside a task.
func (h *WaitHandle) Ready() bool {
	return h.Done()
}

// Wait blocks the calling goroutine until the task completes. Call it from
// outside the pool; a task awaiting another task should use
// TaskContext.Await instead, which suspends rather than blocking a worker.
func (h *WaitHandle) Wait() {
	if h.Valid() {
		<-h.p.safelyDone
	}
}

// Frame returns the owned task's frame scratch bytes.
func (h *WaitHandle) Frame() []byte {
	if !h.Valid() {
		return nil
	}
	return h.p.frame.bytes()
}

// Close releases the owned task. Closing a handle whose task still holds a
// dependency is a programming error.
func (h *WaitHandle) Close() {
	if h.Valid() {
		h.p.release()
		h.p = nil
	}
}

// ScheduleTasksEvenly distributes a batch of tasks across distinct workers
// of the default scheduler in one chain, returning their handles.
func ScheduleTasksEvenly(tasks []*AsyncTask) []*WaitHandle {
	return ScheduleTasksEvenlyOn(DefaultScheduler(), tasks)
}

// ScheduleTasksEvenlyOn is ScheduleTasksEvenly on an explicit scheduler.
// Tasks already consumed are skipped; their handles come back invalid.
func ScheduleTasksEvenlyOn(s *Scheduler, tasks []*AsyncTask) []*WaitHandle {
	handles := make([]*WaitHandle, len(tasks))
	var group *Schedulable
	for i, t := range tasks {
		handles[i] = &WaitHandle{}
		if t == nil || t.p == nil {
			continue
		}
		node := &t.p.Schedulable
		node.next = group
		group = node
		handles[i].p = t.p
		t.p = nil
	}
	if group != nil {
		s.ScheduleEvenly(group)
	}
	return handles
}
