package core

import (
	"math/rand/v2"
	"testing"
)

// fibReference computes Fibonacci iteratively for expectations.
func fibReference(n uint64) uint64 {
	a, b := uint64(0), uint64(1)
	for i := uint64(0); i < n; i++ {
		a, b = b, a+b
	}
	return a
}

// fibTaskBody wraps one recursion step as a task body that reserves a
// limiter slot for its lifetime.
func fibTaskBody(out *uint64, limiter *ResourceLimiter, depth uint32, n uint64) TaskFunc {
	return func(tc *TaskContext) {
		grant := limiter.Request(1)
		defer grant.Release()
		fibCoro(tc, out, limiter, depth, n)
	}
}

// fibCoro computes fib(n) recursively, picking one of three sub-dispatch
// modes at random: plain inline recursion, inline child tasks with
// inherited flags, and scheduled short-lived tasks awaited through their
// handles.
func fibCoro(tc *TaskContext, out *uint64, limiter *ResourceLimiter, depth uint32, n uint64) {
	if n <= 1 {
		*out = n
		return
	}

	var a, b uint64
	switch {
	case rand.Uint32N(4) == 0:
		fibCoro(tc, &a, limiter, depth+1, n-1)
		fibCoro(tc, &b, limiter, depth+1, n-2)
	case rand.Uint32N(4) == 0:
		desc := AsyncTaskDesc{Flags: FlagsInherited, Priority: int32(depth)}
		tc.Call(desc, fibTaskBody(&a, limiter, depth+1, n-1))
		tc.Call(desc, fibTaskBody(&b, limiter, depth+1, n-2))
	default:
		desc := AsyncTaskDesc{Flags: FlagsShortLived, Priority: int32(depth)}
		ha := tc.Schedule(tc.NewTask(desc, fibTaskBody(&a, limiter, depth+1, n-1)))
		hb := tc.Schedule(tc.NewTask(desc, fibTaskBody(&b, limiter, depth+1, n-2)))
		tc.Await(hb)
		tc.Await(ha)
		hb.Close()
		ha.Close()
	}

	*out = a + b
}

// TestFibonacci_MixedDispatchModes verifies the recursive workload
// Given: A recursive Fibonacci mixing inline, inherited, and scheduled
//        sub-dispatch under a resource limiter
// When: fib(18) runs as a scheduled short-lived task
// Then: The result matches the reference and the limiter quiesces
func TestFibonacci_MixedDispatchModes(t *testing.T) {
	// Arrange
	s := newTestScheduler(t, nil)
	limiter := NewResourceLimiter(8)
	var result uint64

	// Act
	desc := AsyncTaskDesc{Flags: FlagsShortLived}
	handle := NewAsyncTask(desc, func(tc *TaskContext) {
		fibCoro(tc, &result, limiter, 0, 18)
	}).ScheduleOn(s)
	handle.Wait()
	handle.Close()

	// Assert
	if want := fibReference(18); result != want {
		t.Errorf("fib(18) = %d, want %d", result, want)
	}
	limiter.Close()
}

// TestFibonacci_ParallelForWithLimiter verifies the full end-to-end stack:
// parallel-for fan-out, limiter admission, mixed-mode recursion, and the
// frame allocator behind every short-lived task
// Given: 8 parallel fib(20) computations under a ResourceLimiter(8)
// When: The root task runs them through ParallelFor
// Then: Every output equals fib(20) and the sum checks out
func TestFibonacci_ParallelForWithLimiter(t *testing.T) {
	if testing.Short() {
		t.Skip("heavy recursive workload")
	}

	// Arrange
	const lanes = 8
	const n = 20
	s := newTestScheduler(t, nil)
	limiter := NewResourceLimiter(8)
	outs := make([]uint64, lanes)
	var sum uint64

	// Act
	desc := AsyncTaskDesc{Flags: FlagsShortLived}
	handle := NewAsyncTask(desc, func(tc *TaskContext) {
		ParallelFor(tc, lanes, lanes, func(wtc *TaskContext, index uint32) {
			grant := limiter.Request(1)
			wtc.Await(grant)
			defer grant.Release()
			fibCoro(wtc, &outs[index], limiter, 0, n)
		})
		for i := range outs {
			sum += outs[i]
		}
	}).ScheduleOn(s)
	handle.Wait()
	handle.Close()

	// Assert
	want := fibReference(n)
	for i, out := range outs {
		if out != want {
			t.Errorf("lane %d: fib(%d) = %d, want %d", i, n, out, want)
		}
	}
	if wantSum := uint64(lanes) * want; sum != wantSum {
		t.Errorf("sum = %d, want %d", sum, wantSum)
	}
	limiter.Close()
}
