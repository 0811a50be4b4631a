package core

import (
	"math"
	"sync/atomic"
)

// parallelForSplitTarget oversubscribes batches five-to-one against workers
// so stragglers shrink the tail instead of stretching it.
const parallelForSplitTarget = 5

// ParallelFor runs body(i) for every i in [0, count) across up to
// maxWorkers helper tasks plus the caller. All participants claim batches
// from a shared cursor; batch sizes shrink with the remaining work. Helper
// tasks are short-lived and run at the top of the priority range so they
// overtake the long-lived work that spawned them.
//
// The caller participates in the loop on its own goroutine and then awaits
// the helpers, so ParallelFor returns only after every index ran.
// count == 0 returns immediately without spawning anything.
func ParallelFor(tc *TaskContext, maxWorkers, count uint32, body func(tc *TaskContext, index uint32)) {
	if count == 0 {
		return
	}

	numWorkers := min(count, tc.Scheduler().WorkerCount(), maxWorkers+1) - 1

	var cursor atomic.Uint32
	worker := func(wtc *TaskContext) {
		batchSize := max(1, count/(numWorkers+1)/parallelForSplitTarget)
		for {
			startIndex := cursor.Add(batchSize) - batchSize
			if startIndex >= count {
				break
			}
			endIndex := min(count, startIndex+batchSize)
			for i := startIndex; i < endIndex; i++ {
				body(wtc, i)
			}
			batchSize = max(1, (count-startIndex)/(numWorkers+1)/parallelForSplitTarget)
		}
	}

	desc := AsyncTaskDesc{
		Flags:    FlagsShortLived,
		Priority: math.MaxInt32,
	}

	tasks := make([]*AsyncTask, numWorkers)
	for i := range tasks {
		tasks[i] = tc.NewTask(desc, worker)
	}
	handles := ScheduleTasksEvenlyOn(tc.Scheduler(), tasks)

	tc.Call(desc, worker)

	tc.Await(NewAwaitAll(handles))
	for _, h := range handles {
		h.Close()
	}
}
