package core

import (
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"
)

const (
	// sortWindowSize is how many nodes a worker peels off a popped chain,
	// sorts by priority, and executes per dispatch round.
	sortWindowSize = 6

	// idleYieldThreshold is the number of empty dispatch loops before a
	// worker yields its thread to the runtime.
	idleYieldThreshold = 9
)

// waitPrimes are the idle spin-burst lengths. Prime lengths decorrelate
// workers that ran out of work at the same instant.
var waitPrimes = [...]uint32{53, 97, 193, 389}

// ExecContext carries the execution environment through Execute calls: the
// owning scheduler and the docket index of the executing worker (RandomIndex
// off-pool). It replaces the per-thread state a worker would otherwise need,
// so continuations can be requeued with locality.
type ExecContext struct {
	sched     *Scheduler
	preferred uint32
}

// Scheduler returns the scheduler driving this execution.
func (ec *ExecContext) Scheduler() *Scheduler {
	return ec.sched
}

// PreferredIndex returns the executing worker's docket index, or RandomIndex
// when running outside the pool.
func (ec *ExecContext) PreferredIndex() uint32 {
	return ec.preferred
}

// SchedulerConfig holds configuration options for a Scheduler.
type SchedulerConfig struct {
	// Workers is the worker pool size. Zero means max(4, NumCPU).
	Workers int

	// Logger receives lifecycle events. Defaults to NoOpLogger.
	Logger Logger

	// Fuzzing starts the scheduler with fuzz placement enabled.
	Fuzzing bool
}

// DefaultSchedulerConfig returns a config with default values.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{}
}

// Scheduler multiplexes schedulables onto a fixed pool of worker
// goroutines. Ready work and blocked work live in two dockets of equal
// width; workers pull batches from their own stack, steal when starved, and
// re-test blocked work as a fallback.
type Scheduler struct {
	ready   *Docket
	blocked *Docket

	disableWorkStealing atomic.Uint32
	done                atomic.Bool
	fuzzing             atomic.Bool
	started             atomic.Bool

	workers uint32
	wg      sync.WaitGroup
	logger  Logger

	// Stats counters, exported via Stats().
	scheduledReady    atomic.Int64
	scheduledBlocked  atomic.Int64
	executed          atomic.Int64
	steals            atomic.Int64
	blockedPromotions atomic.Int64
	idleYields        atomic.Int64
}

// NewScheduler creates a scheduler. Workers do not run until Start.
func NewScheduler(config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	workers := config.Workers
	if workers <= 0 {
		workers = defaultWorkerCount()
	}
	logger := config.Logger
	if logger == nil {
		logger = NewNoOpLogger()
	}
	s := &Scheduler{
		ready:   NewDocket(uint32(workers)),
		blocked: NewDocket(uint32(workers)),
		workers: uint32(workers),
		logger:  logger,
	}
	s.fuzzing.Store(config.Fuzzing)
	return s
}

// Start launches the worker pool. Safe to call more than once.
func (s *Scheduler) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.logger.Info("scheduler starting", F("workers", s.workers))
	for i := uint32(0); i < s.workers; i++ {
		s.wg.Add(1)
		go s.workerMain(i)
	}
}

// WorkerCount returns the pool size, which equals the docket width.
func (s *Scheduler) WorkerCount() uint32 {
	return s.workers
}

// EnableFuzzing randomizes all placement decisions until disabled. Intended
// for test-time interleaving discovery, not production.
func (s *Scheduler) EnableFuzzing() {
	s.fuzzing.Store(true)
	s.logger.Info("fuzzing enabled")
}

// DisableFuzzing restores locality-biased placement.
func (s *Scheduler) DisableFuzzing() {
	s.fuzzing.Store(false)
	s.logger.Info("fuzzing disabled")
}

// Exit asks the workers to leave their loop. Workers finish the step they
// are on and do not pick up more work; outstanding items stay queued.
func (s *Scheduler) Exit() {
	s.done.Store(true)
	s.logger.Info("scheduler exiting")
}

// Join waits for all workers to leave after Exit.
func (s *Scheduler) Join() {
	s.wg.Wait()
}

// Stop is Exit followed by Join.
func (s *Scheduler) Stop() {
	s.Exit()
	s.Join()
}

// ScheduleRandomly routes the chain into a random worker's queues.
func (s *Scheduler) ScheduleRandomly(items *Schedulable) {
	s.scheduleItems(items, RandomIndex)
}

// ScheduleLocally routes the chain with the caller's locality. Off-pool
// callers have no worker index, so this places randomly; tasks running on
// the pool schedule through their TaskContext, which carries the worker
// index.
func (s *Scheduler) ScheduleLocally(items *Schedulable) {
	s.scheduleItems(items, RandomIndex)
}

// ScheduleEvenly spreads a batch over distinct workers. Work stealing is
// held disabled while the batch routes so the fan-out cannot collapse back
// onto one stack before every worker has seen its share.
func (s *Scheduler) ScheduleEvenly(items *Schedulable) {
	s.disableWorkStealing.Add(1)

	startIndex := rand.Uint32()
	workerCount := s.blocked.StackCount()
	for items != nil {
		next := items.next
		items.next = nil
		startIndex++
		s.scheduleItems(items, startIndex%workerCount)
		items = next
	}

	s.disableWorkStealing.Add(^uint32(0))
}

// ExecuteImmediately drains the chain synchronously on the caller's
// goroutine. Continuations returned by a step are appended to the remaining
// work; the tail pointer keeps the append O(1).
func (s *Scheduler) ExecuteImmediately(items *Schedulable) {
	if items == nil {
		return
	}
	ec := ExecContext{sched: s, preferred: RandomIndex}
	itemsTail := lastNode(items)
	for items != nil {
		next := items.next
		items.next = nil

		if continuations := items.runner.Execute(&ec); continuations != nil {
			if next == nil {
				next = continuations
			} else {
				itemsTail.next = continuations
			}
			itemsTail = lastNode(continuations)
		}
		s.executed.Add(1)
		items = next
	}
}

// scheduleItems splits the chain into ready and blocked sublists and routes
// each to its docket. Under fuzzing (and with stealing allowed) the
// preferred index is discarded so placement is uniformly random.
func (s *Scheduler) scheduleItems(items *Schedulable, preferredIndex uint32) {
	if items == nil {
		return
	}
	if s.disableWorkStealing.Load() == 0 && s.fuzzing.Load() {
		preferredIndex = RandomIndex
	}

	var split readySplit
	split.classify(items)

	if split.readyHead != nil {
		s.ready.PutMultipleItems(split.readyHead, split.readyTail, preferredIndex)
		s.scheduledReady.Add(int64(split.readyCount))
	}
	if split.blockedHead != nil {
		s.blocked.PutMultipleItems(split.blockedHead, split.blockedTail, preferredIndex)
		s.scheduledBlocked.Add(int64(split.blockedCount))
	}
}

// readySplit partitions a chain by IsReady while preserving arrival order
// within each sublist.
type readySplit struct {
	readyHead, readyTail     *Schedulable
	blockedHead, blockedTail *Schedulable
	readyCount, blockedCount int
}

func (rs *readySplit) classify(continuations *Schedulable) {
	forEachNode(continuations, func(node *Schedulable) {
		node.next = nil
		if node.IsReady() {
			if rs.readyHead != nil {
				rs.readyTail.next = node
			} else {
				rs.readyHead = node
			}
			rs.readyTail = node
			rs.readyCount++
		} else {
			if rs.blockedHead != nil {
				rs.blockedTail.next = node
			} else {
				rs.blockedHead = node
			}
			rs.blockedTail = node
			rs.blockedCount++
		}
	})
}

// takeSortAndSplit peels up to len(local) nodes off the front of the chain
// into the local window and returns the remainder with its tail. The window
// is sorted descending by priority, so the worker executes the best of the
// sampled prefix first while the remainder goes back to a docket in O(1).
func takeSortAndSplit(local []*Schedulable, processedNode *Schedulable) (remainder, remainderTail *Schedulable) {
	nodeCount := uint32(1)
	medianNode := processedNode
	local[nodeCount/2] = medianNode

	for processedNode.next != nil {
		if nodeCount%2 == 0 {
			medianNode = medianNode.next
			local[nodeCount/2] = medianNode
		}
		processedNode = processedNode.next
		nodeCount++
		if nodeCount > uint32(len(local)-1)*2 {
			break
		}
	}
	sortNodes(local)
	return medianNode.next, lastNode(processedNode)
}

// workerMain is the dispatch loop each worker runs until Exit.
func (s *Scheduler) workerMain(index uint32) {
	defer s.wg.Done()

	ec := ExecContext{sched: s, preferred: index}
	loopsWithoutAnyWork := uint32(0)
	var local [sortWindowSize]*Schedulable

	for !s.done.Load() {
		preferredIndex := index
		fuzzing := s.fuzzing.Load()
		stealingDisabled := s.disableWorkStealing.Load() != 0
		if !stealingDisabled && fuzzing {
			preferredIndex = RandomIndex
		}

		// Stealing only kicks in after two consecutive empty loops, so a
		// worker with a healthy local stack never probes its neighbors.
		ready, selectedIndex := s.ready.GetMultipleItems(preferredIndex,
			loopsWithoutAnyWork < 2 || stealingDisabled)
		if ready != nil {
			loopsWithoutAnyWork = 0
			if selectedIndex != index {
				s.steals.Add(1)
			}

			for i := range local {
				local[i] = nil
			}
			remainder, remainderTail := takeSortAndSplit(local[:], ready)

			// Stolen remainders go back where they were found so the
			// original owner keeps its locality.
			if remainder != nil && index != selectedIndex {
				s.ready.PutMultipleItems(remainder, remainderTail, selectedIndex)
			}

			var split readySplit
			for i := 0; i < len(local) && local[i] != nil; i++ {
				local[i].next = nil
				if continuations := local[i].runner.Execute(&ec); continuations != nil {
					split.classify(continuations)
				}
				s.executed.Add(1)
			}

			if split.readyHead != nil {
				s.ready.PutMultipleItems(split.readyHead, split.readyTail, preferredIndex)
			}
			if split.blockedHead != nil {
				s.blocked.PutMultipleItems(split.blockedHead, split.blockedTail, preferredIndex)
			}

			if remainder != nil && index == selectedIndex {
				s.ready.PutMultipleItems(remainder, remainderTail, index)
			}
			continue
		}

		blockedPreferred := preferredIndex
		if loopsWithoutAnyWork != 0 {
			blockedPreferred = RandomIndex
		}
		if blocked, _ := s.blocked.GetMultipleItems(blockedPreferred, stealingDisabled); blocked != nil {
			var split readySplit
			split.classify(blocked)

			if split.readyHead != nil {
				loopsWithoutAnyWork = 0
				s.blockedPromotions.Add(int64(split.readyCount))
				s.ready.PutMultipleItems(split.readyHead, split.readyTail, preferredIndex)
			}
			if split.blockedHead != nil {
				s.blocked.PutMultipleItems(split.blockedHead, split.blockedTail, preferredIndex)
			}
			continue
		}

		if loopsWithoutAnyWork < idleYieldThreshold {
			spins := waitPrimes[rand.IntN(len(waitPrimes))]
			for i := uint32(0); i < spins; i++ {
				if s.done.Load() {
					return
				}
			}
			loopsWithoutAnyWork++
		} else {
			runtime.Gosched()
			s.idleYields.Add(1)
			loopsWithoutAnyWork = 0
		}
	}
}

// =============================================================================
// Default scheduler (process-wide singleton)
// =============================================================================

var (
	defaultSchedulerMu sync.Mutex
	defaultScheduler   *Scheduler
)

// DefaultScheduler returns the process-wide scheduler, creating and starting
// it with default configuration on first use.
func DefaultScheduler() *Scheduler {
	defaultSchedulerMu.Lock()
	defer defaultSchedulerMu.Unlock()
	if defaultScheduler == nil {
		defaultScheduler = NewScheduler(nil)
		defaultScheduler.Start()
	}
	return defaultScheduler
}

// InitDefaultScheduler creates the process-wide scheduler with an explicit
// config. It is a no-op if the default scheduler already exists; the
// existing instance is returned.
func InitDefaultScheduler(config *SchedulerConfig) *Scheduler {
	defaultSchedulerMu.Lock()
	defer defaultSchedulerMu.Unlock()
	if defaultScheduler == nil {
		defaultScheduler = NewScheduler(config)
		defaultScheduler.Start()
	}
	return defaultScheduler
}

// ExitDefaultScheduler stops the process-wide scheduler, if any, and forgets
// it so a later DefaultScheduler call builds a fresh one.
func ExitDefaultScheduler() {
	defaultSchedulerMu.Lock()
	defer defaultSchedulerMu.Unlock()
	if defaultScheduler != nil {
		defaultScheduler.Stop()
		defaultScheduler = nil
	}
}
