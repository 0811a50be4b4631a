package core

// SchedulerStats represents runtime observability state for a scheduler.
type SchedulerStats struct {
	Workers           uint32
	Fuzzing           bool
	Exiting           bool
	ScheduledReady    int64
	ScheduledBlocked  int64
	Executed          int64
	Steals            int64
	BlockedPromotions int64
	IdleYields        int64
}

// Stats returns a point-in-time snapshot of the scheduler counters.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Workers:           s.workers,
		Fuzzing:           s.fuzzing.Load(),
		Exiting:           s.done.Load(),
		ScheduledReady:    s.scheduledReady.Load(),
		ScheduledBlocked:  s.scheduledBlocked.Load(),
		Executed:          s.executed.Load(),
		Steals:            s.steals.Load(),
		BlockedPromotions: s.blockedPromotions.Load(),
		IdleYields:        s.idleYields.Load(),
	}
}

// AllocatorStats represents runtime observability state for a linear
// allocator.
type AllocatorStats struct {
	PageSize        uint64
	PagesMapped     int64
	PagesUnmapped   int64
	PagesReused     int64
	PagesCached     int64
	CacheHits       int64
	OversizedAllocs int64
}

// Stats returns a point-in-time snapshot of the allocator counters.
func (a *LinearAllocator) Stats() AllocatorStats {
	return AllocatorStats{
		PageSize:        uint64(a.pageSize),
		PagesMapped:     a.pagesMapped.Load(),
		PagesUnmapped:   a.pagesUnmapped.Load(),
		PagesReused:     a.pagesReused.Load(),
		PagesCached:     a.cachedPages.Load(),
		CacheHits:       a.cacheHits.Load(),
		OversizedAllocs: a.oversizedAllocs.Load(),
	}
}
