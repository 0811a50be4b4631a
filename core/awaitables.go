package core

import "sync/atomic"

// AwaitAll is ready when every handle in the set is done. Each poll advances
// a cursor past the prefix of already-done handles, so repeated polls only
// pay for the remainder.
type AwaitAll struct {
	handles []*WaitHandle
}

// NewAwaitAll builds a join point over the given handles. The slice is
// consumed cursor-wise; callers keep ownership of the handles themselves.
func NewAwaitAll(handles []*WaitHandle) *AwaitAll {
	return &AwaitAll{handles: handles}
}

// Ready reports whether every remaining handle is done.
func (a *AwaitAll) Ready() bool {
	for i, h := range a.handles {
		if !h.Ready() {
			a.handles = a.handles[i:]
			return false
		}
	}
	a.handles = nil
	return true
}

// AwaitAny is ready when some valid handle is done; Index reports which one.
// Polls scan forward from the last hit and skip handles that no longer own a
// task.
type AwaitAny struct {
	handles []*WaitHandle
	index   int
}

// NewAwaitAny builds a select point over the given handles.
func NewAwaitAny(handles []*WaitHandle) *AwaitAny {
	return &AwaitAny{handles: handles}
}

// Ready reports whether some handle is done, remembering its index.
func (a *AwaitAny) Ready() bool {
	for i := a.index; i < len(a.handles); i++ {
		h := a.handles[i]
		if h.Valid() && h.Ready() {
			a.index = i
			return true
		}
	}
	return false
}

// Index returns the position of the handle that satisfied the wait.
func (a *AwaitAny) Index() int {
	return a.index
}

// =============================================================================
// ResourceLimiter
// =============================================================================

// ResourceLimiter bounds how much of an abstract resource concurrently
// admitted tasks may hold. Request reserves cost up front; the grant becomes
// ready once the reservation fits under the limit, and gives the cost back
// on release. The counter gates progress only, so it runs on relaxed
// atomics.
type ResourceLimiter struct {
	limit         int64
	resourceLimit atomic.Int64
}

// NewResourceLimiter creates a limiter with the given capacity; limits below
// one are raised to one.
func NewResourceLimiter(limit int64) *ResourceLimiter {
	if limit < 1 {
		limit = 1
	}
	l := &ResourceLimiter{limit: limit}
	l.resourceLimit.Store(limit)
	return l
}

// Request reserves cost against the limit and returns the grant to await.
// Negative costs count as zero.
func (l *ResourceLimiter) Request(cost int64) *ResourceGrant {
	if cost < 0 {
		cost = 0
	}
	l.resourceLimit.Add(-cost)
	return &ResourceGrant{cost: cost, limiter: l}
}

// Close asserts the limiter is quiescent: every grant has been released and
// the counter is back at the limit. Tearing down a limiter with outstanding
// grants is a programming error.
func (l *ResourceLimiter) Close() {
	assertf(l.resourceLimit.Load() == l.limit,
		"resource limiter closed with outstanding grants: %d of %d", l.resourceLimit.Load(), l.limit)
}

// ResourceGrant is the awaitable side of a reservation.
//
// The probe protocol is deliberately asymmetric with Request: Ready gives
// the reservation back (fetch_add) and admits the grant iff the counter was
// still positive before that, i.e. the reservation fit; Resume then takes
// the cost again for keeps. Done only loads, so blocked-queue re-tests are
// free of side effects.
type ResourceGrant struct {
	cost    int64
	limiter *ResourceLimiter
}

// Ready probes admission. Called once per await.
func (g *ResourceGrant) Ready() bool {
	return g.limiter.resourceLimit.Add(g.cost)-g.cost > 0
}

// Done re-tests a suspended grant without side effects.
func (g *ResourceGrant) Done() bool {
	return g.limiter.resourceLimit.Load() >= g.cost
}

// Resume re-reserves the admitted cost. Runs on the awaiting task after
// Ready or Done reported true.
func (g *ResourceGrant) Resume() {
	g.limiter.resourceLimit.Add(-g.cost)
}

// Release gives the held cost back, exactly once. Further calls are no-ops.
func (g *ResourceGrant) Release() {
	if g.cost != 0 {
		g.limiter.resourceLimit.Add(g.cost)
		g.cost = 0
	}
}
