package core

import (
	"math/rand/v2"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Page sizes. Both must be powers of two strictly greater than the header,
// and page-size aligned in memory so the header is recoverable from any
// suballocation by masking the low bits of its address.
const (
	// DefaultPageSize backs general short-lived allocations.
	DefaultPageSize = 64 * 1024

	// TaskFramePageSize backs short-lived task frames, which come and go in
	// large bursts.
	TaskFramePageSize = 2 * 1024 * 1024

	// DefaultAllocAlignment is used when callers have no stricter need.
	DefaultAllocAlignment = 16
)

// refcountSentinel is the initial refcount of an open page. Each
// suballocation effectively contributes +1 of live count; finalize subtracts
// refcountSentinel - suballocationCount so the remainder equals the number
// of outstanding suballocations, and the page is freeable at zero.
const refcountSentinel = ^uint64(0)

// pageHeader sits at the start of every page. refcount is the only field
// touched after finalize; suballocationCount and suballocationOffset are
// mutated only by the shard that owns the page while it is active, and live
// on their own cache line so concurrent frees of sibling pages do not false
// share with the bump cursor.
type pageHeader struct {
	refcount  atomic.Uint64
	pageSize  uintptr
	cacheLink *pageHeader

	_                   [cacheLineSize - 3*8]byte
	suballocationCount  uintptr
	suballocationOffset uintptr
}

const pageHeaderSize = unsafe.Sizeof(pageHeader{})

// allocShard is one owner's active page. The mutex is uncontended when each
// worker sticks to its own shard; it exists so that off-pool goroutines can
// share a shard safely.
type allocShard struct {
	mu     sync.Mutex
	header *pageHeader
	_      [cacheLineSize]byte
}

// LinearAllocator is a bump allocator over page-aligned pages with
// per-page reference counting. Alloc bumps a per-shard active page;
// exhausted pages are finalized and replaced from a per-size freelist.
// Free recovers the header by masking the pointer and drops the refcount;
// the page returns to the freelist (or the OS, for oversized pages) when
// the last suballocation is freed.
//
// Page memory is not scanned by the garbage collector: suballocations must
// hold pointer-free data only.
type LinearAllocator struct {
	pageSize uintptr
	shards   []allocShard

	cacheMu     sync.Mutex
	cacheHeader *pageHeader

	pagesMapped     atomic.Int64
	pagesUnmapped   atomic.Int64
	pagesReused     atomic.Int64
	cacheHits       atomic.Int64
	cachedPages     atomic.Int64
	oversizedAllocs atomic.Int64
}

// NewLinearAllocator creates an allocator handing out suballocations from
// pages of the given size. The shard count matches the scheduler's default
// worker count, max(4, NumCPU), so each worker can pin its own shard.
func NewLinearAllocator(pageSize uintptr) *LinearAllocator {
	assertf(pageSize > pageHeaderSize, "page size %d must exceed the header", pageSize)
	assertf(pageSize&(pageSize-1) == 0, "page size %d must be a power of two", pageSize)
	shardCount := defaultWorkerCount()
	return &LinearAllocator{
		pageSize: pageSize,
		shards:   make([]allocShard, shardCount),
	}
}

// PageSize returns the regular page size.
func (a *LinearAllocator) PageSize() uintptr {
	return a.pageSize
}

// Alloc returns size bytes at the requested alignment from an arbitrary
// shard. Alignment must be a power of two.
func (a *LinearAllocator) Alloc(size, alignment uintptr) unsafe.Pointer {
	return a.AllocPinned(RandomIndex, size, alignment)
}

// AllocPinned is Alloc with a shard hint, used by workers to keep their bump
// cursor hot. Hints at or beyond the shard count pick a random shard.
func (a *LinearAllocator) AllocPinned(hint uint32, size, alignment uintptr) unsafe.Pointer {
	assertf(alignment != 0 && alignment&(alignment-1) == 0, "alignment %d is not a power of two", alignment)
	if hint >= uint32(len(a.shards)) {
		hint = rand.Uint32N(uint32(len(a.shards)))
	}
	shard := &a.shards[hint]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	header := shard.header
	if header == nil {
		header = a.mapPage(a.pageSize)
		shard.header = header
	}

	for {
		alignedOffset := alignUp(header.suballocationOffset, alignment)
		totalNeeded := alignedOffset + size
		if totalNeeded <= a.pageSize {
			// Regular suballocation.
			header.suballocationCount++
			header.suballocationOffset = totalNeeded
			return unsafe.Add(unsafe.Pointer(header), alignedOffset)
		}

		singleOffset := alignUp(pageHeaderSize, alignment)
		if singleOffset+size > a.pageSize {
			// Oversized: a dedicated page holding exactly this allocation.
			oversized := a.mapPage(singleOffset + size)
			oversized.refcount.Store(1)
			a.oversizedAllocs.Add(1)
			return unsafe.Add(unsafe.Pointer(oversized), singleOffset)
		}

		header = a.finalize(shard)
	}
}

// Free releases one suballocation. The header is recovered by masking the
// pointer down to the page boundary; when the last outstanding suballocation
// of a finalized page is freed, a regular page goes back to the freelist and
// an oversized page back to the OS.
func (a *LinearAllocator) Free(p unsafe.Pointer) {
	header := (*pageHeader)(unsafe.Pointer(uintptr(p) &^ (a.pageSize - 1)))
	if header.refcount.Add(^uint64(0)) == 0 {
		if header.pageSize == a.pageSize {
			a.returnToCache(header)
		} else {
			a.unmapPage(header)
		}
	}
}

// finalize seals the shard's active page and installs a replacement. The
// refcount is dropped by sentinel-minus-count; if that already reaches zero
// (every suballocation was freed while the page was still open) the same
// page is reused in place, otherwise a cached or freshly mapped page takes
// over and the sealed page is left to its outstanding frees.
func (a *LinearAllocator) finalize(shard *allocShard) *pageHeader {
	header := shard.header
	adjustment := refcountSentinel - uint64(header.suballocationCount)
	if subUint64(&header.refcount, adjustment) == 0 {
		a.pagesReused.Add(1)
		initPageHeader(header, header.pageSize)
	} else {
		replacement := a.getFromCache()
		if replacement == nil {
			replacement = a.mapPage(a.pageSize)
		} else {
			initPageHeader(replacement, a.pageSize)
		}
		shard.header = replacement
	}
	return shard.header
}

// Close finalizes every shard and drains the freelist back to the OS.
// Suballocations still outstanding at this point are leaks and trap.
func (a *LinearAllocator) Close() {
	for i := range a.shards {
		shard := &a.shards[i]
		shard.mu.Lock()
		header := shard.header
		shard.header = nil
		shard.mu.Unlock()
		if header == nil {
			continue
		}
		adjustment := refcountSentinel - uint64(header.suballocationCount)
		remaining := subUint64(&header.refcount, adjustment)
		assertf(remaining == 0, "leaking %d suballocations", remaining)
		a.unmapPage(header)
	}

	a.cacheMu.Lock()
	header := a.cacheHeader
	a.cacheHeader = nil
	a.cacheMu.Unlock()
	for header != nil {
		next := header.cacheLink
		a.cachedPages.Add(-1)
		a.unmapPage(header)
		header = next
	}
}

func (a *LinearAllocator) getFromCache() *pageHeader {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()
	if a.cacheHeader == nil {
		return nil
	}
	header := a.cacheHeader
	a.cacheHeader = header.cacheLink
	a.cacheHits.Add(1)
	a.cachedPages.Add(-1)
	return header
}

func (a *LinearAllocator) returnToCache(header *pageHeader) {
	a.cacheMu.Lock()
	header.cacheLink = a.cacheHeader
	a.cacheHeader = header
	a.cacheMu.Unlock()
	a.cachedPages.Add(1)
}

// mapPage maps a fresh page of the given size, aligned to the allocator's
// page size so header recovery by masking works, and writes its header.
func (a *LinearAllocator) mapPage(size uintptr) *pageHeader {
	base := mapAligned(size, a.pageSize)
	a.pagesMapped.Add(1)
	header := (*pageHeader)(base)
	initPageHeader(header, size)
	return header
}

func (a *LinearAllocator) unmapPage(header *pageHeader) {
	size := alignUp(header.pageSize, uintptr(os.Getpagesize()))
	a.pagesUnmapped.Add(1)
	if err := unix.MunmapPtr(unsafe.Pointer(header), size); err != nil {
		assertf(false, "page unmapping failed: %v", err)
	}
}

func initPageHeader(header *pageHeader, pageSize uintptr) {
	header.refcount.Store(refcountSentinel)
	header.pageSize = pageSize
	header.cacheLink = nil
	header.suballocationCount = 0
	header.suballocationOffset = pageHeaderSize
}

// mapAligned maps size bytes aligned to align by over-mapping and trimming
// the misaligned head and tail. align must be a multiple of the OS page
// size, which holds for every power of two >= 4 KiB.
func mapAligned(size, align uintptr) unsafe.Pointer {
	osPage := uintptr(os.Getpagesize())
	mapped := alignUp(size, osPage)
	total := mapped + align
	base, err := unix.MmapPtr(-1, 0, nil, total,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		assertf(false, "page mapping of %d bytes failed: %v", total, err)
	}
	head := alignUp(uintptr(base), align) - uintptr(base)
	aligned := unsafe.Add(base, head)
	if head > 0 {
		if err := unix.MunmapPtr(base, head); err != nil {
			assertf(false, "page trim failed: %v", err)
		}
	}
	if tail := align - head; tail > 0 {
		if err := unix.MunmapPtr(unsafe.Add(aligned, mapped), tail); err != nil {
			assertf(false, "page trim failed: %v", err)
		}
	}
	return aligned
}

func alignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}

// subUint64 subtracts delta and returns the new value.
func subUint64(v *atomic.Uint64, delta uint64) uint64 {
	return v.Add(^(delta - 1))
}

func defaultWorkerCount() int {
	const workerThreadFloor = 4
	return max(workerThreadFloor, runtime.NumCPU())
}
