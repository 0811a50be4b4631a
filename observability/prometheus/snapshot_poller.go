package prometheus

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/Swind/go-async-scheduler/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// SchedulerSnapshotProvider provides current scheduler stats snapshots.
type SchedulerSnapshotProvider interface {
	Stats() core.SchedulerStats
}

// AllocatorSnapshotProvider provides current allocator stats snapshots.
type AllocatorSnapshotProvider interface {
	Stats() core.AllocatorStats
}

// SnapshotPoller periodically exports scheduler and allocator Stats()
// snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval   time.Duration
	collectors *SchedulerCollectors

	schedulersMu sync.RWMutex
	schedulers   map[string]SchedulerSnapshotProvider

	allocatorsMu sync.RWMutex
	allocators   map[string]AllocatorSnapshotProvider

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if interval <= 0 {
		interval = time.Second
	}
	collectors, err := NewSchedulerCollectors(namespace, reg)
	if err != nil {
		return nil, err
	}
	return &SnapshotPoller{
		interval:   interval,
		collectors: collectors,
		schedulers: make(map[string]SchedulerSnapshotProvider),
		allocators: make(map[string]AllocatorSnapshotProvider),
	}, nil
}

// RegisterScheduler adds a scheduler to the polling set under the given name.
func (p *SnapshotPoller) RegisterScheduler(name string, provider SchedulerSnapshotProvider) {
	p.schedulersMu.Lock()
	defer p.schedulersMu.Unlock()
	p.schedulers[name] = provider
}

// RegisterAllocator adds an allocator to the polling set under the given name.
func (p *SnapshotPoller) RegisterAllocator(name string, provider AllocatorSnapshotProvider) {
	p.allocatorsMu.Lock()
	defer p.allocatorsMu.Unlock()
	p.allocators[name] = provider
}

// Start begins periodic polling. Safe to call once; further calls are no-ops
// until Stop.
func (p *SnapshotPoller) Start(ctx context.Context) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.pollLoop(ctx)
}

// Stop halts polling and waits for the poll loop to finish.
func (p *SnapshotPoller) Stop() {
	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.running = false
	p.stateMu.Unlock()

	cancel()
	<-done
}

func (p *SnapshotPoller) pollLoop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce()
		}
	}
}

// PollOnce exports one snapshot of every registered provider.
func (p *SnapshotPoller) PollOnce() {
	p.schedulersMu.RLock()
	for name, provider := range p.schedulers {
		stats := provider.Stats()
		c := p.collectors
		c.workerCount.WithLabelValues(name).Set(float64(stats.Workers))
		c.fuzzingEnabled.WithLabelValues(name).Set(boolGauge(stats.Fuzzing))
		c.scheduledReady.WithLabelValues(name).Set(float64(stats.ScheduledReady))
		c.scheduledBlocked.WithLabelValues(name).Set(float64(stats.ScheduledBlocked))
		c.tasksExecuted.WithLabelValues(name).Set(float64(stats.Executed))
		c.workSteals.WithLabelValues(name).Set(float64(stats.Steals))
		c.blockedPromotions.WithLabelValues(name).Set(float64(stats.BlockedPromotions))
		c.idleYields.WithLabelValues(name).Set(float64(stats.IdleYields))
	}
	p.schedulersMu.RUnlock()

	p.allocatorsMu.RLock()
	for name, provider := range p.allocators {
		stats := provider.Stats()
		pageSize := strconv.FormatUint(stats.PageSize, 10)
		c := p.collectors
		c.allocPagesMapped.WithLabelValues(name, pageSize).Set(float64(stats.PagesMapped))
		c.allocPagesUnmapped.WithLabelValues(name, pageSize).Set(float64(stats.PagesUnmapped))
		c.allocPagesReused.WithLabelValues(name, pageSize).Set(float64(stats.PagesReused))
		c.allocPagesCached.WithLabelValues(name, pageSize).Set(float64(stats.PagesCached))
		c.allocCacheHits.WithLabelValues(name, pageSize).Set(float64(stats.CacheHits))
		c.allocOversized.WithLabelValues(name, pageSize).Set(float64(stats.OversizedAllocs))
	}
	p.allocatorsMu.RUnlock()
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
