package prometheus

import (
	"errors"
	"fmt"

	prom "github.com/prometheus/client_golang/prometheus"
)

// SchedulerCollectors holds the Prometheus collectors the snapshot poller
// writes scheduler and allocator snapshots into.
type SchedulerCollectors struct {
	workerCount       *prom.GaugeVec
	fuzzingEnabled    *prom.GaugeVec
	scheduledReady    *prom.GaugeVec
	scheduledBlocked  *prom.GaugeVec
	tasksExecuted     *prom.GaugeVec
	workSteals        *prom.GaugeVec
	blockedPromotions *prom.GaugeVec
	idleYields        *prom.GaugeVec

	allocPagesMapped   *prom.GaugeVec
	allocPagesUnmapped *prom.GaugeVec
	allocPagesReused   *prom.GaugeVec
	allocPagesCached   *prom.GaugeVec
	allocCacheHits     *prom.GaugeVec
	allocOversized     *prom.GaugeVec
}

// NewSchedulerCollectors creates and registers the collectors.
func NewSchedulerCollectors(namespace string, reg prom.Registerer) (*SchedulerCollectors, error) {
	if namespace == "" {
		namespace = "asyncsched"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	schedulerGauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{"scheduler"})
	}
	allocatorGauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{"allocator", "page_size"})
	}

	c := &SchedulerCollectors{
		workerCount:       schedulerGauge("worker_count", "Size of the worker pool."),
		fuzzingEnabled:    schedulerGauge("fuzzing_enabled", "Fuzz placement state (1=enabled, 0=disabled)."),
		scheduledReady:    schedulerGauge("scheduled_ready_total", "Schedulables routed to the ready docket, snapshot."),
		scheduledBlocked:  schedulerGauge("scheduled_blocked_total", "Schedulables routed to the blocked docket, snapshot."),
		tasksExecuted:     schedulerGauge("tasks_executed_total", "Execute calls performed by workers, snapshot."),
		workSteals:        schedulerGauge("work_steals_total", "Chains taken from another worker's stack, snapshot."),
		blockedPromotions: schedulerGauge("blocked_promotions_total", "Blocked schedulables that became ready, snapshot."),
		idleYields:        schedulerGauge("idle_yields_total", "Times an idle worker yielded its thread, snapshot."),

		allocPagesMapped:   allocatorGauge("allocator_pages_mapped_total", "Pages mapped from the OS, snapshot."),
		allocPagesUnmapped: allocatorGauge("allocator_pages_unmapped_total", "Pages returned to the OS, snapshot."),
		allocPagesReused:   allocatorGauge("allocator_pages_reused_total", "Pages reused in place at finalize, snapshot."),
		allocPagesCached:   allocatorGauge("allocator_pages_cached", "Pages currently in the freelist."),
		allocCacheHits:     allocatorGauge("allocator_cache_hits_total", "Pages served from the freelist, snapshot."),
		allocOversized:     allocatorGauge("allocator_oversized_total", "Oversized allocations on dedicated pages, snapshot."),
	}

	collectors := []**prom.GaugeVec{
		&c.workerCount, &c.fuzzingEnabled, &c.scheduledReady, &c.scheduledBlocked,
		&c.tasksExecuted, &c.workSteals, &c.blockedPromotions, &c.idleYields,
		&c.allocPagesMapped, &c.allocPagesUnmapped, &c.allocPagesReused,
		&c.allocPagesCached, &c.allocCacheHits, &c.allocOversized,
	}
	for _, collector := range collectors {
		registered, err := registerCollector(reg, *collector)
		if err != nil {
			return nil, err
		}
		*collector = registered
	}

	return c, nil
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
