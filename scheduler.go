package asyncsched

import "github.com/Swind/go-async-scheduler/core"

// =============================================================================
// Global Scheduler Helper (Singleton)
// =============================================================================

// Init initializes the global scheduler with the given configuration and
// starts its workers. A nil config selects the defaults (max(4, NumCPU)
// workers, no logging). If the global scheduler already exists, the
// existing instance is returned.
func Init(config *core.SchedulerConfig) *core.Scheduler {
	return core.InitDefaultScheduler(config)
}

// Get returns the global scheduler, creating and starting it with default
// configuration on first use.
func Get() *core.Scheduler {
	return core.DefaultScheduler()
}

// Exit stops the global scheduler: workers finish their current step, stop
// picking up work, and are joined. Outstanding tasks stay queued; drain
// them before calling Exit if they matter.
func Exit() {
	core.ExitDefaultScheduler()
}

// WorkerCount returns the global scheduler's pool size.
func WorkerCount() uint32 {
	return core.DefaultScheduler().WorkerCount()
}

// EnableFuzzing randomizes the global scheduler's placement decisions.
// Intended for test-time interleaving discovery.
func EnableFuzzing() {
	core.DefaultScheduler().EnableFuzzing()
}

// DisableFuzzing restores locality-biased placement.
func DisableFuzzing() {
	core.DefaultScheduler().DisableFuzzing()
}
