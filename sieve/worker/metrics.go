package worker

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// PerformanceMetrics defines the interface for performance tracking
type PerformanceMetrics interface {
	GetMetrics() map[string]interface{}
}

// withMetrics attaches every counter of pm to e.
func withMetrics(e *zerolog.Event, pm PerformanceMetrics) *zerolog.Event {
	return e.Fields(pm.GetMetrics())
}

// WorkerMetrics counts the iterations of one worker. Fields are updated
// atomically by the owning worker and read by the reporter.
type WorkerMetrics struct {
	ID         int
	Iterations atomic.Int64
	Hits       atomic.Int64
	Skipped    atomic.Int64
}

// GetMetrics returns the worker counters as a map
func (wm *WorkerMetrics) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"id":         wm.ID,
		"iterations": wm.Iterations.Load(),
		"hits":       wm.Hits.Load(),
		"skipped":    wm.Skipped.Load(),
	}
}

// PoolMetrics aggregates the metrics of every worker in a pool.
type PoolMetrics struct {
	Started time.Time
	Workers []*WorkerMetrics
}

func newPoolMetrics(workers int) *PoolMetrics {
	pm := &PoolMetrics{
		Started: time.Now(),
		Workers: make([]*WorkerMetrics, workers),
	}
	for i := range pm.Workers {
		pm.Workers[i] = &WorkerMetrics{ID: i}
	}
	return pm
}

// Iterations returns the per-worker iteration counts.
func (pm *PoolMetrics) Iterations() []int64 {
	out := make([]int64, len(pm.Workers))
	for i, w := range pm.Workers {
		out[i] = w.Iterations.Load()
	}
	return out
}

// Totals sums the counters across workers.
func (pm *PoolMetrics) Totals() (iterations, hits, skipped int64) {
	for _, w := range pm.Workers {
		iterations += w.Iterations.Load()
		hits += w.Hits.Load()
		skipped += w.Skipped.Load()
	}
	return iterations, hits, skipped
}

// GetMetrics returns pool metrics as a map
func (pm *PoolMetrics) GetMetrics() map[string]interface{} {
	iterations, hits, skipped := pm.Totals()
	return map[string]interface{}{
		"workers":    len(pm.Workers),
		"iterations": iterations,
		"hits":       hits,
		"skipped":    skipped,
		"uptime":     time.Since(pm.Started),
	}
}
