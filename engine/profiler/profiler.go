package profiler

import (
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-world/engine/registry"
	"github.com/Carmen-Shannon/oxy-world/engine/update_queue"
	"go.uber.org/zap"
)

// Profiler tracks frame rate, memory, registry and queue statistics.
// Outputs stats to the log at a configurable interval.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	lastApplied    uint64

	log   *zap.Logger
	reg   registry.Registry
	queue update_queue.UpdateQueue
}

// NewProfiler creates a new Profiler with the options applied.
// Update interval defaults to 1 second.
//
// Parameters:
//   - options: a variadic list of ProfilerBuilderOption functions
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
		log:            zap.NewNop(),
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, heap usage, allocation rate, GC count/pause times, total memory,
// and when attached, registry counts, transform buffer capacity and update queue depth.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)

	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	// Alloc: live heap. TotalAlloc: cumulative, tracks churn. Sys: process footprint.
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024

	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		// PauseNs is a circular buffer of last 256 GC pauses
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000

		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			pause := p.memStats.PauseNs[i%256] / 1000
			if pause > maxPauseUs {
				maxPauseUs = pause
			}
		}
	}

	fields := []zap.Field{
		zap.Float64("fps", fps),
		zap.Float64("heap_mb", allocMB),
		zap.Float64("alloc_rate_mb_s", allocRateMB),
		zap.Uint32("gc", gcCount),
		zap.Uint64("gc_last_us", lastPauseUs),
		zap.Uint64("gc_max_us", maxPauseUs),
		zap.Float64("sys_mb", sysMB),
	}
	if p.reg != nil {
		st := p.reg.Stats()
		fields = append(fields,
			zap.Int("points", st.Points),
			zap.Int("compounds", st.Compounds),
			zap.Int("pending", st.Pending),
			zap.Int("buffer_used", st.BufferUsed),
			zap.Int("buffer_capacity", st.DeviceCapacity),
			zap.Bool("duplicates", st.DuplicatesFound),
		)
	}
	if p.queue != nil {
		st := p.queue.Stats()
		fields = append(fields,
			zap.Int("queue_depth", st.Pending),
			zap.Float64("applied_per_s", float64(st.Applied-p.lastApplied)/elapsed.Seconds()),
			zap.Uint64("apply_failed", st.Failed),
			zap.Bool("worker_alive", p.queue.Alive()),
		)
		p.lastApplied = st.Applied
	}
	p.log.Info("profile", fields...)

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
