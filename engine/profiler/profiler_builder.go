package profiler

import (
	"time"

	"github.com/Carmen-Shannon/oxy-world/engine/registry"
	"github.com/Carmen-Shannon/oxy-world/engine/update_queue"
	"go.uber.org/zap"
)

// ProfilerBuilderOption is a functional option for configuring a Profiler via NewProfiler.
type ProfilerBuilderOption func(*Profiler)

func WithLogger(log *zap.Logger) ProfilerBuilderOption {
	return func(p *Profiler) {
		if log != nil {
			p.log = log.Named("profiler")
		}
	}
}

// WithInterval sets how often Tick logs. Values <= 0 keep the 1 second default.
func WithInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// WithRegistry adds registry and transform buffer counts to every report.
func WithRegistry(reg registry.Registry) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.reg = reg
	}
}

// WithQueue adds update queue depth and throughput to every report.
func WithQueue(queue update_queue.UpdateQueue) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.queue = queue
	}
}
