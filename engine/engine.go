package engine

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-world/engine/profiler"
	"github.com/Carmen-Shannon/oxy-world/engine/registry"
	"github.com/Carmen-Shannon/oxy-world/engine/renderer"
	"github.com/Carmen-Shannon/oxy-world/engine/world"
	"go.uber.org/zap"
)

// engine implements the Engine interface.
// Coordinates the tick and render goroutines around one world and one renderer.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running atomic.Bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	world    world.World
	renderer renderer.Renderer
	log      *zap.Logger

	profiler         *profiler.Profiler
	profilerInterval time.Duration
	profilingEnabled atomic.Bool

	engineTickRate time.Duration
	callbackMu     *sync.RWMutex
	tickCallback   func(deltaTime float32)
	frameCallback  func(info registry.DrawInfo, deltaTime float32)

	renderFrameLimit atomic.Int64 // minimum frame duration in ns; 0 = uncapped
	skippedFrames    atomic.Uint64
}

// Engine is the main entry point for a running world.
// It owns the render goroutine, which holds the rendering context and uploads the instance
// transform buffer every frame, and the tick goroutine, which indexes instances whose models
// have finished loading.
type Engine interface {
	// World returns the world the engine drives.
	World() world.World

	// Renderer returns the renderer the engine drives.
	Renderer() renderer.Renderer

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in ticks per second.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick, after pending
	// instances have been resolved.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetFrameCallback registers the function called on the render goroutine after each
	// successful buffer sync. The draw info is what an instanced draw would consume.
	//
	// Parameters:
	//   - callback: function receiving the draw info and the delta time in seconds
	SetFrameCallback(callback func(info registry.DrawInfo, deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// SkippedFrames returns the number of frames whose draw was skipped because the buffer sync failed.
	SkippedFrames() uint64

	// Run starts the tick and render goroutines and blocks until Quit is called
	// or the render goroutine recovers from a panic.
	Run()

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

var _ Engine = &engine{}

// NewEngine creates a new Engine for the given world and renderer.
// Panics if either is nil.
//
// Parameters:
//   - w: the world to drive
//   - r: the renderer whose frames gate transform buffer uploads
//   - options: functional options for engine configuration (profiling, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(w world.World, r renderer.Renderer, options ...EngineBuilderOption) Engine {
	if w == nil || r == nil {
		panic("engine: world and renderer must not be nil")
	}
	e := &engine{
		tickRateChannel:  make(chan time.Duration, 1),
		quitChannel:      make(chan struct{}),
		world:            w,
		renderer:         r,
		log:              zap.NewNop(),
		profilerInterval: time.Second,
		engineTickRate:   time.Second / 60,
		callbackMu:       &sync.RWMutex{},
	}
	for _, opt := range options {
		opt(e)
	}

	e.profiler = profiler.NewProfiler(
		profiler.WithLogger(e.log),
		profiler.WithInterval(e.profilerInterval),
		profiler.WithRegistry(w.Registry()),
		profiler.WithQueue(w.Queue()),
	)
	return e
}

func (e *engine) World() world.World {
	return e.world
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Run() {
	e.running.Store(true)
	e.log.Info("engine started",
		zap.Duration("tick_rate", e.engineTickRate),
		zap.Stringer("backend", e.renderer.BackendType()),
	)
	e.handle()
	e.wg.Wait()
	e.running.Store(false)
	e.log.Info("engine stopped", zap.Uint64("frames", e.renderer.FrameCount()))
}

func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

// handle launches the tick and render goroutines, tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender()
}

// handleEngine runs the fixed-rate tick loop. Each tick promotes pending instances, checks the
// queue worker, then fires the tick callback.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()
	workerLost := false

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			e.world.ResolvePending()

			q := e.world.Queue()
			if !workerLost && !q.Closed() && !q.Alive() {
				workerLost = true
				e.log.Error("update queue worker is not running", zap.Time("last_beat", q.LastBeat()))
			}

			e.callbackMu.RLock()
			cb := e.tickCallback
			e.callbackMu.RUnlock()
			if cb != nil {
				cb(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
		}
	}
}

// handleRender runs the render loop on a pinned OS thread, since the rendering context belongs
// to the thread that drives it. Every frame: BeginFrame, sync the transform buffer, EndFrame.
// A failed sync skips the draw for that frame and is retried on the next one.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) handleRender() {
	defer e.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("render goroutine recovered from panic", zap.Any("panic", r))
			e.signalQuit()
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		e.renderFrame(dt)

		if e.profilingEnabled.Load() {
			e.profiler.Tick()
		}

		if limit := time.Duration(e.renderFrameLimit.Load()); limit > 0 {
			if remaining := limit - time.Since(lastRender); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

func (e *engine) renderFrame(dt float32) {
	frame, err := e.renderer.BeginFrame()
	if err != nil {
		e.log.Warn("begin frame failed", zap.Error(err))
		return
	}

	info, err := e.world.SyncFrame(frame)
	e.renderer.EndFrame(frame)
	if err != nil {
		e.skippedFrames.Add(1)
		if errors.Is(err, registry.ErrBufferGrowth) {
			e.log.Warn("transform buffer sync failed, skipping draw", zap.Uint64("frame", frame.ID()), zap.Error(err))
		} else {
			e.log.Error("transform buffer sync failed", zap.Error(err))
		}
		return
	}

	e.callbackMu.RLock()
	cb := e.frameCallback
	e.callbackMu.RUnlock()
	if cb != nil {
		cb(info, dt)
	}
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled.Store(true)
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled.Store(false)
}

// SetTickRate sets the engine tick rate in ticks per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running.Load() {
		e.engineTickRate = newRate
		return
	}
	// Non-blocking send - if channel is full, replace the pending value
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.callbackMu.Lock()
	defer e.callbackMu.Unlock()
	e.tickCallback = callback
}

func (e *engine) SetFrameCallback(callback func(info registry.DrawInfo, deltaTime float32)) {
	e.callbackMu.Lock()
	defer e.callbackMu.Unlock()
	e.frameCallback = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	e.renderFrameLimit.Store(int64(frameDuration(fps)))
}

func (e *engine) SkippedFrames() uint64 {
	return e.skippedFrames.Load()
}

func frameDuration(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}
