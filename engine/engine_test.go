package engine

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-world/common"
	"github.com/Carmen-Shannon/oxy-world/engine/config"
	"github.com/Carmen-Shannon/oxy-world/engine/instance"
	"github.com/Carmen-Shannon/oxy-world/engine/model"
	"github.com/Carmen-Shannon/oxy-world/engine/registry"
	"github.com/Carmen-Shannon/oxy-world/engine/renderer"
	"github.com/Carmen-Shannon/oxy-world/engine/tile_index"
	"github.com/Carmen-Shannon/oxy-world/engine/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var unitBox = common.AABB{Min: [3]float32{-1, 0, -1}, Max: [3]float32{1, 2, 1}}

func newTestEngine(t *testing.T, options ...EngineBuilderOption) Engine {
	t.Helper()
	cfg := config.Defaults().World
	cfg.TileSize = 10
	w := world.NewWorld(world.WithWorldConfig(cfg))
	t.Cleanup(w.Close)

	r, err := renderer.NewRenderer(renderer.BackendTypeHost)
	require.NoError(t, err)
	t.Cleanup(r.Release)

	options = append([]EngineBuilderOption{WithRenderFrameLimit(500), WithTickInterval(time.Millisecond)}, options...)
	return NewEngine(w, r, options...)
}

func runAsync(e Engine) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()
	return done
}

func waitStopped(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestFrameCallbackSeesUploadedInstances(t *testing.T) {
	e := newTestEngine(t)
	m := model.NewModel(model.WithName("rock"), model.WithBounds(unitBox), model.WithLoaded(true))
	for i := range 12 {
		_, err := e.World().AddInstance(instance.NewInstance(instance.WithModel(m), instance.WithPosition(float32(i)+0.5, 0, 5)), 0)
		require.NoError(t, err)
	}

	var frames atomic.Int32
	var last atomic.Uint32
	e.SetFrameCallback(func(info registry.DrawInfo, _ float32) {
		last.Store(info.Count)
		if frames.Add(1) >= 3 {
			e.Quit()
		}
	})

	waitStopped(t, runAsync(e))
	assert.GreaterOrEqual(t, frames.Load(), int32(3))
	assert.Equal(t, uint32(12), last.Load())
	assert.GreaterOrEqual(t, e.Renderer().FrameCount(), uint64(3))
	assert.Zero(t, e.SkippedFrames())
}

func TestTickResolvesPendingInstances(t *testing.T) {
	e := newTestEngine(t)
	late := model.NewModel(model.WithName("late"), model.WithBounds(unitBox))
	uid, err := e.World().AddInstance(instance.NewInstance(instance.WithModel(late), instance.WithPosition(5, 0, 5)), 0)
	require.NoError(t, err)

	var ticks atomic.Int32
	e.SetTickCallback(func(float32) { ticks.Add(1) })

	done := runAsync(e)
	late.SetLoaded(true)

	require.Eventually(t, func() bool {
		return e.World().Index().Contains(tile_index.TileCoord{X: 0, Z: 0}, uid)
	}, 2*time.Second, 5*time.Millisecond)

	e.Quit()
	e.Quit()
	waitStopped(t, done)
	assert.Positive(t, ticks.Load())
}

func TestRenderPanicQuitsEngine(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	e := newTestEngine(t, WithLogger(zap.New(core)))
	e.SetFrameCallback(func(registry.DrawInfo, float32) {
		panic("draw failed")
	})

	waitStopped(t, runAsync(e))
	entries := logs.FilterMessage("render goroutine recovered from panic").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "draw failed", entries[0].ContextMap()["panic"])
}

func TestProfilerLogsWhileRunning(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	e := newTestEngine(t,
		WithLogger(zap.New(core)),
		WithProfiling(true),
		WithProfilerInterval(10*time.Millisecond),
	)
	done := runAsync(e)

	require.Eventually(t, func() bool {
		return logs.FilterMessage("profile").Len() > 0
	}, 2*time.Second, 5*time.Millisecond)

	e.DisableProfiler()
	e.Quit()
	waitStopped(t, done)

	entry := logs.FilterMessage("profile").All()[0]
	assert.Equal(t, "engine.profiler", entry.LoggerName)
	assert.Contains(t, entry.ContextMap(), "queue_depth")
}

func TestNewEnginePanicsOnNil(t *testing.T) {
	assert.Panics(t, func() { NewEngine(nil, nil) })
}
