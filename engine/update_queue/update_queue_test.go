package update_queue

import (
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-world/common"
	"github.com/Carmen-Shannon/oxy-world/engine/tile_index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func ref(uid uint32, x float32) tile_index.Ref {
	return tile_index.Ref{
		UID:     uid,
		Extents: common.AABB{Min: [3]float32{x, 0, 0}, Max: [3]float32{x + 1, 1, 1}},
	}
}

func TestCommandsApplyInOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []uint32
	q := NewUpdateQueue(ApplierFunc(func(cmd Command) error {
		mu.Lock()
		seen = append(seen, cmd.Ref.UID)
		mu.Unlock()
		return nil
	}))
	defer q.Close()

	var last *Ticket
	for uid := uint32(1); uid <= 100; uid++ {
		tk, err := q.Enqueue(Command{Kind: CommandAdd, Ref: ref(uid, 0)})
		require.NoError(t, err)
		last = tk
	}
	require.NoError(t, last.Wait())
	assert.Equal(t, StateApplied, last.State())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 100)
	for i, uid := range seen {
		assert.Equal(t, uint32(i+1), uid)
	}
}

func TestAddRemoveAddLeavesOneReference(t *testing.T) {
	index := tile_index.NewTileIndex(tile_index.WithTileSize(10))
	q := NewIndexQueue(index)
	defer q.Close()

	_, err := q.Enqueue(Command{Kind: CommandAdd, Ref: ref(5, 0)})
	require.NoError(t, err)
	_, err = q.Enqueue(Command{Kind: CommandRemove, Ref: tile_index.Ref{UID: 5}})
	require.NoError(t, err)
	second := ref(5, 20)
	tk, err := q.Enqueue(Command{Kind: CommandAdd, Ref: second})
	require.NoError(t, err)
	require.NoError(t, tk.Wait())

	assert.Equal(t, 1, index.References(5))
	assert.False(t, index.Contains(tile_index.TileCoord{X: 0, Z: 0}, 5))
	refs := index.Query(tile_index.TileCoord{X: 2, Z: 0})
	require.Len(t, refs, 1)
	assert.Equal(t, second, refs[0])
}

func TestWaitUntilDrained(t *testing.T) {
	index := tile_index.NewTileIndex()
	q := NewIndexQueue(index, WithCapacity(8))
	defer q.Close()

	for uid := uint32(1); uid <= 50; uid++ {
		_, err := q.Enqueue(Command{Kind: CommandAdd, Ref: ref(uid, float32(uid))})
		require.NoError(t, err)
	}
	q.WaitUntilDrained()

	assert.Equal(t, 50, index.Len())
	assert.Equal(t, 0, q.Len())
	stats := q.Stats()
	assert.Equal(t, uint64(50), stats.Enqueued)
	assert.Equal(t, uint64(50), stats.Applied)
	assert.Zero(t, stats.Failed)
}

func TestDrainedTicketsAreFinished(t *testing.T) {
	q := NewUpdateQueue(ApplierFunc(func(Command) error { return nil }))
	defer q.Close()

	for uid := uint32(1); uid <= 500; uid++ {
		tk, err := q.Enqueue(Command{Kind: CommandAdd, Ref: ref(uid, 0)})
		require.NoError(t, err)
		q.WaitUntilDrained()
		require.Equal(t, StateApplied, tk.State(), "uid %d", uid)
		select {
		case <-tk.Done():
		default:
			t.Fatalf("uid %d: ticket not done after drain", uid)
		}
	}
}

func TestWorkerSurvivesPanic(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	q := NewUpdateQueue(ApplierFunc(func(cmd Command) error {
		if cmd.Ref.UID == 13 {
			panic("bad command")
		}
		return nil
	}), WithLogger(zap.New(core)))
	defer q.Close()

	bad, err := q.Enqueue(Command{Kind: CommandMove, Ref: ref(13, 0)})
	require.NoError(t, err)
	good, err := q.Enqueue(Command{Kind: CommandMove, Ref: ref(14, 0)})
	require.NoError(t, err)

	assert.ErrorIs(t, bad.Wait(), ErrApplyPanic)
	assert.NoError(t, good.Wait())
	assert.True(t, q.Alive())
	assert.Equal(t, uint64(1), q.Stats().Failed)
	assert.Equal(t, 1, logs.FilterMessage("apply panic recovered").Len())
}

func TestOutOfRangeIsNotAFailure(t *testing.T) {
	index := tile_index.NewTileIndex(
		tile_index.WithTileSize(1),
		tile_index.WithBounds(tile_index.TileCoord{}, tile_index.TileCoord{X: 1, Z: 1}),
	)
	q := NewIndexQueue(index)
	defer q.Close()

	tk, err := q.Enqueue(Command{Kind: CommandAdd, Ref: ref(1, 1)})
	require.NoError(t, err)
	assert.ErrorIs(t, tk.Wait(), tile_index.ErrTileOutOfRange)
	assert.Zero(t, q.Stats().Failed)
	assert.True(t, index.Contains(tile_index.TileCoord{X: 1, Z: 0}, 1))
}

func TestCloseDropsPendingWithoutDeadlock(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	q := NewUpdateQueue(ApplierFunc(func(cmd Command) error {
		if cmd.Ref.UID == 1 {
			started <- struct{}{}
			<-gate
		}
		return nil
	}), WithLogger(zap.New(core)))

	first, err := q.Enqueue(Command{Kind: CommandAdd, Ref: ref(1, 0)})
	require.NoError(t, err)
	<-started

	var rest []*Ticket
	for uid := uint32(2); uid <= 6; uid++ {
		tk, err := q.Enqueue(Command{Kind: CommandAdd, Ref: ref(uid, 0)})
		require.NoError(t, err)
		rest = append(rest, tk)
	}

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()
	require.Eventually(t, q.Closed, time.Second, time.Millisecond)
	close(gate)

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close deadlocked")
	}

	assert.NoError(t, first.Wait())
	for _, tk := range rest {
		assert.ErrorIs(t, tk.Wait(), ErrDropped)
		assert.Equal(t, StateDropped, tk.State())
	}
	assert.False(t, q.Alive())
	assert.Equal(t, uint64(5), q.Stats().Dropped)

	entries := logs.FilterMessage("update queue closed with pending commands").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, int64(5), entries[0].ContextMap()["dropped"])

	_, err = q.Enqueue(Command{Kind: CommandAdd, Ref: ref(7, 0)})
	assert.ErrorIs(t, err, ErrQueueClosed)

	q.Close()
	q.WaitUntilDrained()
}

func TestConcurrentProducers(t *testing.T) {
	index := tile_index.NewTileIndex()
	q := NewIndexQueue(index)
	defer q.Close()

	var wg sync.WaitGroup
	for p := range 8 {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := range 100 {
				uid := uint32(p*1000 + i + 1)
				_, err := q.Enqueue(Command{Kind: CommandAdd, Ref: ref(uid, float32(i))})
				assert.NoError(t, err)
			}
		}(p)
	}
	wg.Wait()
	q.WaitUntilDrained()

	assert.Equal(t, 800, index.Len())
	assert.WithinDuration(t, time.Now(), q.LastBeat(), 5*time.Second)
}
