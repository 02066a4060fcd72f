package update_queue

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-world/engine/tile_index"
	"go.uber.org/zap"
)

// Stats is a point-in-time view of the queue counters.
type Stats struct {
	Enqueued uint64
	Applied  uint64
	Failed   uint64
	Dropped  uint64
	Pending  int
}

// updateQueue is the implementation of the UpdateQueue interface.
type updateQueue struct {
	applier Applier
	log     *zap.Logger

	mu       *sync.Mutex
	work     *sync.Cond // signalled when pending grows or stopping is set
	idle     *sync.Cond // broadcast when the worker finishes a command
	pending  []*Ticket
	applying *Ticket
	stopping bool
	nextSeq  uint64

	closeOnce sync.Once
	exited    chan struct{}
	alive     atomic.Bool
	lastBeat  atomic.Int64

	enqueued atomic.Uint64
	applied  atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

// UpdateQueue is a FIFO of tile index commands drained by one dedicated worker goroutine.
// Producers never block on Enqueue. Commands are applied in enqueue order.
type UpdateQueue interface {
	// Enqueue appends a command and wakes the worker.
	//
	// Parameters:
	//   - cmd: the command to apply
	//
	// Returns:
	//   - *Ticket: completion handle for the command
	//   - error: ErrQueueClosed after Close
	Enqueue(cmd Command) (*Ticket, error)

	// WaitUntilDrained blocks until no command is pending or being applied.
	// Returns immediately once the queue is closed.
	WaitUntilDrained()

	// Close stops the worker and waits for it to exit. A command already being applied finishes;
	// commands still pending are dropped, their tickets complete with ErrDropped, and the dropped
	// count is logged at error level. Safe to call more than once.
	Close()

	// Closed reports whether Close has been called.
	Closed() bool

	// Alive reports whether the worker goroutine is running.
	Alive() bool

	// LastBeat returns the last time the worker woke up or finished a command.
	LastBeat() time.Time

	// Len returns the number of pending commands, excluding one being applied.
	Len() int

	// Stats returns the queue counters.
	Stats() Stats
}

var _ UpdateQueue = &updateQueue{}

// NewUpdateQueue creates an UpdateQueue and starts its worker goroutine.
// Panics if applier is nil.
//
// Parameters:
//   - applier: the Applier the worker feeds commands to
//   - options: a variadic list of UpdateQueueBuilderOption functions
//
// Returns:
//   - UpdateQueue: the running queue
func NewUpdateQueue(applier Applier, options ...UpdateQueueBuilderOption) UpdateQueue {
	if applier == nil {
		panic("update_queue: applier must not be nil")
	}
	q := &updateQueue{
		applier: applier,
		log:     zap.NewNop(),
		mu:      &sync.Mutex{},
		pending: make([]*Ticket, 0, 64),
		exited:  make(chan struct{}),
	}
	for _, option := range options {
		option(q)
	}
	q.work = sync.NewCond(q.mu)
	q.idle = sync.NewCond(q.mu)

	q.alive.Store(true)
	q.beat()
	go q.run()
	return q
}

// NewIndexQueue creates an UpdateQueue whose worker writes into the given tile index.
//
// Parameters:
//   - index: the tile index the worker owns
//   - options: a variadic list of UpdateQueueBuilderOption functions
//
// Returns:
//   - UpdateQueue: the running queue
func NewIndexQueue(index tile_index.TileIndex, options ...UpdateQueueBuilderOption) UpdateQueue {
	return NewUpdateQueue(NewIndexApplier(index), options...)
}

func (q *updateQueue) Enqueue(cmd Command) (*Ticket, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopping {
		return nil, ErrQueueClosed
	}
	q.nextSeq++
	t := newTicket(q.nextSeq, cmd)
	q.pending = append(q.pending, t)
	q.enqueued.Add(1)
	q.work.Signal()
	return t, nil
}

func (q *updateQueue) WaitUntilDrained() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for (len(q.pending) > 0 || q.applying != nil) && !q.stopping {
		q.idle.Wait()
	}
}

func (q *updateQueue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.stopping = true
		q.work.Broadcast()
		q.idle.Broadcast()
		q.mu.Unlock()

		<-q.exited

		q.mu.Lock()
		dropped := q.pending
		q.pending = nil
		q.mu.Unlock()

		for _, t := range dropped {
			t.finish(StateDropped, ErrDropped)
		}
		q.dropped.Add(uint64(len(dropped)))
		if len(dropped) > 0 {
			q.log.Error("update queue closed with pending commands",
				zap.Int("dropped", len(dropped)),
				zap.Uint64("first_seq", dropped[0].seq),
			)
		} else {
			q.log.Debug("update queue closed")
		}
	})
}

func (q *updateQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopping
}

func (q *updateQueue) Alive() bool {
	return q.alive.Load()
}

func (q *updateQueue) LastBeat() time.Time {
	return time.Unix(0, q.lastBeat.Load())
}

func (q *updateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *updateQueue) Stats() Stats {
	return Stats{
		Enqueued: q.enqueued.Load(),
		Applied:  q.applied.Load(),
		Failed:   q.failed.Load(),
		Dropped:  q.dropped.Load(),
		Pending:  q.Len(),
	}
}

func (q *updateQueue) beat() {
	q.lastBeat.Store(time.Now().UnixNano())
}

// run is the worker loop. It exits when stopping is set, leaving pending commands for Close to drop.
func (q *updateQueue) run() {
	defer func() {
		q.alive.Store(false)
		close(q.exited)
	}()

	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.stopping {
			q.work.Wait()
		}
		if q.stopping {
			q.mu.Unlock()
			return
		}
		t := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.applying = t
		t.setState(StateDequeued)
		q.mu.Unlock()

		q.beat()
		t.setState(StateApplying)
		err := q.safeApply(t.cmd)
		q.record(t, err)
		// Finish before reporting idle so drained waiters never see an unfinished ticket.
		t.finish(StateApplied, err)

		q.mu.Lock()
		q.applying = nil
		q.idle.Broadcast()
		q.mu.Unlock()

		q.beat()
	}
}

// safeApply runs the applier with panic recovery so one bad command cannot kill the worker.
func (q *updateQueue) safeApply(cmd Command) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			q.log.Error("apply panic recovered",
				zap.Stringer("command", cmd.Kind),
				zap.Uint32("uid", cmd.Ref.UID),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("%w: %s uid %d: %v", ErrApplyPanic, cmd.Kind, cmd.Ref.UID, rec)
		}
	}()
	return q.applier.Apply(cmd)
}

func (q *updateQueue) record(t *Ticket, err error) {
	q.applied.Add(1)
	switch {
	case err == nil:
	case errors.Is(err, tile_index.ErrTileOutOfRange):
		q.log.Debug("tiles skipped",
			zap.Stringer("command", t.cmd.Kind),
			zap.Uint32("uid", t.cmd.Ref.UID),
			zap.Error(err),
		)
	default:
		q.failed.Add(1)
		q.log.Warn("apply failed",
			zap.Stringer("command", t.cmd.Kind),
			zap.Uint32("uid", t.cmd.Ref.UID),
			zap.Uint64("seq", t.seq),
			zap.Error(err),
		)
	}
}
