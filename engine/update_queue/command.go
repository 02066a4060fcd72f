package update_queue

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-world/engine/tile_index"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("update queue closed")
	// ErrDropped completes the tickets of commands still pending when the queue closed.
	ErrDropped = errors.New("command dropped at shutdown")
	// ErrApplyPanic wraps a panic recovered while applying a command.
	ErrApplyPanic = errors.New("panic while applying command")
)

// CommandKind selects what a Command does to the tile index.
type CommandKind uint8

const (
	CommandAdd CommandKind = iota + 1
	CommandRemove
	CommandMove
)

func (k CommandKind) String() string {
	switch k {
	case CommandAdd:
		return "add"
	case CommandRemove:
		return "remove"
	case CommandMove:
		return "move"
	default:
		return fmt.Sprintf("command(%d)", uint8(k))
	}
}

// State is the lifecycle stage of one enqueued command.
type State uint32

const (
	StateEnqueued State = iota + 1
	StateDequeued
	StateApplying
	StateApplied
	StateDropped
)

func (s State) String() string {
	switch s {
	case StateEnqueued:
		return "enqueued"
	case StateDequeued:
		return "dequeued"
	case StateApplying:
		return "applying"
	case StateApplied:
		return "applied"
	case StateDropped:
		return "dropped"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

// Command is one change to apply to the tile index.
// Ref is a value snapshot taken when the command was built; the worker never reads registry memory.
type Command struct {
	Kind CommandKind
	Ref  tile_index.Ref
}

// Ticket tracks one enqueued command until it is applied or dropped.
// Waiting on a ticket is a barrier for that command and, because the queue is FIFO, for every command enqueued before it.
type Ticket struct {
	seq   uint64
	cmd   Command
	state atomic.Uint32
	done  chan struct{}
	err   error
}

func newTicket(seq uint64, cmd Command) *Ticket {
	t := &Ticket{
		seq:  seq,
		cmd:  cmd,
		done: make(chan struct{}),
	}
	t.state.Store(uint32(StateEnqueued))
	return t
}

// Seq returns the position of the command in the queue's global order.
func (t *Ticket) Seq() uint64 {
	return t.seq
}

// Command returns the command the ticket tracks.
func (t *Ticket) Command() Command {
	return t.cmd
}

// State returns the current lifecycle stage.
func (t *Ticket) State() State {
	return State(t.state.Load())
}

// Done returns a channel closed once the command is applied or dropped.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the command is applied or dropped.
//
// Returns:
//   - error: the apply error, ErrDropped if the queue closed first, or nil
func (t *Ticket) Wait() error {
	<-t.done
	return t.err
}

func (t *Ticket) setState(s State) {
	t.state.Store(uint32(s))
}

// finish records the outcome and releases waiters. Called exactly once.
func (t *Ticket) finish(s State, err error) {
	t.err = err
	t.setState(s)
	close(t.done)
}
