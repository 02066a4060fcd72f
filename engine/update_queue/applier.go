package update_queue

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-world/engine/tile_index"
)

// Applier applies one command. It runs on the queue worker goroutine only.
type Applier interface {
	Apply(cmd Command) error
}

// ApplierFunc adapts a function to the Applier interface.
type ApplierFunc func(cmd Command) error

// Apply calls f(cmd).
func (f ApplierFunc) Apply(cmd Command) error {
	return f(cmd)
}

type indexApplier struct {
	index tile_index.TileIndex
}

// NewIndexApplier returns the Applier that writes commands into a tile index.
//
// Parameters:
//   - index: the tile index the worker owns
//
// Returns:
//   - Applier: the index applier
func NewIndexApplier(index tile_index.TileIndex) Applier {
	return &indexApplier{index: index}
}

func (a *indexApplier) Apply(cmd Command) error {
	switch cmd.Kind {
	case CommandAdd:
		return a.index.Insert(cmd.Ref)
	case CommandRemove:
		a.index.Remove(cmd.Ref.UID)
		return nil
	case CommandMove:
		return a.index.Move(cmd.Ref)
	default:
		return fmt.Errorf("unknown command kind %s", cmd.Kind)
	}
}
