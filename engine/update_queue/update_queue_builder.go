package update_queue

import "go.uber.org/zap"

// UpdateQueueBuilderOption is a functional option for configuring an UpdateQueue.
// Use the With* functions to create options.
type UpdateQueueBuilderOption func(q *updateQueue)

// WithLogger sets the logger for worker diagnostics. Defaults to a no-op logger.
//
// Parameters:
//   - log: the logger
//
// Returns:
//   - UpdateQueueBuilderOption: option function to apply
func WithLogger(log *zap.Logger) UpdateQueueBuilderOption {
	return func(q *updateQueue) {
		if log != nil {
			q.log = log.Named("update_queue")
		}
	}
}

// WithCapacity pre-sizes the pending FIFO.
//
// Parameters:
//   - n: the initial capacity
//
// Returns:
//   - UpdateQueueBuilderOption: option function to apply
func WithCapacity(n int) UpdateQueueBuilderOption {
	return func(q *updateQueue) {
		if n > 0 {
			q.pending = make([]*Ticket, 0, n)
		}
	}
}
