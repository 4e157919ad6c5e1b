package dispatch

import (
	"context"
	"errors"

	"github.com/sungwon/mailcast/internal/metrics"
)

// ErrChannelFull is returned by TryEnqueue when the channel has no free
// capacity. Callers surface it as a retryable overload condition.
var ErrChannelFull = errors.New("dispatch: channel full")

// Task is the minimal payload moved through the dispatch channel: the
// request id plus the fields needed to call the provider. The worker
// re-reads the request row before sending, so the row stays the system
// of record.
type Task struct {
	RequestID int64
	Recipient string
	Subject   string
	Content   string
}

// Channel is the bounded FIFO hand-off between producers (API
// ingestion, scheduler) and the single sender worker. Capacity provides
// backpressure; order across producers is arrival order.
type Channel struct {
	tasks chan Task
}

// NewChannel creates a Channel with the given capacity.
func NewChannel(capacity int) *Channel {
	return &Channel{tasks: make(chan Task, capacity)}
}

// Enqueue blocks until the task is accepted or the context is done.
func (c *Channel) Enqueue(ctx context.Context, task Task) error {
	select {
	case c.tasks <- task:
		metrics.DispatchQueueDepth.Set(float64(len(c.tasks)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryEnqueue accepts the task only if capacity is free, returning
// ErrChannelFull otherwise.
func (c *Channel) TryEnqueue(task Task) error {
	select {
	case c.tasks <- task:
		metrics.DispatchQueueDepth.Set(float64(len(c.tasks)))
		return nil
	default:
		return ErrChannelFull
	}
}

// Dequeue blocks until a task is available or the context is done.
func (c *Channel) Dequeue(ctx context.Context) (Task, error) {
	select {
	case task := <-c.tasks:
		metrics.DispatchQueueDepth.Set(float64(len(c.tasks)))
		return task, nil
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
}

// Len reports the number of queued tasks.
func (c *Channel) Len() int {
	return len(c.tasks)
}

// Cap reports the channel capacity.
func (c *Channel) Cap() int {
	return cap(c.tasks)
}
