package injection

import (
	"context"
	"sync"

	"github.com/raniellyferreira/redis-injector/stream"
)

// DefaultQueueSize is the number of batches buffered between producer and
// workers
const DefaultQueueSize = 1000

// Queue is a bounded FIFO of batches with one producer and many consumers.
// Push blocks while the queue is full. After Close, Pop drains what is left
// and then reports the end of the stream.
type Queue struct {
	ch        chan stream.Batch
	closeOnce sync.Once
}

// NewQueue creates a queue holding up to capacity batches
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{ch: make(chan stream.Batch, capacity)}
}

// Push enqueues batch, blocking until there is room or ctx is done. It must
// not be called after Close.
func (q *Queue) Push(ctx context.Context, batch stream.Batch) error {
	select {
	case q.ch <- batch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop dequeues the next batch. ok is false once the queue is closed and
// drained, or when ctx is done.
func (q *Queue) Pop(ctx context.Context) (batch stream.Batch, ok bool) {
	select {
	case batch, ok = <-q.ch:
		return batch, ok
	case <-ctx.Done():
		return nil, false
	}
}

// Close marks the end of the stream. It is safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.ch) })
}

// Len returns the number of queued batches
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity
func (q *Queue) Cap() int {
	return cap(q.ch)
}
