// Package queue carries resumable match jobs from the engine to the worker
// pool through a bounded in-memory buffer.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job. It fails with ErrFull or ErrClosed instead of
	// blocking the caller.
	Enqueue(ctx context.Context, job model.Job) error

	// Dequeue returns the channel workers read from. It is closed when the
	// queue is closed and drained.
	Dequeue() <-chan model.Job

	// Len returns the current number of queued jobs.
	Len() int

	// Close stops accepting jobs.
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan model.Job
	capacity int
	mu       sync.RWMutex
	closed   bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan model.Job, q.capacity)
	metrics.UpdateJobQueueCapacity(q.capacity)
	metrics.UpdateJobQueueSize(0)
	return q
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, job model.Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		metrics.RecordJobRejected()
		return fmt.Errorf("enqueue job %s: %w", job.ID, ErrClosed)
	}
	select {
	case <-ctx.Done():
		metrics.RecordJobRejected()
		return fmt.Errorf("enqueue job %s: %w", job.ID, ctx.Err())
	default:
	}
	select {
	case q.jobs <- job:
		metrics.RecordJobEnqueued()
		metrics.UpdateJobQueueSize(len(q.jobs))
		return nil
	default:
		metrics.RecordJobRejected()
		return fmt.Errorf("enqueue job %s: %w", job.ID, ErrFull)
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue) Dequeue() <-chan model.Job {
	return q.jobs
}

// Len implements Queue.
func (q *InMemoryQueue) Len() int {
	size := len(q.jobs)
	metrics.UpdateJobQueueSize(size)
	return size
}

// Close implements Queue. Jobs already buffered can still be dequeued.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
