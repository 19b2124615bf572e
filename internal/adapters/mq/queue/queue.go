// Package queue carries evaluations from the service to the apply workers.
//
// Each apply shard owns one bounded in-memory queue. Enqueue never blocks so
// a full shard surfaces as backpressure to the caller.
package queue

import (
	"context"
	"sync"

	"github.com/okian/reputation/internal/domain/model"
	"github.com/okian/reputation/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Outcome is what an applied evaluation did to its party's record.
type Outcome struct {
	Evaluation model.Evaluation
	Delta      int // before clamping
	Before     model.Record
	After      model.Record
}

// Result is sent back to the submitter once a job is done.
type Result struct {
	Outcome Outcome
	Err     error
}

// Job asks a worker to apply one evaluation. Ctx is the submitter's context;
// the worker abandons the job if it is done. Reply must be buffered.
type Job struct {
	Ctx        context.Context //nolint:containedctx // request scoped job
	Evaluation model.Evaluation
	Reply      chan Result
}

// NewJob returns a job with a reply channel that never blocks the worker.
func NewJob(ctx context.Context, ev model.Evaluation) Job {
	return Job{Ctx: ctx, Evaluation: ev, Reply: make(chan Result, 1)}
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue returns false if the queue is full or closed.
	Enqueue(ctx context.Context, j Job) bool

	// Dequeue returns the receive side of the queue. It is closed, after the
	// remaining jobs are drained, once the queue is closed.
	Dequeue(ctx context.Context) <-chan Job

	Len(ctx context.Context) int
	Cap() int

	// Close stops accepting jobs.
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)
	return q
}

// Enqueue adds a job to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) bool { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	select {
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError("context_cancelled")
		return false
	default:
	}

	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		return true
	default:
		metrics.RecordQueueEnqueueError("queue_full")
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns the job channel.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Job {
	return q.jobs
}

// Len returns the number of waiting jobs.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.jobs)
}

// Cap returns the queue capacity.
func (q *InMemoryQueue) Cap() int {
	return q.capacity
}

// Close stops accepting jobs. Jobs already queued stay readable.
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
