// Package worker applies evaluations to ranking records. Every party is owned
// by exactly one shard and each shard is drained by a single goroutine, so
// the read-modify-write of one party's record never interleaves.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/reputation/internal/adapters/mq/queue"
	"github.com/okian/reputation/internal/domain/model"
	"github.com/okian/reputation/pkg/logger"
	"github.com/okian/reputation/pkg/metrics"
)

const (
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Applier performs the transactional apply of one evaluation.
type Applier interface {
	Apply(ctx context.Context, ev model.Evaluation) (queue.Outcome, error)
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(ctx context.Context, ev model.Evaluation) (queue.Outcome, error)

func (f ApplierFunc) Apply(ctx context.Context, ev model.Evaluation) (queue.Outcome, error) {
	return f(ctx, ev)
}

// Worker consumes one queue.
type Worker interface {
	// Run processes jobs until the queue is closed or ctx is cancelled.
	Run(ctx context.Context)

	// Shutdown waits for Run to return.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker drains a single shard queue.
type InMemoryWorker struct {
	queue        queue.Queue
	applier      Applier
	name         string
	applyTimeout time.Duration

	done   chan struct{}
	logger logger.Logger
}

// NewInMemoryWorker creates a worker with configuration options.
func NewInMemoryWorker(q queue.Queue, applier Applier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:   q,
		applier: applier,
		name:    "worker",
		done:    make(chan struct{}),
		logger:  logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop. Jobs left behind when ctx is cancelled are
// answered with queue.ErrStopped.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			w.reject(ctx, jobs)
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.process(j)
		}
	}
}

// Shutdown waits for the worker loop to finish. Close the queue first.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) reject(ctx context.Context, jobs <-chan queue.Job) {
	for {
		select {
		case j, ok := <-jobs:
			if !ok {
				return
			}
			j.Reply <- queue.Result{Err: queue.ErrStopped}
		default:
			if n := w.queue.Len(ctx); n > 0 {
				w.logger.Warn(ctx, "jobs left in queue", logger.Int("pending", n))
			}
			return
		}
	}
}

// process applies one job and always replies.
func (w *InMemoryWorker) process(j queue.Job) { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordApplyLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	ctx := j.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		j.Reply <- queue.Result{Err: err}
		return
	}
	if w.applyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.applyTimeout)
		defer cancel()
	}

	outcome, err := w.applier.Apply(ctx, j.Evaluation)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "apply_error")
		w.logger.Debug(ctx, "apply failed",
			logger.String("transaction_id", j.Evaluation.TransactionID),
			logger.String("party_id", j.Evaluation.RatedID),
			logger.Error(err),
		)
	}
	j.Reply <- queue.Result{Outcome: outcome, Err: err}
}

type shard struct {
	queue  *queue.InMemoryQueue
	worker *InMemoryWorker
}

// Pool routes jobs to shards by party id.
type Pool struct {
	shards        []shard
	queueCapacity int
	applyTimeout  time.Duration

	mu       sync.Mutex
	started  bool
	stopped  bool
	shutdown chan struct{}

	logger logger.Logger
}

// NewPool creates a pool with shardCount shards. shardCount < 1 means one
// shard per CPU.
func NewPool(shardCount int, applier Applier, opts ...PoolOption) *Pool {
	if shardCount < 1 {
		shardCount = runtime.NumCPU()
	}

	p := &Pool{
		shards:   make([]shard, shardCount),
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("apply-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := range p.shards {
		q := queue.NewInMemoryQueue(queue.WithCapacity(p.queueCapacity))
		p.shards[i] = shard{
			queue: q,
			worker: NewInMemoryWorker(q, applier,
				WithName("shard-"+strconv.Itoa(i)),
				WithApplyTimeout(p.applyTimeout),
			),
		}
	}

	metrics.UpdateWorkerCount(shardCount)
	metrics.UpdateQueueCapacity(shardCount * p.shards[0].queue.Cap())
	return p
}

// Start runs one goroutine per shard.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for _, s := range p.shards {
		go s.worker.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

// ShardFor returns the shard index owning partyID.
func (p *Pool) ShardFor(partyID string) int {
	return int(xxhash.Sum64String(partyID) % uint64(len(p.shards)))
}

// Submit enqueues j on the shard of its rated party. It returns
// queue.ErrFull when that shard is full and queue.ErrStopped after Shutdown.
func (p *Pool) Submit(ctx context.Context, j queue.Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	s := p.shards[p.ShardFor(j.Evaluation.RatedID)]
	if s.queue.IsClosed() {
		return queue.ErrStopped
	}
	if !s.queue.Enqueue(ctx, j) {
		if s.queue.IsClosed() {
			return queue.ErrStopped
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return queue.ErrFull
	}
	return nil
}

// Shards returns the number of shards.
func (p *Pool) Shards() int { return len(p.shards) }

// Len returns the number of waiting jobs across shards.
func (p *Pool) Len(ctx context.Context) int {
	n := 0
	for _, s := range p.shards {
		n += s.queue.Len(ctx)
	}
	return n
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			metrics.UpdateQueueLength(p.Len(ctx))
		}
	}
}

// Shutdown closes every shard queue and waits for workers to apply what is
// already queued.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	close(p.shutdown)
	p.mu.Unlock()

	for _, s := range p.shards {
		if err := s.queue.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	if !started {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var firstErr error
	for i, s := range p.shards {
		if err := s.worker.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("shard", i))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	metrics.UpdateWorkerCount(0)
	return firstErr
}
