package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/reputation/internal/adapters/mq/queue"
	worker "github.com/okian/reputation/internal/adapters/mq/worker"
	model "github.com/okian/reputation/internal/domain/model"
	logging "github.com/okian/reputation/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// recordingApplier tracks applies per party and detects overlapping applies
// for the same party.
type recordingApplier struct {
	mu       sync.Mutex
	inFlight map[string]bool
	applied  map[string][]string
	overlaps int
	errs     map[string]error
	delay    time.Duration
}

func newRecordingApplier() *recordingApplier {
	return &recordingApplier{
		inFlight: make(map[string]bool),
		applied:  make(map[string][]string),
		errs:     make(map[string]error),
	}
}

func (a *recordingApplier) Apply(ctx context.Context, ev model.Evaluation) (queue.Outcome, error) {
	a.mu.Lock()
	if a.inFlight[ev.RatedID] {
		a.overlaps++
	}
	a.inFlight[ev.RatedID] = true
	err := a.errs[ev.TransactionID]
	a.mu.Unlock()

	if a.delay > 0 {
		time.Sleep(a.delay)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.inFlight[ev.RatedID] = false
	if err != nil {
		return queue.Outcome{}, err
	}
	a.applied[ev.RatedID] = append(a.applied[ev.RatedID], ev.TransactionID)
	return queue.Outcome{Evaluation: ev}, nil
}

func (a *recordingApplier) count(party string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.applied[party])
}

func evalJob(ctx context.Context, tx, party string) queue.Job {
	return queue.NewJob(ctx, model.Evaluation{TransactionID: tx, RatedID: party})
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker draining one queue", t, func() {
		_ = logging.Init()
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		applier := newRecordingApplier()
		w := worker.NewInMemoryWorker(q, applier, worker.WithName("shard-test"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a job is enqueued", func() {
			j := evalJob(context.Background(), "tx-1", "party-1")
			convey.So(q.Enqueue(ctx, j), convey.ShouldBeTrue)

			convey.Convey("Then the applier runs and the result is replied", func() {
				res := <-j.Reply
				convey.So(res.Err, convey.ShouldBeNil)
				convey.So(res.Outcome.Evaluation.TransactionID, convey.ShouldEqual, "tx-1")
				convey.So(applier.count("party-1"), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the apply fails", func() {
			boom := errors.New("boom")
			applier.errs["tx-bad"] = boom
			j := evalJob(context.Background(), "tx-bad", "party-1")
			q.Enqueue(ctx, j)

			convey.Convey("Then the error is replied", func() {
				res := <-j.Reply
				convey.So(errors.Is(res.Err, boom), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the submitter already gave up", func() {
			jctx, jcancel := context.WithCancel(context.Background())
			jcancel()
			j := evalJob(jctx, "tx-late", "party-1")
			q.Enqueue(ctx, j)

			convey.Convey("Then the job is skipped", func() {
				res := <-j.Reply
				convey.So(errors.Is(res.Err, context.Canceled), convey.ShouldBeTrue)
				convey.So(applier.count("party-1"), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the queue is closed", func() {
			convey.So(q.Close(), convey.ShouldBeNil)

			convey.Convey("Then the worker stops", func() {
				sctx, scancel := context.WithTimeout(context.Background(), time.Second)
				defer scancel()
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a sharded pool", t, func() {
		_ = logging.Init()
		applier := newRecordingApplier()
		applier.delay = time.Millisecond
		pool := worker.NewPool(4, applier, worker.WithQueueCapacity(1000), worker.WithJobTimeout(time.Second))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.Convey("Then a party always maps to the same shard", func() {
			convey.So(pool.Shards(), convey.ShouldEqual, 4)
			first := pool.ShardFor("party-42")
			for i := 0; i < 10; i++ {
				convey.So(pool.ShardFor("party-42"), convey.ShouldEqual, first)
			}
			convey.So(first, convey.ShouldBeBetweenOrEqual, 0, 3)
		})

		convey.Convey("When many jobs for few parties are submitted concurrently", func() {
			const parties, perParty = 5, 40
			var wg sync.WaitGroup
			errs := make(chan error, parties*perParty)
			for p := 0; p < parties; p++ {
				for i := 0; i < perParty; i++ {
					wg.Add(1)
					go func(p, i int) {
						defer wg.Done()
						j := evalJob(context.Background(), fmt.Sprintf("tx-%d-%d", p, i), fmt.Sprintf("party-%d", p))
						if err := pool.Submit(context.Background(), j); err != nil {
							errs <- err
							return
						}
						errs <- (<-j.Reply).Err
					}(p, i)
				}
			}
			wg.Wait()
			close(errs)

			convey.Convey("Then every job is applied without overlapping per party", func() {
				for err := range errs {
					convey.So(err, convey.ShouldBeNil)
				}
				for p := 0; p < parties; p++ {
					convey.So(applier.count(fmt.Sprintf("party-%d", p)), convey.ShouldEqual, perParty)
				}
				convey.So(applier.overlaps, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the pool is shut down", func() {
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)

			convey.Convey("Then submissions are refused", func() {
				err := pool.Submit(context.Background(), evalJob(context.Background(), "tx-x", "party-1"))
				convey.So(errors.Is(err, queue.ErrStopped), convey.ShouldBeTrue)
				convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})
	})
}

func TestWorkerPoolBackpressure(t *testing.T) {
	convey.Convey("Given a pool that is not started and has tiny queues", t, func() {
		_ = logging.Init()
		pool := worker.NewPool(1, newRecordingApplier(), worker.WithQueueCapacity(1))

		convey.Convey("When more jobs arrive than fit", func() {
			err1 := pool.Submit(context.Background(), evalJob(context.Background(), "tx-1", "p"))
			err2 := pool.Submit(context.Background(), evalJob(context.Background(), "tx-2", "p"))

			convey.Convey("Then the overflow is refused as full", func() {
				convey.So(err1, convey.ShouldBeNil)
				convey.So(errors.Is(err2, queue.ErrFull), convey.ShouldBeTrue)
				convey.So(pool.Len(context.Background()), convey.ShouldEqual, 1)
			})
		})
	})
}

func TestApplierFunc(t *testing.T) {
	convey.Convey("Given a function applier", t, func() {
		var called bool
		f := worker.ApplierFunc(func(ctx context.Context, ev model.Evaluation) (queue.Outcome, error) {
			called = true
			return queue.Outcome{Evaluation: ev}, nil
		})

		out, err := f.Apply(context.Background(), model.Evaluation{TransactionID: "tx"})
		convey.So(err, convey.ShouldBeNil)
		convey.So(called, convey.ShouldBeTrue)
		convey.So(out.Evaluation.TransactionID, convey.ShouldEqual, "tx")
	})
}
