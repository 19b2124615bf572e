package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/reputation/internal/domain/model"
)

func job(tx string) Job {
	return NewJob(context.Background(), model.Evaluation{TransactionID: tx, RatedID: "party-1"})
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if c := q.Cap(); c != 2 {
		t.Errorf("expected capacity 2, got %d", c)
	}

	if !q.Enqueue(ctx, job("tx-1")) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.Evaluation.TransactionID != "tx-1" {
		t.Errorf("expected tx-1, got %v", got.Evaluation.TransactionID)
	}
	if cap(got.Reply) != 1 {
		t.Errorf("expected buffered reply channel, got capacity %d", cap(got.Reply))
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, job("tx-1")) || !q.Enqueue(ctx, job("tx-2")) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, job("tx-3")) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if q.Enqueue(ctx, job("tx-1")) {
		t.Error("expected enqueue to fail with cancelled context")
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()

	q.Enqueue(ctx, job("tx-1"))
	q.Enqueue(ctx, job("tx-2"))
	if err := q.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed")
	}
	if q.Enqueue(ctx, job("tx-3")) {
		t.Error("expected enqueue to fail after close")
	}

	var drained []string
	for j := range q.Dequeue(ctx) {
		drained = append(drained, j.Evaluation.TransactionID)
	}
	if len(drained) != 2 || drained[0] != "tx-1" || drained[1] != "tx-2" {
		t.Errorf("expected queued jobs to drain in order, got %v", drained)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	const producers, perProducer = 10, 100
	q := NewInMemoryQueue(WithCapacity(producers * perProducer))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				if !q.Enqueue(ctx, job(fmt.Sprintf("tx-%d-%d", id, j))) {
					t.Errorf("enqueue failed for producer %d", id)
				}
			}
		}(i)
	}
	wg.Wait()

	if l := q.Len(ctx); l != producers*perProducer {
		t.Errorf("expected %d jobs, got %d", producers*perProducer, l)
	}
}
