package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/notifyhub/campaign-push/internal/queue"
)

func dispatch(id int64) queue.Item {
	return queue.Item{Kind: queue.KindDispatch, PushIDs: []int64{id}}
}

func TestPriorityQueue_BasicEnqueueDequeue(t *testing.T) {
	q := queue.New()
	ctx := context.Background()

	if err := q.Enqueue(dispatch(1)); err != nil {
		t.Fatal(err)
	}

	got, ok := q.Dequeue(ctx)
	if !ok {
		t.Fatal("expected item, got nothing")
	}
	if got.Kind != queue.KindDispatch || got.PushIDs[0] != 1 {
		t.Fatalf("unexpected item %+v", got)
	}
}

// TestPriorityQueue_RetractBeforeDispatch verifies that a retraction enqueued
// after a dispatch is still served first.
func TestPriorityQueue_RetractBeforeDispatch(t *testing.T) {
	q := queue.New()
	ctx := context.Background()

	_ = q.Enqueue(queue.Item{Kind: queue.KindRemind, CampaignID: 3})
	_ = q.Enqueue(dispatch(1))
	_ = q.Enqueue(queue.Item{Kind: queue.KindRetract, PushIDs: []int64{2}})

	first, _ := q.Dequeue(ctx)
	if first.Kind != queue.KindRetract {
		t.Fatalf("expected retract to be dequeued first, got %q", first.Kind)
	}
}

func TestItem_Priority(t *testing.T) {
	tests := map[queue.Kind]queue.Priority{
		queue.KindRetract:  queue.PriorityHigh,
		queue.KindDispatch: queue.PriorityNormal,
		queue.KindRemind:   queue.PriorityLow,
	}
	for kind, want := range tests {
		if got := (queue.Item{Kind: kind}).Priority(); got != want {
			t.Errorf("%s: expected priority %d, got %d", kind, want, got)
		}
	}
}

// TestPriorityQueue_ContextCancellation verifies Dequeue returns (_, false)
// when the context is cancelled while blocking.
func TestPriorityQueue_ContextCancellation(t *testing.T) {
	q := queue.New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Dequeue(ctx)
		done <- ok
	}()

	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected ok=false after context cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after context cancellation")
	}
}

func TestPriorityQueue_ErrQueueFull(t *testing.T) {
	q := queue.New()
	for i := 0; i < 1000; i++ {
		if err := q.Enqueue(queue.Item{Kind: queue.KindRetract}); err != nil {
			t.Fatalf("unexpected error at %d: %v", i, err)
		}
	}
	if err := q.Enqueue(queue.Item{Kind: queue.KindRetract}); err == nil {
		t.Fatal("expected ErrQueueFull on a saturated high tier")
	}
	if err := q.Enqueue(dispatch(1)); err != nil {
		t.Fatalf("normal tier should be unaffected, got %v", err)
	}
}

func TestPriorityQueue_EnqueueAfter(t *testing.T) {
	q := queue.New()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	if err := q.EnqueueAfter(dispatch(7), 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if _, _, _, delayed := q.Depths(); delayed != 1 {
		t.Fatalf("expected 1 delayed item, got %d", delayed)
	}

	got, ok := q.Dequeue(ctx)
	if !ok || got.PushIDs[0] != 7 {
		t.Fatalf("expected push 7, got %+v ok=%v", got, ok)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("item delivered after %v, before its delay", elapsed)
	}
}

func TestPriorityQueue_StopDiscardsDelayed(t *testing.T) {
	q := queue.New()
	_ = q.EnqueueAfter(dispatch(1), time.Hour)
	_ = q.EnqueueAfter(dispatch(2), time.Hour)

	if n := q.Stop(); n != 2 {
		t.Fatalf("expected 2 discarded items, got %d", n)
	}
	if _, normal, _, delayed := q.Depths(); normal != 0 || delayed != 0 {
		t.Fatalf("expected empty queue, got normal=%d delayed=%d", normal, delayed)
	}
}

// TestPriorityQueue_ConcurrentEnqueueDequeue verifies there are no races
// when multiple goroutines enqueue and dequeue simultaneously.
func TestPriorityQueue_ConcurrentEnqueueDequeue(t *testing.T) {
	q := queue.New()

	const producers = 5
	const itemsPerProducer = 100
	const total = producers * itemsPerProducer

	received := make(chan struct{}, total)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var consumerDone sync.WaitGroup
	consumerDone.Add(1)
	go func() {
		defer consumerDone.Done()
		for {
			_, ok := q.Dequeue(ctx)
			if !ok {
				return
			}
			received <- struct{}{}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for j := 0; j < itemsPerProducer; j++ {
				_ = q.Enqueue(dispatch(int64(p*itemsPerProducer + j)))
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < total; i++ {
		select {
		case <-received:
		case <-ctx.Done():
			t.Fatalf("timeout: only received %d/%d items", i, total)
		}
	}
	cancel()
	consumerDone.Wait()
}

func TestPriorityQueue_Depths(t *testing.T) {
	q := queue.New()

	_ = q.Enqueue(queue.Item{Kind: queue.KindRetract})
	_ = q.Enqueue(dispatch(1))
	_ = q.Enqueue(dispatch(2))
	_ = q.Enqueue(queue.Item{Kind: queue.KindRemind})

	high, normal, low, delayed := q.Depths()
	if high != 1 || normal != 2 || low != 1 || delayed != 0 {
		t.Fatalf("unexpected depths: high=%d normal=%d low=%d delayed=%d", high, normal, low, delayed)
	}
}
