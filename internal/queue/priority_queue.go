package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/notifyhub/campaign-push/internal/domain"
)

// PriorityQueue dispatches items to one of three buffered channels based on
// the item's priority.
//
// Buffer sizes reflect expected traffic ratios:
//
//	High:   1 000  retractions; small buffer applies back-pressure quickly
//	Normal: 5 000  push dispatches, the bulk of traffic
//	Low:    2 000  reminders, best-effort
//
// Workers dequeue via the double-select pattern, which guarantees that
// high-priority items are always served before normal or low ones, while
// still allowing fair competition between normal and low when high is empty.
type PriorityQueue struct {
	high   chan Item
	normal chan Item
	low    chan Item

	delayed atomic.Int64
	mu      sync.Mutex
	timers  map[*time.Timer]struct{}
	onDrop  func(Item, error)
}

// Option customises a PriorityQueue.
type Option func(*PriorityQueue)

// WithDropHandler sets the callback for delayed items that could not be
// enqueued when their delay elapsed.
func WithDropHandler(fn func(Item, error)) Option {
	return func(q *PriorityQueue) { q.onDrop = fn }
}

func New(opts ...Option) *PriorityQueue {
	q := &PriorityQueue{
		high:   make(chan Item, 1000),
		normal: make(chan Item, 5000),
		low:    make(chan Item, 2000),
		timers: make(map[*time.Timer]struct{}),
		onDrop: func(Item, error) {},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue places an item on the appropriate priority channel.
// It is non-blocking: if the target channel is full, ErrQueueFull is returned
// immediately rather than blocking the caller.
func (q *PriorityQueue) Enqueue(item Item) error {
	var ch chan Item
	switch item.Priority() {
	case PriorityHigh:
		ch = q.high
	case PriorityLow:
		ch = q.low
	default:
		ch = q.normal
	}
	select {
	case ch <- item:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// EnqueueAfter places item on the queue once delay has elapsed. A delay of
// zero or less enqueues immediately. Items still waiting when Stop is called
// are discarded.
func (q *PriorityQueue) EnqueueAfter(item Item, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(item)
	}
	q.delayed.Add(1)

	q.mu.Lock()
	defer q.mu.Unlock()
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, t)
		q.mu.Unlock()
		q.delayed.Add(-1)
		if err := q.Enqueue(item); err != nil {
			q.onDrop(item, err)
		}
	})
	q.timers[t] = struct{}{}
	return nil
}

// Stop cancels all delayed items that have not fired yet and returns how
// many were discarded.
func (q *PriorityQueue) Stop() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for t := range q.timers {
		if t.Stop() {
			q.delayed.Add(-1)
			n++
		}
		delete(q.timers, t)
	}
	return n
}

// Dequeue blocks until an item is available or ctx is cancelled.
//
// Priority guarantee, the double-select pattern:
//  1. A non-blocking select checks the high channel first. If an item is
//     waiting there, it is returned immediately regardless of normal/low.
//  2. Only when high is empty does the goroutine enter a fair blocking select
//     across all three channels plus the done signal.
//
// Returns (Item{}, false) when ctx is cancelled (graceful shutdown signal).
func (q *PriorityQueue) Dequeue(ctx context.Context) (Item, bool) {
	select {
	case item := <-q.high:
		return item, true
	default:
	}

	select {
	case item := <-q.high:
		return item, true
	case item := <-q.normal:
		return item, true
	case item := <-q.low:
		return item, true
	case <-ctx.Done():
		return Item{}, false
	}
}

// Depths returns the current number of items waiting in each priority tier
// and the number of delayed items not yet enqueued.
func (q *PriorityQueue) Depths() (high, normal, low, delayed int) {
	return len(q.high), len(q.normal), len(q.low), int(q.delayed.Load())
}
