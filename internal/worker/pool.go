package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/campaign-push/internal/config"
	"github.com/notifyhub/campaign-push/internal/queue"
)

// Pool manages the lifecycle of all workers.
// All workers share the same priority queue; the queue's double-select
// pattern handles priority ordering internally.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

// NewPool creates cfg.Workers identical workers. Telegram rate limits are
// enforced by the services, so adding workers only adds concurrency between
// job kinds.
func NewPool(cfg *config.Config, q *queue.PriorityQueue, handler *Handler, logger *zap.Logger) *Pool {
	n := cfg.Workers
	if n < 1 {
		n = 1
	}
	workers := make([]*Worker, n)
	for i := range workers {
		workers[i] = NewWorker(i, q, handler, logger.With(zap.Int("worker_id", i)))
	}
	return &Pool{workers: workers}
}

// Start launches all workers as goroutines.
// The provided ctx is forwarded to every worker; cancelling it
// triggers a graceful shutdown of the entire pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker has returned after ctx is cancelled.
// Call this after cancelling the context to ensure in-flight jobs finish.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// DepthReporter receives queue depth snapshots.
type DepthReporter func(high, normal, low, delayed int)

// ReportDepths samples q every interval until ctx is cancelled.
func ReportDepths(ctx context.Context, q *queue.PriorityQueue, interval time.Duration, report DepthReporter) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report(q.Depths())
		}
	}
}
