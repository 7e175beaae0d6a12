package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/campaign-push/internal/queue"
	"github.com/notifyhub/campaign-push/internal/repository"
	"github.com/notifyhub/campaign-push/internal/service"
)

// RetractWindow bounds how far back recovery looks for cancelled pushes with
// messages left to delete. Telegram refuses to delete bot messages older
// than 48 hours.
const RetractWindow = 48 * time.Hour

// RecoveryWorker re-enqueues jobs lost with the in-memory queue.
//
// A push is created before its dispatch job runs, and a push is cancelled
// before its retraction job runs; if the process stops in between, the job
// is gone. On startup the worker re-enqueues the dispatch of sent pushes that
// were never claimed by the dispatcher and are still young enough to be
// answered, and the retraction of cancelled pushes whose delivered messages
// were never through a deletion attempt.
type RecoveryWorker struct {
	repo    repository.PushRepository
	jobs    service.Enqueuer
	window  time.Duration
	stagger time.Duration
	now     service.Clock
	logger  *zap.Logger
}

func NewRecoveryWorker(
	repo repository.PushRepository,
	jobs service.Enqueuer,
	window, stagger time.Duration,
	now service.Clock,
	logger *zap.Logger,
) *RecoveryWorker {
	if now == nil {
		now = time.Now
	}
	return &RecoveryWorker{repo: repo, jobs: jobs, window: window, stagger: stagger, now: now, logger: logger}
}

// Run enqueues the lost jobs and returns how many were enqueued.
func (rw *RecoveryWorker) Run(ctx context.Context) (int, error) {
	started := rw.now()

	retract, err := rw.repo.FindUnretractedPushes(ctx, started.Add(-RetractWindow))
	if err != nil {
		rw.logger.Error("recovery poll error", zap.String("kind", string(queue.KindRetract)), zap.Error(err))
		return 0, err
	}
	enqueued := 0
	if len(retract) > 0 {
		item := queue.Item{Kind: queue.KindRetract, PushIDs: retract}
		if err := rw.jobs.EnqueueAfter(item, 0); err != nil {
			rw.logger.Warn("could not re-enqueue retraction", zap.Int64s("push_ids", retract), zap.Error(err))
		} else {
			enqueued++
			rw.logger.Info("re-enqueued pending retractions", zap.Int64s("push_ids", retract))
		}
	}

	ids, err := rw.repo.FindUndispatchedPushes(ctx, started.Add(-rw.window), started)
	if err != nil {
		rw.logger.Error("recovery poll error", zap.String("kind", string(queue.KindDispatch)), zap.Error(err))
		return enqueued, err
	}

	dispatched := 0
	for i, id := range ids {
		item := queue.Item{Kind: queue.KindDispatch, PushIDs: []int64{id}}
		if err := rw.jobs.EnqueueAfter(item, time.Duration(i)*rw.stagger); err != nil {
			rw.logger.Warn("could not re-enqueue dispatch", zap.Int64("push_id", id), zap.Error(err))
			continue
		}
		dispatched++
	}
	if dispatched > 0 {
		rw.logger.Info("re-enqueued undispatched pushes", zap.Int("count", dispatched))
	}
	return enqueued + dispatched, nil
}
