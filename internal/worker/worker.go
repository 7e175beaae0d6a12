package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/campaign-push/internal/domain"
	"github.com/notifyhub/campaign-push/internal/queue"
)

// PushDispatcher sends a push to its recipients.
type PushDispatcher interface {
	Dispatch(ctx context.Context, pushID int64) ([]domain.Outcome, error)
}

// Retractor deletes the delivered messages of cancelled pushes.
type Retractor interface {
	Retract(ctx context.Context, pushIDs []int64) (int, error)
}

// ReminderSender delivers screenshot reminders for one campaign.
type ReminderSender interface {
	Send(ctx context.Context, campaignID int64, chatIDs []int64) (int, error)
}

// Handler routes a queue item to the service that owns its kind.
type Handler struct {
	dispatcher PushDispatcher
	retractor  Retractor
	reminder   ReminderSender
}

func NewHandler(d PushDispatcher, r Retractor, rem ReminderSender) *Handler {
	return &Handler{dispatcher: d, retractor: r, reminder: rem}
}

// Handle runs one job to completion.
func (h *Handler) Handle(ctx context.Context, item queue.Item) error {
	switch item.Kind {
	case queue.KindDispatch:
		for _, id := range item.PushIDs {
			if _, err := h.dispatcher.Dispatch(ctx, id); err != nil {
				return fmt.Errorf("dispatch push %d: %w", id, err)
			}
		}
		return nil
	case queue.KindRetract:
		failed, err := h.retractor.Retract(ctx, item.PushIDs)
		if err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of the messages could not be retracted", failed)
		}
		return nil
	case queue.KindRemind:
		_, err := h.reminder.Send(ctx, item.CampaignID, item.ChatIDs)
		return err
	default:
		return fmt.Errorf("unknown job kind %q", item.Kind)
	}
}

// Worker is a single goroutine that continuously pulls jobs from the priority
// queue and runs them. Jobs are not retried; a failure is logged and counted
// by the service that owns the job.
type Worker struct {
	id      int
	q       *queue.PriorityQueue
	handler *Handler
	logger  *zap.Logger
}

func NewWorker(id int, q *queue.PriorityQueue, handler *Handler, logger *zap.Logger) *Worker {
	return &Worker{id: id, q: q, handler: handler, logger: logger}
}

// Run blocks until ctx is cancelled, processing one queue item per iteration.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started", zap.Int("id", w.id))
	for {
		item, ok := w.q.Dequeue(ctx)
		if !ok {
			w.logger.Info("worker stopping", zap.Int("id", w.id))
			return
		}
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item queue.Item) {
	start := time.Now()
	log := w.logger.With(
		zap.String("kind", string(item.Kind)),
		zap.Int64s("push_ids", item.PushIDs),
	)
	if item.CampaignID != 0 {
		log = log.With(zap.Int64("campaign_id", item.CampaignID))
	}

	if err := w.handler.Handle(ctx, item); err != nil {
		// ctx cancelled mid-job: the worker is shutting down.
		if ctx.Err() != nil {
			return
		}
		log.Warn("job failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}
	log.Debug("job done", zap.Duration("elapsed", time.Since(start)))
}
