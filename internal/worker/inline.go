package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/campaign-push/internal/queue"
)

// Inline runs jobs on the caller's goroutine instead of queueing them. The
// CLI uses it so a one-shot command finishes its dispatches and retractions
// before exiting. Delays are not honoured.
//
// The handler is bound after construction because the services that enqueue
// jobs are also the ones that run them. An Inline lives for one command: it
// keeps that command's context because EnqueueAfter carries none, and must
// not outlive it.
type Inline struct {
	ctx     context.Context
	handler *Handler
	logger  *zap.Logger
	ran     int
}

func NewInline(ctx context.Context, logger *zap.Logger) *Inline {
	return &Inline{ctx: ctx, logger: logger}
}

func (in *Inline) Bind(h *Handler) { in.handler = h }

// EnqueueAfter runs item immediately. Job failures are logged, not returned,
// matching a queued job whose failure never reaches the enqueuer.
func (in *Inline) EnqueueAfter(item queue.Item, _ time.Duration) error {
	if in.handler == nil {
		return errors.New("inline runner has no handler bound")
	}
	in.ran++
	if err := in.handler.Handle(in.ctx, item); err != nil {
		in.logger.Warn("job failed", zap.String("kind", string(item.Kind)), zap.Error(err))
	}
	return nil
}

// Ran returns how many jobs were run.
func (in *Inline) Ran() int { return in.ran }
