package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/campaign-push/internal/domain"
)

// Trigger names shared by the cron schedule, the HTTP API and the CLI.
const (
	TriggerDemand       = "demand"
	TriggerExpire       = "expire"
	TriggerRemind       = "remind"
	TriggerCloseByViews = "close-by-views"
)

// Triggers exposes the periodic entry points by name. Each run takes no
// input and reports how many items it affected.
type Triggers struct {
	runs   map[string]func(context.Context) (int, error)
	hooks  Hooks
	logger *zap.Logger
}

func NewTriggers(
	pushes *PushService,
	lifecycle *Lifecycle,
	reminder *Reminder,
	closer *ViewCloser,
	hooks Hooks,
	logger *zap.Logger,
) *Triggers {
	return &Triggers{
		runs: map[string]func(context.Context) (int, error){
			TriggerDemand: func(ctx context.Context) (int, error) {
				res, err := pushes.ScanDemand(ctx)
				return res.Pushes, err
			},
			TriggerExpire: func(ctx context.Context) (int, error) {
				res, err := lifecycle.ExpireSweep(ctx)
				return len(res.Cancelled), err
			},
			TriggerRemind: reminder.Scan,
			TriggerCloseByViews: func(ctx context.Context) (int, error) {
				ids, err := closer.CloseReached(ctx)
				return len(ids), err
			},
		},
		hooks:  hooks,
		logger: logger,
	}
}

// Names lists the known triggers in a fixed order.
func (t *Triggers) Names() []string {
	return []string{TriggerDemand, TriggerExpire, TriggerRemind, TriggerCloseByViews}
}

// Run executes the named trigger.
func (t *Triggers) Run(ctx context.Context, name string) (int, error) {
	run, ok := t.runs[name]
	if !ok {
		return 0, domain.ErrUnknownTrigger
	}

	start := time.Now()
	n, err := run(ctx)
	elapsed := time.Since(start)
	t.hooks.trigger(name, elapsed, err)

	if err != nil {
		t.logger.Error("trigger failed", zap.String("trigger", name), zap.Duration("elapsed", elapsed), zap.Error(err))
		return n, err
	}
	t.logger.Info("trigger finished", zap.String("trigger", name), zap.Int("affected", n), zap.Duration("elapsed", elapsed))
	return n, nil
}
