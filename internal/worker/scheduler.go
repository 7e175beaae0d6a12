package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/notifyhub/campaign-push/internal/cache"
	"github.com/notifyhub/campaign-push/internal/config"
	"github.com/notifyhub/campaign-push/internal/service"
)

// TriggerRunner runs a named periodic trigger.
type TriggerRunner interface {
	Run(ctx context.Context, name string) (int, error)
}

// Schedule pairs a trigger name with its cron expression.
type Schedule struct {
	Trigger string
	Spec    string
}

// Schedules returns the cron expression of every trigger from cfg.
func Schedules(cfg *config.Config) []Schedule {
	return []Schedule{
		{Trigger: service.TriggerDemand, Spec: cfg.SendPushSchedule},
		{Trigger: service.TriggerExpire, Spec: cfg.ExpirePushSchedule},
		{Trigger: service.TriggerRemind, Spec: cfg.ShotPushSchedule},
		{Trigger: service.TriggerCloseByViews, Spec: cfg.CloseByViewSchedule},
	}
}

// Scheduler fires the periodic triggers on their cron schedules, in the
// configured time zone. A trigger still running when its next tick arrives
// is skipped for that tick.
type Scheduler struct {
	c       *cron.Cron
	runner  TriggerRunner
	timeout time.Duration
	logger  *zap.Logger
}

// NewScheduler parses every schedule and registers a cache eviction job. It
// fails on the first invalid expression.
func NewScheduler(
	loc *time.Location,
	schedules []Schedule,
	runner TriggerRunner,
	c cache.Cache,
	timeout time.Duration,
	logger *zap.Logger,
) (*Scheduler, error) {
	clog := cronLogger{logger.Sugar()}
	s := &Scheduler{
		c: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
			cron.WithLogger(clog),
		),
		runner:  runner,
		timeout: timeout,
		logger:  logger,
	}

	for _, sch := range schedules {
		name := sch.Trigger
		if _, err := s.c.AddFunc(sch.Spec, func() { s.fire(name) }); err != nil {
			return nil, fmt.Errorf("schedule %s (%q): %w", name, sch.Spec, err)
		}
		logger.Info("trigger scheduled", zap.String("trigger", name), zap.String("spec", sch.Spec))
	}

	if _, err := s.c.AddFunc("@hourly", func() { s.evict(c) }); err != nil {
		return nil, fmt.Errorf("schedule cache eviction: %w", err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.c.Start()
	s.logger.Info("scheduler started", zap.Int("entries", len(s.c.Entries())))
}

// Stop halts new ticks and waits for running triggers to return.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.c.Stop().Done():
		s.logger.Info("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

func (s *Scheduler) fire(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	// Run logs its own outcome.
	_, _ = s.runner.Run(ctx, name)
}

func (s *Scheduler) evict(c cache.Cache) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := c.Evict(ctx)
	if err != nil {
		s.logger.Error("cache eviction failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Debug("expired cache entries evicted", zap.Int("count", n))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
