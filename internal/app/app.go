// Package app assembles the services shared by the server and the CLI.
package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/notifyhub/campaign-push/internal/api"
	"github.com/notifyhub/campaign-push/internal/cache"
	"github.com/notifyhub/campaign-push/internal/config"
	"github.com/notifyhub/campaign-push/internal/messenger"
	"github.com/notifyhub/campaign-push/internal/ratelimiter"
	"github.com/notifyhub/campaign-push/internal/repository"
	"github.com/notifyhub/campaign-push/internal/service"
	"github.com/notifyhub/campaign-push/internal/worker"
)

// Deps are the infrastructure pieces the services run on.
type Deps struct {
	Campaigns repository.CampaignRepository
	Pushes    repository.PushRepository
	Messenger messenger.Messenger
	Cache     cache.Cache
	Limiter   *ratelimiter.Limiters
	Jobs      service.Enqueuer
	Hooks     service.Hooks
	Now       service.Clock
	Logger    *zap.Logger
}

// App holds every service plus the job handler that runs queued work.
type App struct {
	Pushes     *service.PushService
	Dispatcher *service.Dispatcher
	Lifecycle  *service.Lifecycle
	Reminder   *service.Reminder
	Closer     *service.ViewCloser
	Receipts   *service.ReceiptService
	Triggers   *service.Triggers
	Handler    *worker.Handler
}

func New(cfg *config.Config, d Deps) *App {
	a := &App{
		Pushes: service.NewPushService(d.Campaigns, d.Pushes, d.Jobs, cfg.DispatchStagger, d.Now, d.Hooks,
			d.Logger.Named("scan")),
		Dispatcher: service.NewDispatcher(d.Campaigns, d.Pushes, d.Messenger, d.Limiter, d.Now, d.Hooks,
			d.Logger.Named("dispatch")),
		Lifecycle: service.NewLifecycle(d.Pushes, d.Messenger, d.Limiter, d.Jobs, cfg.ExpireWindow(), cfg.CancelDelay,
			d.Now, d.Hooks, d.Logger.Named("lifecycle")),
		Reminder: service.NewReminder(d.Campaigns, d.Messenger, d.Cache, d.Limiter, d.Jobs, cfg.ShotPushHorizon(),
			cfg.ReminderTTL, d.Now, d.Hooks, d.Logger.Named("reminder")),
		Closer:   service.NewViewCloser(d.Campaigns, d.Hooks, d.Logger.Named("close-by-views")),
		Receipts: service.NewReceiptService(d.Campaigns, d.Messenger, d.Logger.Named("receipt")),
	}
	a.Triggers = service.NewTriggers(a.Pushes, a.Lifecycle, a.Reminder, a.Closer, d.Hooks, d.Logger.Named("trigger"))
	a.Handler = worker.NewHandler(a.Dispatcher, a.Lifecycle, a.Reminder)
	return a
}

// API returns the services exposed over HTTP.
func (a *App) API() api.Services {
	return api.Services{
		Pushes:    a.Pushes,
		Lifecycle: a.Lifecycle,
		Closer:    a.Closer,
		Receipts:  a.Receipts,
		Triggers:  a.Triggers,
	}
}

// NewCache picks the configured cache backend. The redis backend connects
// to cfg.RedisURL.
func NewCache(ctx context.Context, cfg *config.Config, pg *cache.Postgres) (cache.Cache, error) {
	switch cfg.CacheBackend {
	case "postgres":
		return pg, nil
	case "redis":
		return cache.NewRedis(ctx, cfg.RedisURL)
	default:
		return cache.NewMemory(), nil
	}
}
