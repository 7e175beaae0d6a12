package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/notifyhub/campaign-push/internal/api"
	"github.com/notifyhub/campaign-push/internal/app"
	"github.com/notifyhub/campaign-push/internal/cache"
	"github.com/notifyhub/campaign-push/internal/config"
	"github.com/notifyhub/campaign-push/internal/db"
	"github.com/notifyhub/campaign-push/internal/messenger"
	"github.com/notifyhub/campaign-push/internal/metrics"
	"github.com/notifyhub/campaign-push/internal/queue"
	"github.com/notifyhub/campaign-push/internal/ratelimiter"
	"github.com/notifyhub/campaign-push/internal/repository"
	"github.com/notifyhub/campaign-push/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	version, err := db.Migrate(cfg.MigrationsPath, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied", zap.Uint("schema_version", version))

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	q := queue.New(queue.WithDropHandler(func(item queue.Item, err error) {
		m.JobsDropped.WithLabelValues(string(item.Kind)).Inc()
		logger.Warn("delayed job dropped", zap.String("kind", string(item.Kind)),
			zap.Int64s("push_ids", item.PushIDs), zap.Error(err))
	}))

	bot, err := messenger.NewTelegram(messenger.TelegramConfig{
		Token:          cfg.TelegramToken,
		Proxy:          cfg.TelegramProxy,
		ConnectTimeout: cfg.TelegramConnectTimeout,
		ReadTimeout:    cfg.TelegramReadTimeout,
		Polling:        cfg.TelegramPolling,
	}, logger.Named("telegram"))
	if err != nil {
		logger.Fatal("failed to create telegram bot", zap.Error(err))
	}

	store, err := app.NewCache(ctx, cfg, cache.NewPostgres(pool))
	if err != nil {
		logger.Fatal("failed to open cache", zap.Error(err))
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}
	pushRepo := repository.NewPgPushRepository(pool)
	svc := app.New(cfg, app.Deps{
		Campaigns: repository.NewPgCampaignRepository(pool),
		Pushes:    pushRepo,
		Messenger: bot,
		Cache:     store,
		Limiter:   ratelimiter.New(cfg.RateLimit),
		Jobs:      q,
		Hooks:     m.ServiceHooks(),
		Logger:    logger,
	})

	// ---- background work ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	workers := worker.NewPool(cfg, q, svc.Handler, logger)
	workers.Start(workerCtx)
	go worker.ReportDepths(workerCtx, q, 5*time.Second, m.SetQueueDepths)

	recovery := worker.NewRecoveryWorker(pushRepo, q, cfg.ExpireWindow(), cfg.DispatchStagger, nil, logger)
	if _, err := recovery.Run(ctx); err != nil {
		logger.Error("startup recovery failed", zap.Error(err))
	}

	sched, err := worker.NewScheduler(cfg.Location(), worker.Schedules(cfg), svc.Triggers, store, cfg.TriggerTimeout, logger.Named("cron"))
	if err != nil {
		logger.Fatal("invalid trigger schedule", zap.Error(err))
	}
	sched.Start()

	bot.HandleCallbacks(workerCtx, svc.Lifecycle.Respond)
	bot.Start()

	// ---- HTTP server ----
	router := api.NewRouter(svc.API(), q, pool, reg, cfg.CORSOrigins, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()

	// 1. Stop accepting new HTTP requests and button presses.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	bot.Stop()

	// 2. Stop firing triggers and let running ones finish.
	sched.Stop(shutdownCtx)

	// 3. Drop delayed jobs, then signal the workers to stop.
	if n := q.Stop(); n > 0 {
		logger.Warn("delayed jobs discarded", zap.Int("count", n))
	}
	cancelWorkers()

	// 4. Wait for in-flight jobs to finish.
	workers.Wait()

	logger.Info("server stopped cleanly")
}
