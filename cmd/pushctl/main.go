// Command pushctl runs the campaign push triggers and admin operations once,
// outside the server.
//
// Usage:
//
//	pushctl scan [--campaign 12]
//	pushctl expire
//	pushctl remind
//	pushctl close-by-views
//	pushctl reject 42
//	pushctl accept 42 --user 7
//	pushctl remaining 12
//	pushctl report 12
//	pushctl migrate [--steps -1]
//
// Jobs that the server would queue (dispatches, retractions, reminders) run
// inline before the command returns.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notifyhub/campaign-push/internal/app"
	"github.com/notifyhub/campaign-push/internal/cache"
	"github.com/notifyhub/campaign-push/internal/config"
	"github.com/notifyhub/campaign-push/internal/db"
	"github.com/notifyhub/campaign-push/internal/messenger"
	"github.com/notifyhub/campaign-push/internal/ratelimiter"
	"github.com/notifyhub/campaign-push/internal/repository"
	"github.com/notifyhub/campaign-push/internal/service"
	"github.com/notifyhub/campaign-push/internal/worker"
)

var logger, _ = zap.NewDevelopment()

func main() {
	defer logger.Sync() //nolint:errcheck

	root := &cobra.Command{
		Use:          "pushctl",
		Short:        "Campaign push scheduling CLI",
		SilenceUsage: true,
	}

	root.AddCommand(scanCmd())
	root.AddCommand(triggerCmd(service.TriggerExpire, "Expire unanswered pushes and retract their messages"))
	root.AddCommand(triggerCmd(service.TriggerRemind, "Remind users of campaigns near their end to send screenshots"))
	root.AddCommand(triggerCmd(service.TriggerCloseByViews, "Disable campaigns whose content reached max_view"))
	root.AddCommand(rejectCmd())
	root.AddCommand(acceptCmd())
	root.AddCommand(remainingCmd())
	root.AddCommand(reportCmd())
	root.AddCommand(migrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// trigger commands
// --------------------------------------------------------------------------

func scanCmd() *cobra.Command {
	var campaignID int64
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Create and dispatch pushes for campaigns that still need views",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				if campaignID > 0 {
					n, err := a.Pushes.ScanCampaign(ctx, campaignID)
					if err != nil {
						return err
					}
					return printJSON(map[string]any{"campaign_id": campaignID, "pushes_created": n})
				}
				res, err := a.Pushes.ScanDemand(ctx)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().Int64Var(&campaignID, "campaign", 0, "Scan only this campaign")
	return cmd
}

func triggerCmd(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				n, err := a.Triggers.Run(ctx, name)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"trigger": name, "affected": n})
			})
		},
	}
}

// --------------------------------------------------------------------------
// push and campaign commands
// --------------------------------------------------------------------------

func rejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <push-id>",
		Short: "Reject a sent push and retract its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return run(func(ctx context.Context, a *app.App) error {
				p, err := a.Lifecycle.Reject(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
}

func acceptCmd() *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "accept <push-id>",
		Short: "Accept a sent push on behalf of one of its admins",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return run(func(ctx context.Context, a *app.App) error {
				asg, err := a.Lifecycle.Accept(ctx, id, userID)
				if err != nil {
					return err
				}
				return printJSON(asg)
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "Internal user id of the accepting admin")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func remainingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remaining <campaign-id>",
		Short: "Show the confirmed, reserved and remaining views of a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return run(func(ctx context.Context, a *app.App) error {
				dm, err := a.Pushes.Remaining(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(dm)
			})
		},
	}
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <campaign-id>",
		Short: "Show partial-view totals per content of a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return run(func(ctx context.Context, a *app.App) error {
				rep, err := a.Closer.Report(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(rep)
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations, or move --steps up or down",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			var version uint
			if steps != 0 {
				version, err = db.MigrateSteps(cfg.MigrationsPath, cfg.DatabaseURL, steps)
			} else {
				version, err = db.Migrate(cfg.MigrationsPath, cfg.DatabaseURL)
			}
			if err != nil {
				return err
			}
			logger.Info("database migrations applied", zap.Uint("schema_version", version))
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "migrations to apply (negative rolls back)")
	return cmd
}

// --------------------------------------------------------------------------
// helpers
// --------------------------------------------------------------------------

// run loads config, connects, wires the services on an inline job runner and
// calls fn.
func run(fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	bot, err := messenger.NewTelegram(messenger.TelegramConfig{
		Token:          cfg.TelegramToken,
		Proxy:          cfg.TelegramProxy,
		ConnectTimeout: cfg.TelegramConnectTimeout,
		ReadTimeout:    cfg.TelegramReadTimeout,
	}, logger.Named("telegram"))
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}

	store, err := app.NewCache(ctx, cfg, cache.NewPostgres(pool))
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	inline := worker.NewInline(ctx, logger)
	a := app.New(cfg, app.Deps{
		Campaigns: repository.NewPgCampaignRepository(pool),
		Pushes:    repository.NewPgPushRepository(pool),
		Messenger: bot,
		Cache:     store,
		Limiter:   ratelimiter.New(cfg.RateLimit),
		Jobs:      inline,
		Logger:    logger,
	})
	inline.Bind(a.Handler)

	if err := fn(ctx, a); err != nil {
		return err
	}
	if n := inline.Ran(); n > 0 {
		logger.Info("background jobs ran inline", zap.Int("count", n))
	}
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: must be a positive integer", s)
	}
	return id, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
