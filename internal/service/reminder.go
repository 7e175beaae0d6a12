package service

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/campaign-push/internal/cache"
	"github.com/notifyhub/campaign-push/internal/messenger"
	"github.com/notifyhub/campaign-push/internal/queue"
	"github.com/notifyhub/campaign-push/internal/ratelimiter"
	"github.com/notifyhub/campaign-push/internal/repository"
)

// Reminder asks users of campaigns close to their end to send the
// screenshots they still owe.
//
// Each (campaign, user) pair is claimed with an atomic SetNX before the
// message goes out, so overlapping scans never remind the same user twice
// within the TTL. A failed send releases the claim for the next scan.
type Reminder struct {
	campaigns repository.CampaignRepository
	msg       messenger.Messenger
	cache     cache.Cache
	limiter   *ratelimiter.Limiters
	jobs      Enqueuer
	horizon   time.Duration
	ttl       time.Duration
	now       Clock
	hooks     Hooks
	logger    *zap.Logger
}

// NewReminder wires the reminder flow. horizon is how close to its end a
// campaign must be; ttl is how long a user stays reminded. A nil now uses the
// wall clock.
func NewReminder(
	campaigns repository.CampaignRepository,
	msg messenger.Messenger,
	c cache.Cache,
	limiter *ratelimiter.Limiters,
	jobs Enqueuer,
	horizon, ttl time.Duration,
	now Clock,
	hooks Hooks,
	logger *zap.Logger,
) *Reminder {
	if now == nil {
		now = time.Now
	}
	return &Reminder{
		campaigns: campaigns,
		msg:       msg,
		cache:     c,
		limiter:   limiter,
		jobs:      jobs,
		horizon:   horizon,
		ttl:       ttl,
		now:       now,
		hooks:     hooks,
		logger:    logger,
	}
}

// reminderClaim is the cache value marking a user as reminded.
type reminderClaim struct {
	SentAt time.Time `json:"sent_at"`
}

// ReminderKey is the cache key claiming a reminder for one user.
func ReminderKey(campaignID, chatID int64) string {
	return fmt.Sprintf("push_campaign_%d:%d", campaignID, chatID)
}

// Scan enqueues one reminder job per campaign ending within the horizon that
// has users owing a screenshot. It returns the number of jobs enqueued.
func (r *Reminder) Scan(ctx context.Context) (int, error) {
	targets, err := r.campaigns.FindReminderTargets(ctx, r.now(), r.horizon)
	if err != nil {
		return 0, fmt.Errorf("find reminder targets: %w", err)
	}

	enqueued := 0
	for _, t := range targets {
		item := queue.Item{Kind: queue.KindRemind, CampaignID: t.Campaign.ID, ChatIDs: t.ChatIDs}
		if err := r.jobs.EnqueueAfter(item, 0); err != nil {
			r.logger.Error("failed to enqueue reminder",
				zap.Int64("campaign_id", t.Campaign.ID), zap.Error(err))
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

// Send reminds every chat in chatIDs not already reminded for the campaign
// and returns how many messages were delivered.
func (r *Reminder) Send(ctx context.Context, campaignID int64, chatIDs []int64) (int, error) {
	c, err := r.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return 0, fmt.Errorf("load campaign: %w", err)
	}
	log := r.logger.With(zap.Int64("campaign_id", campaignID))
	text := fmt.Sprintf("Campaign <b>%s</b> is about to end. Please send the screenshots of your posts.",
		html.EscapeString(c.Title))
	claim, err := json.Marshal(reminderClaim{SentAt: r.now().UTC()})
	if err != nil {
		return 0, fmt.Errorf("encode reminder claim: %w", err)
	}

	sent := 0
	for _, chatID := range chatIDs {
		key := ReminderKey(campaignID, chatID)
		ok, err := r.cache.SetNX(ctx, key, claim, r.ttl)
		if err != nil {
			log.Error("reminder claim failed", zap.Int64("chat_id", chatID), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		err = r.limiter.Wait(ctx, ratelimiter.OpSend)
		if err == nil {
			_, err = r.msg.SendText(ctx, chatID, text)
		}
		if err != nil {
			r.hooks.reminder(false)
			log.Warn("reminder send failed", zap.Int64("chat_id", chatID), zap.Error(err))
			if derr := r.cache.Delete(ctx, key); derr != nil {
				log.Error("failed to release reminder claim", zap.String("key", key), zap.Error(derr))
			}
			continue
		}
		r.hooks.reminder(true)
		sent++
	}
	log.Info("reminders sent", zap.Int("targets", len(chatIDs)), zap.Int("sent", sent))
	return sent, nil
}
