package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/campaign-push/internal/domain"
	"github.com/notifyhub/campaign-push/internal/messenger"
	"github.com/notifyhub/campaign-push/internal/queue"
	"github.com/notifyhub/campaign-push/internal/ratelimiter"
	"github.com/notifyhub/campaign-push/internal/repository"
)

// CancelResult reports what a cancellation changed.
type CancelResult struct {
	Requested int     `json:"requested"`
	Cancelled []int64 `json:"cancelled"`
}

// Lifecycle drives push state after dispatch: expiry, rejection, acceptance
// and the retraction of messages of pushes that were cancelled.
type Lifecycle struct {
	pushes       repository.PushRepository
	msg          messenger.Messenger
	limiter      *ratelimiter.Limiters
	jobs         Enqueuer
	expireWindow time.Duration
	cancelDelay  time.Duration
	now          Clock
	hooks        Hooks
	logger       *zap.Logger
}

// NewLifecycle wires the tracker. expireWindow is the age after which an
// unanswered push expires; cancelDelay defers message retraction after the
// status change commits. A nil now uses the wall clock.
func NewLifecycle(
	pushes repository.PushRepository,
	msg messenger.Messenger,
	limiter *ratelimiter.Limiters,
	jobs Enqueuer,
	expireWindow, cancelDelay time.Duration,
	now Clock,
	hooks Hooks,
	logger *zap.Logger,
) *Lifecycle {
	if now == nil {
		now = time.Now
	}
	return &Lifecycle{
		pushes:       pushes,
		msg:          msg,
		limiter:      limiter,
		jobs:         jobs,
		expireWindow: expireWindow,
		cancelDelay:  cancelDelay,
		now:          now,
		hooks:        hooks,
		logger:       logger,
	}
}

// ExpireSweep expires sent pushes created in [now-2w, now-w] whose campaign
// is still approved and enabled. Pushes older than 2w are not picked up.
func (l *Lifecycle) ExpireSweep(ctx context.Context) (CancelResult, error) {
	now := l.now()
	ids, err := l.pushes.FindExpirablePushes(ctx, now.Add(-2*l.expireWindow), now.Add(-l.expireWindow))
	if err != nil {
		return CancelResult{}, fmt.Errorf("find expirable pushes: %w", err)
	}
	if len(ids) == 0 {
		return CancelResult{}, nil
	}
	return l.Cancel(ctx, ids, domain.PushExpired)
}

// Reject cancels a single push on behalf of a declining admin. Only a sent
// push can be rejected: a push that is already received, rejected or expired
// returns domain.ErrInvalidTransition and none of its messages are retracted.
func (l *Lifecycle) Reject(ctx context.Context, pushID int64) (*domain.Push, error) {
	p, err := l.pushes.GetPush(ctx, pushID)
	if err != nil {
		return nil, err
	}
	if !p.Status.CanTransition(domain.PushRejected) {
		return p, domain.ErrInvalidTransition
	}
	res, err := l.Cancel(ctx, []int64{pushID}, domain.PushRejected)
	if err != nil {
		return nil, err
	}
	if len(res.Cancelled) == 0 {
		// Lost a race with an accept or an expiry.
		return l.pushes.GetPush(ctx, pushID)
	}
	if err := p.Transition(domain.PushRejected, l.now().UTC()); err != nil {
		return nil, err
	}
	return p, nil
}

// Accept marks the push received and assigns the accepting admin's channels
// to the campaign.
func (l *Lifecycle) Accept(ctx context.Context, pushID, userID int64) (*domain.Assignment, error) {
	a, err := l.pushes.AcceptPush(ctx, pushID, userID, l.now().UTC())
	if err != nil {
		return nil, err
	}
	l.logger.Info("push accepted",
		zap.Int64("push_id", pushID),
		zap.Int64("user_id", userID),
		zap.Int64("assignment_id", a.ID),
		zap.Int64s("channels", a.ChannelIDs))
	return a, nil
}

// Respond applies an admin's button press. The admin is identified by chat id
// and must be a recipient of the push. The returned text is shown to them.
func (l *Lifecycle) Respond(ctx context.Context, chatID int64, action messenger.Action, pushID int64) (string, error) {
	p, err := l.pushes.GetPush(ctx, pushID)
	if err != nil {
		return "Push not found.", err
	}
	var userID int64
	for _, r := range p.Recipients {
		if r.ChatID == chatID {
			userID = r.UserID
		}
	}
	if userID == 0 {
		return "This push was not sent to you.", domain.ErrNotRecipient
	}

	switch action {
	case messenger.ActionAccept:
		if _, err := l.Accept(ctx, pushID, userID); err != nil {
			return answerFor(err), err
		}
		return "Accepted. Your channels are booked for this campaign.", nil
	case messenger.ActionReject:
		if _, err := l.Reject(ctx, pushID); err != nil {
			return answerFor(err), err
		}
		return "Rejected.", nil
	default:
		return "Unknown action.", fmt.Errorf("unknown push action %q", action)
	}
}

// Cancel moves every named push that is still sent to status and persists
// all changes in one bulk update. Pushes already received or final keep
// their status. Messages of the pushes that changed are retracted by a
// background job so a slow chat platform never holds the status update.
func (l *Lifecycle) Cancel(ctx context.Context, ids []int64, status domain.PushStatus) (CancelResult, error) {
	res := CancelResult{Requested: len(ids)}
	if status != domain.PushRejected && status != domain.PushExpired {
		return res, domain.ErrInvalidStatus
	}

	pushes, err := l.pushes.GetPushes(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("load pushes: %w", err)
	}

	now := l.now().UTC()
	var updates []domain.StatusUpdate
	for _, p := range pushes {
		if err := p.Transition(status, now); err != nil {
			l.logger.Debug("push not cancellable",
				zap.Int64("push_id", p.ID), zap.String("status", string(p.Status)))
			continue
		}
		updates = append(updates, domain.StatusUpdate{PushID: p.ID, Status: status, UpdatedAt: now})
	}
	if len(updates) == 0 {
		return res, nil
	}

	res.Cancelled, err = l.pushes.BulkUpdateStatus(ctx, updates)
	if err != nil {
		return res, err
	}
	l.hooks.cancelled(status, len(res.Cancelled))
	l.logger.Info("pushes cancelled",
		zap.String("status", string(status)),
		zap.Int64s("push_ids", res.Cancelled))

	if len(res.Cancelled) > 0 {
		item := queue.Item{Kind: queue.KindRetract, PushIDs: res.Cancelled}
		if err := l.jobs.EnqueueAfter(item, l.cancelDelay); err != nil {
			l.logger.Error("failed to enqueue retraction",
				zap.Int64s("push_ids", res.Cancelled), zap.Error(err))
		}
	}
	return res, nil
}

// Retract deletes every delivered message of the given pushes that has not
// been through a deletion attempt yet and returns the number of deletions
// that failed. Failures are logged and do not stop the remaining deletions.
// Each attempt is recorded, so a message is tried once; when ctx ends first
// the rest stay pending for startup recovery.
func (l *Lifecycle) Retract(ctx context.Context, pushIDs []int64) (int, error) {
	pushes, err := l.pushes.GetPushes(ctx, pushIDs)
	if err != nil {
		return 0, fmt.Errorf("load pushes: %w", err)
	}

	failed := 0
	for _, p := range pushes {
		if p.Status == domain.PushSent || p.Status == domain.PushReceived {
			continue
		}
		for _, r := range p.Unretracted() {
			if err := l.limiter.Wait(ctx, ratelimiter.OpDelete); err != nil {
				return failed, fmt.Errorf("retract push %d: %w", p.ID, err)
			}
			if err := l.msg.Delete(ctx, r.ChatID, *r.MessageID); err != nil {
				failed++
				l.hooks.retractFailed()
				l.logger.Warn("push retraction failed",
					zap.Int64("push_id", p.ID),
					zap.Int64("chat_id", r.ChatID),
					zap.Int("message_id", *r.MessageID),
					zap.Error(err))
			}
			if err := l.pushes.MarkRetracted(ctx, p.ID, r.UserID, l.now().UTC()); err != nil {
				l.logger.Error("failed to record retraction",
					zap.Int64("push_id", p.ID),
					zap.Int64("user_id", r.UserID),
					zap.Error(err))
			}
		}
	}
	return failed, nil
}

func answerFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		return "This push is no longer open."
	case errors.Is(err, domain.ErrNotRecipient):
		return "This push was not sent to you."
	case errors.Is(err, domain.ErrNotFound):
		return "Push not found."
	default:
		return "Something went wrong, please try again later."
	}
}
