package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/notifyhub/campaign-push/internal/domain"
	"github.com/notifyhub/campaign-push/internal/messenger"
	"github.com/notifyhub/campaign-push/internal/ratelimiter"
	"github.com/notifyhub/campaign-push/internal/repository"
)

// Dispatcher delivers a push to each of its recipients.
//
// Sends are sequential and isolated: a failure for one admin is logged and
// the next admin is still tried. A failed send is not retried; the recipient
// keeps an empty message reference. Each push is dispatched at most once.
type Dispatcher struct {
	campaigns repository.CampaignRepository
	pushes    repository.PushRepository
	msg       messenger.Messenger
	limiter   *ratelimiter.Limiters
	now       Clock
	hooks     Hooks
	logger    *zap.Logger
}

// MaxCaptionRunes is Telegram's limit for a photo caption.
const MaxCaptionRunes = 1024

const (
	// room kept free for the "+N more channels" line
	captionReserve = 48
	// Telegram allows 100 inline buttons; two go to accept and reject.
	maxChannelButtons = 98
	maxTitleRunes     = 200
)

// NewDispatcher wires the dispatcher. A nil now uses the wall clock.
func NewDispatcher(
	campaigns repository.CampaignRepository,
	pushes repository.PushRepository,
	msg messenger.Messenger,
	limiter *ratelimiter.Limiters,
	now Clock,
	hooks Hooks,
	logger *zap.Logger,
) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		campaigns: campaigns,
		pushes:    pushes,
		msg:       msg,
		limiter:   limiter,
		now:       now,
		hooks:     hooks,
		logger:    logger,
	}
}

// Dispatch sends push pushID and returns one outcome per recipient in
// recipient order. A push that is no longer sent (rejected or expired while
// its dispatch was waiting) or was already dispatched is skipped with no
// outcomes.
func (d *Dispatcher) Dispatch(ctx context.Context, pushID int64) ([]domain.Outcome, error) {
	log := d.logger.With(zap.Int64("push_id", pushID))

	p, err := d.pushes.GetPush(ctx, pushID)
	if err != nil {
		return nil, fmt.Errorf("load push: %w", err)
	}
	if p.Status != domain.PushSent {
		log.Info("push left sent before dispatch, skipping", zap.String("status", string(p.Status)))
		return nil, nil
	}
	c, err := d.campaigns.GetCampaign(ctx, p.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("load campaign %d: %w", p.CampaignID, err)
	}
	payouts, err := d.pushes.PushPayouts(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("load payouts: %w", err)
	}

	claimed, err := d.pushes.MarkDispatched(ctx, p.ID, d.now().UTC())
	if err != nil {
		return nil, err
	}
	if !claimed {
		log.Info("push already dispatched, skipping")
		return nil, nil
	}

	caption := PushCaption(c, payouts)
	buttons := append(PayoutButtons(payouts), messenger.PushButtons(p.ID)...)

	outcomes := make([]domain.Outcome, 0, len(p.Recipients))
	for _, r := range p.Recipients {
		out := d.sendOne(ctx, p.ID, c.FileID, caption, buttons, r)
		if out.Err != nil {
			log.Warn("push send failed",
				zap.Int64("user_id", r.UserID),
				zap.Int64("chat_id", r.ChatID),
				zap.Error(out.Err))
		}
		d.hooks.send(out.Delivered())
		outcomes = append(outcomes, out)
	}

	log.Info("push dispatched",
		zap.Int64("campaign_id", p.CampaignID),
		zap.Int("recipients", len(outcomes)),
		zap.Int("delivered", countDelivered(outcomes)))
	return outcomes, nil
}

func (d *Dispatcher) sendOne(
	ctx context.Context,
	pushID int64,
	fileID, caption string,
	buttons []messenger.Button,
	r domain.Recipient,
) domain.Outcome {
	out := domain.Outcome{UserID: r.UserID, ChatID: r.ChatID}
	if err := d.limiter.Wait(ctx, ratelimiter.OpSend); err != nil {
		out.Err = err
		return out
	}
	msgID, err := d.msg.SendPhoto(ctx, r.ChatID, fileID, caption, buttons)
	if err != nil {
		out.Err = err
		return out
	}
	out.MessageID = &msgID
	if err := d.pushes.SetDeliveryRef(ctx, pushID, r.UserID, msgID); err != nil {
		// Delivered but unrecorded: the message can no longer be retracted.
		out.Err = fmt.Errorf("record delivery: %w", err)
	}
	return out
}

// PushCaption renders the HTML caption of a push message: the campaign title
// followed by the still-unconfirmed channels grouped by payout account. The
// result never exceeds MaxCaptionRunes; channels that do not fit are counted
// in a closing line and remain reachable through PayoutButtons.
func PushCaption(c *domain.Campaign, payouts []domain.PayoutGroup) string {
	title := c.Title
	if r := []rune(title); len(r) > maxTitleRunes {
		title = string(r[:maxTitleRunes]) + "…"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>New campaign: %s</b>", html.EscapeString(title))
	size := utf8.RuneCountInString(b.String())

	total, written := 0, 0
	for _, g := range payouts {
		total += len(g.Lines)
	}

fill:
	for _, g := range payouts {
		account := g.Account
		if account == "" {
			account = "no account"
		}
		header := fmt.Sprintf("\n\n<b>%s</b>", html.EscapeString(account))
		for i, l := range g.Lines {
			line := fmt.Sprintf("\n@%s (#%d): %d", html.EscapeString(l.Tag), l.ChannelID, l.Tariff)
			if i == 0 {
				line = header + line
			}
			n := utf8.RuneCountInString(line)
			if size+n+captionReserve > MaxCaptionRunes {
				break fill
			}
			b.WriteString(line)
			size += n
			written++
		}
	}

	if rest := total - written; rest > 0 {
		fmt.Fprintf(&b, "\n\n+%d more channels", rest)
	}
	return b.String()
}

// PayoutButtons links every listed channel as a URL button labelled with its
// tariff, up to the keyboard limit. Channels without a tag get no button.
func PayoutButtons(payouts []domain.PayoutGroup) []messenger.Button {
	var out []messenger.Button
	for _, g := range payouts {
		for _, l := range g.Lines {
			if l.Tag == "" {
				continue
			}
			if len(out) == maxChannelButtons {
				return out
			}
			out = append(out, messenger.Button{
				Text: fmt.Sprintf("@%s: %d", l.Tag, l.Tariff),
				URL:  "https://t.me/" + l.Tag,
			})
		}
	}
	return out
}

func countDelivered(outcomes []domain.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Delivered() {
			n++
		}
	}
	return n
}
