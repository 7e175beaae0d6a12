package service

import (
	"time"

	"github.com/notifyhub/campaign-push/internal/domain"
	"github.com/notifyhub/campaign-push/internal/queue"
)

// Clock returns the current time. Services take one so tests can pin "now".
type Clock func() time.Time

// Enqueuer accepts background jobs. *queue.PriorityQueue satisfies it, and
// worker.Inline runs jobs on the caller's goroutine for one-shot commands.
type Enqueuer interface {
	EnqueueAfter(item queue.Item, delay time.Duration) error
}

// Hooks carries optional metric callbacks injected by main so services stay
// metrics-agnostic. Nil fields are no-ops.
type Hooks struct {
	OnPushCreated      func(campaignID int64)
	OnSend             func(delivered bool)
	OnCancelled        func(status domain.PushStatus, n int)
	OnRetractFailed    func()
	OnReminder         func(delivered bool)
	OnCampaignDisabled func()
	OnTrigger          func(name string, elapsed time.Duration, err error)
}

func (h Hooks) pushCreated(campaignID int64) {
	if h.OnPushCreated != nil {
		h.OnPushCreated(campaignID)
	}
}

func (h Hooks) send(delivered bool) {
	if h.OnSend != nil {
		h.OnSend(delivered)
	}
}

func (h Hooks) cancelled(status domain.PushStatus, n int) {
	if h.OnCancelled != nil && n > 0 {
		h.OnCancelled(status, n)
	}
}

func (h Hooks) retractFailed() {
	if h.OnRetractFailed != nil {
		h.OnRetractFailed()
	}
}

func (h Hooks) reminder(delivered bool) {
	if h.OnReminder != nil {
		h.OnReminder(delivered)
	}
}

func (h Hooks) campaignDisabled() {
	if h.OnCampaignDisabled != nil {
		h.OnCampaignDisabled()
	}
}

func (h Hooks) trigger(name string, elapsed time.Duration, err error) {
	if h.OnTrigger != nil {
		h.OnTrigger(name, elapsed, err)
	}
}
