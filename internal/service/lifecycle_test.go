package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/campaign-push/internal/domain"
	"github.com/notifyhub/campaign-push/internal/messenger"
	"github.com/notifyhub/campaign-push/internal/queue"
	"github.com/notifyhub/campaign-push/internal/ratelimiter"
	"github.com/notifyhub/campaign-push/internal/service"
)

func msgID(v int) *int { return &v }

// seedSentPush stores a sent push for channel chID created age ago, delivered
// to admin 1 (chat 100) as message 500+chID.
func seedSentPush(f *fixture, id, chID int64, age time.Duration, status domain.PushStatus) {
	f.addChannel(1, chID, 100, 1)
	f.store.InsertPush(domain.Push{
		ID:         id,
		CampaignID: 1,
		Status:     status,
		Channels:   []domain.Channel{{ID: chID}},
		Recipients: []domain.Recipient{{UserID: 1, ChatID: 100, MessageID: msgID(500 + int(chID))}},
		CreatedAt:  now.Add(-age),
		UpdatedAt:  now.Add(-age),
	})
}

func TestLifecycle_ExpireSweepBand(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.AddCampaign(activeCampaign(1, 10000))
	seedSentPush(f, 1, 1, 45*time.Minute, domain.PushSent)
	seedSentPush(f, 2, 2, 10*time.Minute, domain.PushSent)
	seedSentPush(f, 3, 3, 70*time.Minute, domain.PushSent)

	res, err := f.lifecycle.ExpireSweep(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Cancelled) != 1 || res.Cancelled[0] != 1 {
		t.Fatalf("expected only push 1 expired, got %v", res.Cancelled)
	}

	want := map[int64]domain.PushStatus{1: domain.PushExpired, 2: domain.PushSent, 3: domain.PushSent}
	for id, status := range want {
		p, _ := f.store.GetPush(ctx, id)
		if p.Status != status {
			t.Errorf("push %d: expected %s, got %s", id, status, p.Status)
		}
	}

	retracts := f.jobs.kinds(queue.KindRetract)
	if len(retracts) != 1 || len(retracts[0].PushIDs) != 1 || retracts[0].PushIDs[0] != 1 {
		t.Fatalf("expected one retraction job for push 1, got %+v", retracts)
	}
}

func TestLifecycle_ExpireSweepIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.AddCampaign(activeCampaign(1, 10000))
	seedSentPush(f, 1, 1, 45*time.Minute, domain.PushSent)

	if _, err := f.lifecycle.ExpireSweep(ctx); err != nil {
		t.Fatal(err)
	}
	second, err := f.lifecycle.ExpireSweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Cancelled) != 0 {
		t.Fatalf("second sweep changed %v", second.Cancelled)
	}
	if f.store.BulkUpdateCalls != 1 {
		t.Fatalf("expected a single bulk update, got %d", f.store.BulkUpdateCalls)
	}
	if got := len(f.jobs.kinds(queue.KindRetract)); got != 1 {
		t.Fatalf("expected a single retraction job, got %d", got)
	}
}

func TestLifecycle_ReceivedIsNeverOverwritten(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.AddCampaign(activeCampaign(1, 10000))
	seedSentPush(f, 1, 1, 45*time.Minute, domain.PushReceived)
	seedSentPush(f, 2, 2, 45*time.Minute, domain.PushSent)

	res, err := f.lifecycle.Cancel(ctx, []int64{1, 2}, domain.PushExpired)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Cancelled) != 1 || res.Cancelled[0] != 2 {
		t.Fatalf("expected only push 2 cancelled, got %v", res.Cancelled)
	}
	p, _ := f.store.GetPush(ctx, 1)
	if p.Status != domain.PushReceived {
		t.Fatalf("received push changed to %s", p.Status)
	}
	if f.store.BulkUpdateCalls != 1 {
		t.Fatalf("expected all changes in one bulk update, got %d calls", f.store.BulkUpdateCalls)
	}
}

func TestLifecycle_SkipsDisabledCampaign(t *testing.T) {
	f := newFixture()
	c := activeCampaign(1, 10000)
	c.Enabled = false
	f.store.AddCampaign(c)
	seedSentPush(f, 1, 1, 45*time.Minute, domain.PushSent)

	res, _ := f.lifecycle.ExpireSweep(context.Background())
	if len(res.Cancelled) != 0 {
		t.Fatalf("expected no expiry for a disabled campaign, got %v", res.Cancelled)
	}
}

func TestLifecycle_RetractIsolatesFailures(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.AddCampaign(activeCampaign(1, 10000))
	f.store.AddUser(2, 200)
	f.addChannel(1, 1, 100, 1, 2)
	f.store.InsertPush(domain.Push{
		ID:         1,
		CampaignID: 1,
		Status:     domain.PushExpired,
		Channels:   []domain.Channel{{ID: 1}},
		Recipients: []domain.Recipient{
			{UserID: 1, ChatID: 100, MessageID: msgID(11)},
			{UserID: 2, ChatID: 200, MessageID: msgID(12)},
			{UserID: 3, ChatID: 300},
		},
	})
	f.msg.FailDeletes[100] = true

	failed, err := f.lifecycle.Retract(ctx, []int64{1})
	if err != nil {
		t.Fatal(err)
	}
	if failed != 1 {
		t.Fatalf("expected 1 failed retraction, got %d", failed)
	}
	deleted := f.msg.Deleted()
	if len(deleted) != 1 || deleted[0].ChatID != 200 || deleted[0].MessageID != 12 {
		t.Fatalf("expected message 12 in chat 200 deleted, got %+v", deleted)
	}
}

func TestLifecycle_RetractRecordsEachAttempt(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.AddCampaign(activeCampaign(1, 10000))
	f.store.AddUser(2, 200)
	f.addChannel(1, 1, 100, 1, 2)
	f.store.InsertPush(domain.Push{
		ID:         1,
		CampaignID: 1,
		Status:     domain.PushRejected,
		Channels:   []domain.Channel{{ID: 1}},
		Recipients: []domain.Recipient{
			{UserID: 1, ChatID: 100, MessageID: msgID(11)},
			{UserID: 2, ChatID: 200, MessageID: msgID(12)},
		},
	})
	f.msg.FailDeletes[100] = true

	if _, err := f.lifecycle.Retract(ctx, []int64{1}); err != nil {
		t.Fatal(err)
	}
	stored, _ := f.store.GetPush(ctx, 1)
	if pending := stored.Unretracted(); len(pending) != 0 {
		t.Fatalf("expected every delivered record attempted, %d pending", len(pending))
	}

	f.msg.FailDeletes = map[int64]bool{}
	failed, err := f.lifecycle.Retract(ctx, []int64{1})
	if err != nil || failed != 0 {
		t.Fatalf("unexpected result %d %v", failed, err)
	}
	if got := len(f.msg.Deleted()); got != 1 {
		t.Fatalf("a repeated retraction must not delete again, got %d deletions", got)
	}
}

func TestLifecycle_RetractStopsWhenCancelled(t *testing.T) {
	f := newFixture()
	f.store.AddCampaign(activeCampaign(1, 10000))
	seedSentPush(f, 1, 1, time.Minute, domain.PushExpired)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	limited := service.NewLifecycle(f.store, f.msg, ratelimiter.New(1), f.jobs, 30*time.Minute, time.Second,
		clock, service.Hooks{}, zap.NewNop())
	if _, err := limited.Retract(ctx, []int64{1}); err == nil {
		t.Fatal("expected the cancelled context to stop retraction")
	}
	stored, _ := f.store.GetPush(context.Background(), 1)
	if len(stored.Unretracted()) == 0 {
		t.Fatal("an interrupted retraction must stay pending")
	}
}

func TestLifecycle_Reject(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.AddCampaign(activeCampaign(1, 10000))
	seedSentPush(f, 1, 1, time.Minute, domain.PushSent)

	p, err := f.lifecycle.Reject(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != domain.PushRejected {
		t.Fatalf("expected rejected, got %s", p.Status)
	}

	if _, err := f.lifecycle.Reject(ctx, 1); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on second reject, got %v", err)
	}
	if _, err := f.lifecycle.Reject(ctx, 99); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLifecycle_RejectReceivedRetractsNothing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.AddCampaign(activeCampaign(1, 10000))
	seedSentPush(f, 1, 1, time.Minute, domain.PushReceived)

	if _, err := f.lifecycle.Reject(ctx, 1); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	p, _ := f.store.GetPush(ctx, 1)
	if p.Status != domain.PushReceived {
		t.Fatalf("received push changed to %s", p.Status)
	}
	if n := len(f.jobs.kinds(queue.KindRetract)); n != 0 {
		t.Fatalf("expected no retraction job, got %d", n)
	}
	if len(f.msg.Deleted()) != 0 {
		t.Fatal("expected no message deleted")
	}
}

func TestLifecycle_AcceptConfirmsChannels(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.AddCampaign(activeCampaign(1, 1000))
	f.addChannel(1, 1, 600, 1)

	if _, err := f.pushes.ScanDemand(ctx); err != nil {
		t.Fatal(err)
	}
	pushes, _ := f.store.ListPushes(ctx, 1)

	a, err := f.lifecycle.Accept(ctx, pushes[0].ID, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.ChannelIDs) != 1 || a.ChannelIDs[0] != 1 {
		t.Fatalf("expected assignment for channel 1, got %v", a.ChannelIDs)
	}

	dm, _ := f.pushes.Remaining(ctx, 1)
	if dm.ConfirmedViews != 600 || dm.VoidViews != 0 || dm.Remaining != 400 {
		t.Fatalf("expected views to move from void to confirmed, got %+v", dm)
	}

	// An expiry after acceptance leaves the push received.
	res, _ := f.lifecycle.Cancel(ctx, []int64{pushes[0].ID}, domain.PushExpired)
	if len(res.Cancelled) != 0 {
		t.Fatal("received push must not be expired")
	}
}

func TestLifecycle_Respond(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.AddCampaign(activeCampaign(1, 10000))
	seedSentPush(f, 1, 1, time.Minute, domain.PushSent)

	if _, err := f.lifecycle.Respond(ctx, 999, messenger.ActionAccept, 1); !errors.Is(err, domain.ErrNotRecipient) {
		t.Fatalf("expected ErrNotRecipient for a stranger, got %v", err)
	}

	text, err := f.lifecycle.Respond(ctx, 100, messenger.ActionReject, 1)
	if err != nil || text == "" {
		t.Fatalf("expected reject to succeed with a reply, got %q %v", text, err)
	}
	text, err = f.lifecycle.Respond(ctx, 100, messenger.ActionAccept, 1)
	if !errors.Is(err, domain.ErrInvalidTransition) || text != "This push is no longer open." {
		t.Fatalf("expected closed push reply, got %q %v", text, err)
	}
}
