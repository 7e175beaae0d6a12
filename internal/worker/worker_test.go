package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/campaign-push/internal/cache"
	"github.com/notifyhub/campaign-push/internal/config"
	"github.com/notifyhub/campaign-push/internal/domain"
	"github.com/notifyhub/campaign-push/internal/messenger"
	"github.com/notifyhub/campaign-push/internal/queue"
	"github.com/notifyhub/campaign-push/internal/ratelimiter"
	"github.com/notifyhub/campaign-push/internal/repository"
	"github.com/notifyhub/campaign-push/internal/service"
	"github.com/notifyhub/campaign-push/internal/worker"
)

// fakeServices records every call routed by the handler.
type fakeServices struct {
	mu          sync.Mutex
	dispatched  []int64
	retracted   [][]int64
	reminded    []int64
	dispatchErr error
	retractFail int
	done        chan struct{}
	ctxErr      error
}

func (f *fakeServices) Dispatch(ctx context.Context, id int64) ([]domain.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, id)
	f.ctxErr = ctx.Err()
	if f.done != nil {
		f.done <- struct{}{}
	}
	return nil, f.dispatchErr
}

func (f *fakeServices) Retract(_ context.Context, ids []int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retracted = append(f.retracted, ids)
	return f.retractFail, nil
}

func (f *fakeServices) Send(_ context.Context, campaignID int64, _ []int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reminded = append(f.reminded, campaignID)
	return 1, nil
}

func newHandler(f *fakeServices) *worker.Handler {
	return worker.NewHandler(f, f, f)
}

func TestHandler_RoutesByKind(t *testing.T) {
	f := &fakeServices{}
	h := newHandler(f)
	ctx := context.Background()

	items := []queue.Item{
		{Kind: queue.KindDispatch, PushIDs: []int64{1, 2}},
		{Kind: queue.KindRetract, PushIDs: []int64{3, 4}},
		{Kind: queue.KindRemind, CampaignID: 9, ChatIDs: []int64{100}},
	}
	for _, it := range items {
		if err := h.Handle(ctx, it); err != nil {
			t.Fatalf("%s: unexpected error: %v", it.Kind, err)
		}
	}

	if len(f.dispatched) != 2 || len(f.retracted) != 1 || len(f.reminded) != 1 || f.reminded[0] != 9 {
		t.Fatalf("unexpected routing: %+v", f)
	}
	if err := h.Handle(ctx, queue.Item{Kind: "vacuum"}); err == nil {
		t.Fatal("expected an error for an unknown kind")
	}
}

func TestHandler_ReportsFailures(t *testing.T) {
	f := &fakeServices{dispatchErr: errors.New("db down"), retractFail: 2}
	h := newHandler(f)

	if err := h.Handle(context.Background(), queue.Item{Kind: queue.KindDispatch, PushIDs: []int64{1}}); err == nil {
		t.Fatal("expected dispatch error")
	}
	if err := h.Handle(context.Background(), queue.Item{Kind: queue.KindRetract, PushIDs: []int64{1}}); err == nil {
		t.Fatal("expected an error for failed retractions")
	}
}

func TestPool_DrainsQueue(t *testing.T) {
	f := &fakeServices{done: make(chan struct{}, 3)}
	q := queue.New()
	cfg := &config.Config{Workers: 2}
	pool := worker.NewPool(cfg, q, newHandler(f), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	for id := int64(1); id <= 3; id++ {
		if err := q.Enqueue(queue.Item{Kind: queue.KindDispatch, PushIDs: []int64{id}}); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 3; i++ {
		select {
		case <-f.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for dispatches")
		}
	}

	cancel()
	pool.Wait()
}

func TestInline_RunsImmediately(t *testing.T) {
	f := &fakeServices{}
	in := worker.NewInline(context.Background(), zap.NewNop())

	if err := in.EnqueueAfter(queue.Item{Kind: queue.KindDispatch, PushIDs: []int64{1}}, time.Hour); err == nil {
		t.Fatal("expected an error before a handler is bound")
	}

	in.Bind(newHandler(f))
	if err := in.EnqueueAfter(queue.Item{Kind: queue.KindDispatch, PushIDs: []int64{7}}, time.Hour); err != nil {
		t.Fatal(err)
	}
	if len(f.dispatched) != 1 || f.dispatched[0] != 7 || in.Ran() != 1 {
		t.Fatalf("expected push 7 dispatched inline, got %v", f.dispatched)
	}
}

func TestInline_RunsOnCommandContext(t *testing.T) {
	f := &fakeServices{}
	ctx, cancel := context.WithCancel(context.Background())
	in := worker.NewInline(ctx, zap.NewNop())
	in.Bind(newHandler(f))
	cancel()

	if err := in.EnqueueAfter(queue.Item{Kind: queue.KindDispatch, PushIDs: []int64{7}}, 0); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(f.ctxErr, context.Canceled) {
		t.Fatalf("expected the job to see the cancelled command context, got %v", f.ctxErr)
	}
}

type recordingJobs struct {
	items  []queue.Item
	delays []time.Duration
}

func (r *recordingJobs) EnqueueAfter(item queue.Item, delay time.Duration) error {
	r.items = append(r.items, item)
	r.delays = append(r.delays, delay)
	return nil
}

func TestRecoveryWorker_ReenqueuesUndispatched(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mid := 55
	dispatchedAt := now.Add(-4 * time.Minute)
	store := repository.NewMockStore()
	store.InsertPush(domain.Push{ID: 1, CampaignID: 1, Status: domain.PushSent, CreatedAt: now.Add(-10 * time.Minute),
		Recipients: []domain.Recipient{{UserID: 1, ChatID: 100}}})
	store.InsertPush(domain.Push{ID: 2, CampaignID: 1, Status: domain.PushSent, CreatedAt: now.Add(-5 * time.Minute),
		DispatchedAt: &dispatchedAt, Recipients: []domain.Recipient{{UserID: 1, ChatID: 100, MessageID: &mid}}})
	store.InsertPush(domain.Push{ID: 3, CampaignID: 1, Status: domain.PushSent, CreatedAt: now.Add(-2 * time.Hour)})
	store.InsertPush(domain.Push{ID: 4, CampaignID: 1, Status: domain.PushRejected, CreatedAt: now.Add(-time.Minute)})
	store.InsertPush(domain.Push{ID: 5, CampaignID: 1, Status: domain.PushSent, CreatedAt: now.Add(-time.Minute)})

	jobs := &recordingJobs{}
	rw := worker.NewRecoveryWorker(store, jobs, 30*time.Minute, 5*time.Second,
		func() time.Time { return now }, zap.NewNop())

	n, err := rw.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || jobs.items[0].PushIDs[0] != 1 || jobs.items[1].PushIDs[0] != 5 {
		t.Fatalf("expected pushes 1 and 5 re-enqueued, got %+v", jobs.items)
	}
	if jobs.delays[1] != 5*time.Second {
		t.Fatalf("expected staggered delay, got %v", jobs.delays[1])
	}
}

func TestRecoveryWorker_SkipsPushWhoseSendsAllFailed(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	ctx := context.Background()

	store := repository.NewMockStore()
	store.Now = clock
	store.AddCampaign(domain.Campaign{ID: 1, Title: "Spring sale", Status: domain.CampaignApproved, Enabled: true,
		StartAt: now.Add(-time.Hour), EndAt: now.Add(time.Hour), FileID: "AgACAgQAAx0"})
	store.AddChannel(domain.Channel{ID: 1, Tag: "chan1", ViewEfficiency: 100, AdminIDs: []int64{1, 2, 3}})
	for _, uid := range []int64{1, 2, 3} {
		store.AddUser(uid, uid*100)
	}
	p, err := store.CreatePush(ctx, 1, domain.BatchPlan{AdminIDs: []int64{1, 2, 3},
		Channels: []domain.Publisher{{Channel: domain.Channel{ID: 1}}}})
	if err != nil {
		t.Fatal(err)
	}

	msg := messenger.NewMockMessenger()
	for _, chat := range []int64{100, 200, 300} {
		msg.FailChats[chat] = true
	}
	d := service.NewDispatcher(store, store, msg, ratelimiter.New(0), clock, service.Hooks{}, zap.NewNop())
	if _, err := d.Dispatch(ctx, p.ID); err != nil {
		t.Fatal(err)
	}

	jobs := &recordingJobs{}
	n, err := worker.NewRecoveryWorker(store, jobs, 30*time.Minute, time.Second, clock, zap.NewNop()).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 || len(jobs.items) != 0 {
		t.Fatalf("failed sends are terminal, expected nothing re-enqueued, got %+v", jobs.items)
	}
}

func TestRecoveryWorker_ReenqueuesPendingRetractions(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m1, m2, m3 := 11, 12, 13
	done := now.Add(-time.Minute)
	store := repository.NewMockStore()
	// expired, message never deleted
	store.InsertPush(domain.Push{ID: 1, CampaignID: 1, Status: domain.PushExpired, UpdatedAt: now.Add(-time.Minute),
		Recipients: []domain.Recipient{{UserID: 1, ChatID: 100, MessageID: &m1}}})
	// rejected, already retracted
	store.InsertPush(domain.Push{ID: 2, CampaignID: 1, Status: domain.PushRejected, UpdatedAt: now.Add(-time.Minute),
		Recipients: []domain.Recipient{{UserID: 1, ChatID: 100, MessageID: &m2, RetractedAt: &done}}})
	// received messages stay
	store.InsertPush(domain.Push{ID: 3, CampaignID: 1, Status: domain.PushReceived, UpdatedAt: now.Add(-time.Minute),
		Recipients: []domain.Recipient{{UserID: 1, ChatID: 100, MessageID: &m3}}})
	// cancelled too long ago for Telegram to delete
	store.InsertPush(domain.Push{ID: 4, CampaignID: 1, Status: domain.PushRejected, UpdatedAt: now.Add(-72 * time.Hour),
		Recipients: []domain.Recipient{{UserID: 1, ChatID: 100, MessageID: &m1}}})

	jobs := &recordingJobs{}
	n, err := worker.NewRecoveryWorker(store, jobs, 30*time.Minute, time.Second,
		func() time.Time { return now }, zap.NewNop()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || len(jobs.items) != 1 {
		t.Fatalf("expected one retraction job, got %+v", jobs.items)
	}
	item := jobs.items[0]
	if item.Kind != queue.KindRetract || len(item.PushIDs) != 1 || item.PushIDs[0] != 1 {
		t.Fatalf("expected push 1 retracted, got %+v", item)
	}
}

type countingRunner struct{}

func (countingRunner) Run(context.Context, string) (int, error) { return 0, nil }

func TestNewScheduler_ValidatesSpecs(t *testing.T) {
	cfg := &config.Config{
		SendPushSchedule:    "*/10 * * * *",
		ExpirePushSchedule:  "*/5 * * * *",
		ShotPushSchedule:    "0 * * * *",
		CloseByViewSchedule: "@every 15m",
	}
	s, err := worker.NewScheduler(time.UTC, worker.Schedules(cfg), countingRunner{}, cache.NewMemory(), time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	cfg.ExpirePushSchedule = "every five minutes"
	if _, err := worker.NewScheduler(time.UTC, worker.Schedules(cfg), countingRunner{}, cache.NewMemory(), time.Minute, zap.NewNop()); err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}
