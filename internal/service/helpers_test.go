package service_test

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/campaign-push/internal/cache"
	"github.com/notifyhub/campaign-push/internal/domain"
	"github.com/notifyhub/campaign-push/internal/messenger"
	"github.com/notifyhub/campaign-push/internal/queue"
	"github.com/notifyhub/campaign-push/internal/ratelimiter"
	"github.com/notifyhub/campaign-push/internal/repository"
	"github.com/notifyhub/campaign-push/internal/service"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

// recordingJobs captures enqueued jobs instead of running them.
type recordingJobs struct {
	mu     sync.Mutex
	items  []queue.Item
	delays []time.Duration
}

func (r *recordingJobs) EnqueueAfter(item queue.Item, delay time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	r.delays = append(r.delays, delay)
	return nil
}

func (r *recordingJobs) kinds(kind queue.Kind) []queue.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []queue.Item
	for _, it := range r.items {
		if it.Kind == kind {
			out = append(out, it)
		}
	}
	return out
}

type fixture struct {
	store     *repository.MockStore
	msg       *messenger.MockMessenger
	cache     *cache.Memory
	jobs      *recordingJobs
	pushes    *service.PushService
	dispatch  *service.Dispatcher
	lifecycle *service.Lifecycle
	reminder  *service.Reminder
	closer    *service.ViewCloser
	receipts  *service.ReceiptService
	triggers  *service.Triggers
}

func newFixture() *fixture {
	store := repository.NewMockStore()
	store.Now = clock
	msg := messenger.NewMockMessenger()
	mem := cache.NewMemoryWithClock(clock)
	jobs := &recordingJobs{}
	limiter := ratelimiter.New(0)
	log := zap.NewNop()

	f := &fixture{store: store, msg: msg, cache: mem, jobs: jobs}
	f.pushes = service.NewPushService(store, store, jobs, 5*time.Second, clock, service.Hooks{}, log)
	f.dispatch = service.NewDispatcher(store, store, msg, limiter, clock, service.Hooks{}, log)
	f.lifecycle = service.NewLifecycle(store, msg, limiter, jobs, 30*time.Minute, time.Second, clock, service.Hooks{}, log)
	f.reminder = service.NewReminder(store, msg, mem, limiter, jobs, 24*time.Hour, 4*time.Hour, clock, service.Hooks{}, log)
	f.closer = service.NewViewCloser(store, service.Hooks{}, log)
	f.receipts = service.NewReceiptService(store, msg, log)
	f.triggers = service.NewTriggers(f.pushes, f.lifecycle, f.reminder, f.closer, service.Hooks{}, log)
	return f
}

// activeCampaign returns an approved, enabled, uploaded campaign running
// around now.
func activeCampaign(id int64, maxView int) domain.Campaign {
	return domain.Campaign{
		ID:      id,
		Title:   "Spring sale",
		MaxView: maxView,
		Enabled: true,
		Status:  domain.CampaignApproved,
		StartAt: now.Add(-24 * time.Hour),
		EndAt:   now.Add(72 * time.Hour),
		FileID:  "AgACAgQAAx0",
	}
}

// addChannel registers a channel owned by admins and makes it a publisher of
// campaignID. Admin user ids map to chat ids id*100.
func (f *fixture) addChannel(campaignID, id int64, views int, admins ...int64) {
	for _, a := range admins {
		f.store.AddUser(a, a*100)
	}
	f.store.AddChannel(domain.Channel{
		ID:             id,
		Tag:            fmt.Sprintf("chan%d", id),
		ViewEfficiency: views,
		PayoutAccount:  fmt.Sprintf("IR%024d", id),
		AdminIDs:       admins,
	})
	f.store.AddPublisher(id*10, campaignID, id, 1000*int(id))
}
