package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/notifyhub/campaign-push/internal/domain"
)

// MockPost is a campaign post seeded into MockStore.
type MockPost struct {
	AssignmentID int64
	ViewType     domain.ViewType
	Enabled      bool
	ScreenShot   string
	Views        domain.PostViews
}

// MockStore is a hand-written, in-memory implementation of both
// CampaignRepository and PushRepository used in unit tests. It applies the
// same constraints as the schema: a channel gets at most one push per
// campaign, and only sent pushes change status.
type MockStore struct {
	mu          sync.RWMutex
	chatIDs     map[int64]int64
	campaigns   map[int64]*domain.Campaign
	channels    map[int64]domain.Channel
	publishers  []domain.Publisher
	assignments map[int64]*domain.Assignment
	pushes      map[int64]*domain.Push
	pushed      map[[2]int64]int64
	posts       []MockPost
	nextPush    int64
	nextAssign  int64

	// Now stamps created pushes; defaults to time.Now.
	Now func() time.Time

	// Optional error overrides, set in tests to simulate failure paths.
	CreatePushErr     error
	SetDeliveryRefErr error
	BulkUpdateErr     error

	// BulkUpdateCalls counts BulkUpdateStatus invocations.
	BulkUpdateCalls int
}

var (
	_ CampaignRepository = (*MockStore)(nil)
	_ PushRepository     = (*MockStore)(nil)
)

func NewMockStore() *MockStore {
	return &MockStore{
		chatIDs:     make(map[int64]int64),
		campaigns:   make(map[int64]*domain.Campaign),
		channels:    make(map[int64]domain.Channel),
		assignments: make(map[int64]*domain.Assignment),
		pushes:      make(map[int64]*domain.Push),
		pushed:      make(map[[2]int64]int64),
		Now:         time.Now,
	}
}

// ---- seeding ----

// AddUser registers a Telegram user; chatID is the Telegram chat id.
func (m *MockStore) AddUser(userID, chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatIDs[userID] = chatID
}

func (m *MockStore) AddCampaign(c domain.Campaign) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[c.ID] = &c
}

func (m *MockStore) AddChannel(ch domain.Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.ID] = ch
}

// AddPublisher adds channelID to a campaign's publisher set.
func (m *MockStore) AddPublisher(id, campaignID, channelID int64, tariff int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishers = append(m.publishers, domain.Publisher{
		ID:         id,
		CampaignID: campaignID,
		Channel:    domain.Channel{ID: channelID},
		Tariff:     tariff,
	})
}

func (m *MockStore) AddAssignment(a domain.Assignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == 0 {
		m.nextAssign++
		a.ID = m.nextAssign
	} else if a.ID > m.nextAssign {
		m.nextAssign = a.ID
	}
	m.assignments[a.ID] = &a
}

func (m *MockStore) AddPost(p MockPost) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append(m.posts, p)
}

// InsertPush stores an existing push as-is. Channels need only their ids;
// the rest is filled from AddChannel data.
func (m *MockStore) InsertPush(p domain.Push) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		m.nextPush++
		p.ID = m.nextPush
	} else if p.ID > m.nextPush {
		m.nextPush = p.ID
	}
	for i, ch := range p.Channels {
		if full, ok := m.channels[ch.ID]; ok {
			p.Channels[i] = full
		}
		m.pushed[[2]int64{p.CampaignID, ch.ID}] = p.ID
	}
	m.pushes[p.ID] = clonePush(&p)
}

// ---- CampaignRepository ----

func (m *MockStore) GetCampaign(_ context.Context, id int64) (*domain.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (m *MockStore) FindSchedulableCampaigns(_ context.Context, now time.Time) ([]*domain.Campaign, error) {
	return m.filterCampaigns(func(c *domain.Campaign) bool { return c.Schedulable(now) }), nil
}

func (m *MockStore) FindEnabledCampaigns(_ context.Context) ([]*domain.Campaign, error) {
	return m.filterCampaigns(func(c *domain.Campaign) bool {
		return c.Status == domain.CampaignApproved && c.Enabled
	}), nil
}

func (m *MockStore) DisableCampaign(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.Enabled = false
	return nil
}

func (m *MockStore) ConfirmedChannels(_ context.Context, campaignID int64) ([]domain.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Channel
	for _, id := range m.confirmedLocked(campaignID) {
		out = append(out, m.channels[id])
	}
	return out, nil
}

func (m *MockStore) CandidatePublishers(_ context.Context, campaignID int64) ([]domain.Publisher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	confirmed := make(map[int64]bool)
	for _, id := range m.confirmedLocked(campaignID) {
		confirmed[id] = true
	}
	pushed := make(map[int64]bool)
	for key := range m.pushed {
		if key[0] == campaignID {
			pushed[key[1]] = true
		}
	}
	var pubs []domain.Publisher
	for _, p := range m.publishers {
		if p.CampaignID != campaignID {
			continue
		}
		p.Channel = m.channels[p.Channel.ID]
		pubs = append(pubs, p)
	}
	return domain.FilterCandidates(pubs, confirmed, pushed), nil
}

func (m *MockStore) PartialPostViews(_ context.Context, campaignID int64) ([]domain.PostViews, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.PostViews
	for _, p := range m.posts {
		a, ok := m.assignments[p.AssignmentID]
		if !ok || a.CampaignID != campaignID || p.ViewType != domain.ViewPartial || !p.Enabled {
			continue
		}
		out = append(out, p.Views)
	}
	return out, nil
}

func (m *MockStore) FindReminderTargets(_ context.Context, now time.Time, horizon time.Duration) ([]domain.ReminderTarget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.ReminderTarget
	for _, c := range m.sortedCampaignsLocked() {
		if !c.EndsWithin(now, horizon) {
			continue
		}
		seen := make(map[int64]bool)
		var chats []int64
		for _, p := range m.posts {
			a, ok := m.assignments[p.AssignmentID]
			if !ok || a.CampaignID != c.ID || p.ViewType != domain.ViewPartial || !p.Enabled || p.ScreenShot != "" {
				continue
			}
			chat := m.chatIDs[a.UserID]
			if !seen[chat] {
				seen[chat] = true
				chats = append(chats, chat)
			}
		}
		if len(chats) == 0 {
			continue
		}
		sort.Slice(chats, func(i, j int) bool { return chats[i] < chats[j] })
		out = append(out, domain.ReminderTarget{Campaign: *c, ChatIDs: chats})
	}
	return out, nil
}

func (m *MockStore) GetAssignment(_ context.Context, id int64) (*domain.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assignments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *a
	clone.ChatID = m.chatIDs[a.UserID]
	return &clone, nil
}

func (m *MockStore) UpdateReceipt(_ context.Context, id int64, price int, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.ReceiptPrice = &price
	a.ReceiptDate = &date
	return nil
}

func (m *MockStore) AssignmentChannelTags(_ context.Context, id int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assignments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	tags := make([]string, 0, len(a.ChannelIDs))
	for _, chID := range a.ChannelIDs {
		tags = append(tags, m.channels[chID].Tag)
	}
	return tags, nil
}

// ---- PushRepository ----

func (m *MockStore) CreatePush(_ context.Context, campaignID int64, plan domain.BatchPlan) (*domain.Push, error) {
	if m.CreatePushErr != nil {
		return nil, m.CreatePushErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pub := range plan.Channels {
		if _, ok := m.pushed[[2]int64{campaignID, pub.Channel.ID}]; ok {
			return nil, domain.ErrConflict
		}
	}

	now := m.Now()
	m.nextPush++
	p := &domain.Push{
		ID:         m.nextPush,
		CampaignID: campaignID,
		Status:     domain.PushSent,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, pub := range plan.Channels {
		p.Channels = append(p.Channels, pub.Channel)
		m.pushed[[2]int64{campaignID, pub.Channel.ID}] = p.ID
	}
	for _, uid := range domain.SortedAdmins(plan.AdminIDs) {
		if chat, ok := m.chatIDs[uid]; ok {
			p.Recipients = append(p.Recipients, domain.Recipient{UserID: uid, ChatID: chat})
		}
	}
	m.pushes[p.ID] = p
	return clonePush(p), nil
}

func (m *MockStore) GetPush(_ context.Context, id int64) (*domain.Push, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pushes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePush(p), nil
}

func (m *MockStore) GetPushes(_ context.Context, ids []int64) ([]*domain.Push, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Push
	for _, id := range ids {
		if p, ok := m.pushes[id]; ok {
			out = append(out, clonePush(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockStore) ListPushes(_ context.Context, campaignID int64) ([]*domain.Push, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Push
	for _, p := range m.pushes {
		if p.CampaignID == campaignID {
			out = append(out, clonePush(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockStore) PushPayouts(_ context.Context, pushID int64) ([]domain.PayoutGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pushes[pushID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	confirmed := make(map[int64]bool)
	for _, id := range m.confirmedLocked(p.CampaignID) {
		confirmed[id] = true
	}
	tariffs := make(map[int64]int)
	for _, pub := range m.publishers {
		if pub.CampaignID == p.CampaignID {
			tariffs[pub.Channel.ID] = pub.Tariff
		}
	}

	chans := append([]domain.Channel(nil), p.Channels...)
	sort.Slice(chans, func(i, j int) bool {
		if chans[i].PayoutAccount != chans[j].PayoutAccount {
			return chans[i].PayoutAccount < chans[j].PayoutAccount
		}
		return chans[i].ID < chans[j].ID
	})
	var groups []domain.PayoutGroup
	for _, ch := range chans {
		if confirmed[ch.ID] {
			continue
		}
		if n := len(groups); n == 0 || groups[n-1].Account != ch.PayoutAccount {
			groups = append(groups, domain.PayoutGroup{Account: ch.PayoutAccount})
		}
		g := &groups[len(groups)-1]
		g.Lines = append(g.Lines, domain.PayoutLine{ChannelID: ch.ID, Tag: ch.Tag, Tariff: tariffs[ch.ID]})
	}
	return groups, nil
}

func (m *MockStore) SetDeliveryRef(_ context.Context, pushID, userID int64, messageID int) error {
	if m.SetDeliveryRefErr != nil {
		return m.SetDeliveryRefErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pushes[pushID]
	if !ok {
		return domain.ErrNotFound
	}
	for i := range p.Recipients {
		if p.Recipients[i].UserID == userID {
			mid := messageID
			p.Recipients[i].MessageID = &mid
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *MockStore) FindExpirablePushes(_ context.Context, from, to time.Time) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []int64
	for _, p := range m.pushes {
		if p.Status != domain.PushSent || p.CreatedAt.Before(from) || p.CreatedAt.After(to) {
			continue
		}
		c, ok := m.campaigns[p.CampaignID]
		if !ok || c.Status != domain.CampaignApproved || !c.Enabled {
			continue
		}
		ids = append(ids, p.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MockStore) MarkDispatched(_ context.Context, pushID int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pushes[pushID]
	if !ok || p.Status != domain.PushSent || p.DispatchedAt != nil {
		return false, nil
	}
	p.DispatchedAt = &at
	return true, nil
}

func (m *MockStore) MarkRetracted(_ context.Context, pushID, userID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pushes[pushID]
	if !ok {
		return domain.ErrNotFound
	}
	for i := range p.Recipients {
		if p.Recipients[i].UserID == userID {
			p.Recipients[i].RetractedAt = &at
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *MockStore) FindUndispatchedPushes(_ context.Context, from, to time.Time) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []int64
	for _, p := range m.pushes {
		if p.Status != domain.PushSent || p.DispatchedAt != nil || p.CreatedAt.Before(from) || p.CreatedAt.After(to) {
			continue
		}
		ids = append(ids, p.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MockStore) FindUnretractedPushes(_ context.Context, since time.Time) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []int64
	for _, p := range m.pushes {
		if p.Status != domain.PushRejected && p.Status != domain.PushExpired {
			continue
		}
		if p.UpdatedAt.Before(since) || len(p.Unretracted()) == 0 {
			continue
		}
		ids = append(ids, p.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MockStore) BulkUpdateStatus(_ context.Context, updates []domain.StatusUpdate) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BulkUpdateCalls++
	if m.BulkUpdateErr != nil {
		return nil, m.BulkUpdateErr
	}
	var changed []int64
	for _, u := range updates {
		p, ok := m.pushes[u.PushID]
		if !ok || p.Status != domain.PushSent {
			continue
		}
		p.Status = u.Status
		p.UpdatedAt = u.UpdatedAt
		changed = append(changed, p.ID)
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })
	return changed, nil
}

func (m *MockStore) AcceptPush(_ context.Context, pushID, userID int64, at time.Time) (*domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pushes[pushID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !p.Status.CanTransition(domain.PushReceived) {
		return nil, domain.ErrInvalidTransition
	}
	recipient := false
	for _, r := range p.Recipients {
		if r.UserID == userID {
			recipient = true
		}
	}
	if !recipient {
		return nil, domain.ErrNotRecipient
	}

	p.Status = domain.PushReceived
	p.UpdatedAt = at

	m.nextAssign++
	a := &domain.Assignment{
		ID:         m.nextAssign,
		CampaignID: p.CampaignID,
		UserID:     userID,
		ChatID:     m.chatIDs[userID],
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	for _, ch := range p.Channels {
		for _, admin := range ch.AdminIDs {
			if admin != userID {
				continue
			}
			a.ChannelIDs = append(a.ChannelIDs, ch.ID)
			if a.PayoutAccount == "" {
				a.PayoutAccount = ch.PayoutAccount
			}
		}
	}
	m.assignments[a.ID] = a
	clone := *a
	return &clone, nil
}

// ---- helpers ----

func (m *MockStore) filterCampaigns(keep func(*domain.Campaign) bool) []*domain.Campaign {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Campaign
	for _, c := range m.sortedCampaignsLocked() {
		if keep(c) {
			clone := *c
			out = append(out, &clone)
		}
	}
	return out
}

func (m *MockStore) sortedCampaignsLocked() []*domain.Campaign {
	out := make([]*domain.Campaign, 0, len(m.campaigns))
	for _, c := range m.campaigns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// confirmedLocked returns the distinct channel ids assigned to a campaign.
func (m *MockStore) confirmedLocked(campaignID int64) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, a := range m.assignments {
		if a.CampaignID != campaignID {
			continue
		}
		for _, id := range a.ChannelIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func clonePush(p *domain.Push) *domain.Push {
	clone := *p
	if p.DispatchedAt != nil {
		at := *p.DispatchedAt
		clone.DispatchedAt = &at
	}
	clone.Channels = append([]domain.Channel(nil), p.Channels...)
	clone.Recipients = make([]domain.Recipient, len(p.Recipients))
	for i, r := range p.Recipients {
		clone.Recipients[i] = r
		if r.MessageID != nil {
			mid := *r.MessageID
			clone.Recipients[i].MessageID = &mid
		}
		if r.RetractedAt != nil {
			at := *r.RetractedAt
			clone.Recipients[i].RetractedAt = &at
		}
	}
	return &clone
}
