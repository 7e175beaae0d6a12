package repository

import (
	"context"
	"time"

	"github.com/notifyhub/campaign-push/internal/domain"
)

// CampaignRepository reads campaigns, channel inventory, assignments and post
// views. The pgx implementation is in pg_campaign_repo.go.
// Tests use a hand-written in-memory store (mock_store.go).
type CampaignRepository interface {
	GetCampaign(ctx context.Context, id int64) (*domain.Campaign, error)
	// FindSchedulableCampaigns returns approved, enabled campaigns whose window
	// contains now and whose creative is uploaded, ordered by id.
	FindSchedulableCampaigns(ctx context.Context, now time.Time) ([]*domain.Campaign, error)
	// FindEnabledCampaigns returns approved and enabled campaigns.
	FindEnabledCampaigns(ctx context.Context) ([]*domain.Campaign, error)
	DisableCampaign(ctx context.Context, id int64) error

	// ConfirmedChannels returns the distinct channels assigned to the campaign.
	ConfirmedChannels(ctx context.Context, campaignID int64) ([]domain.Channel, error)
	// CandidatePublishers returns the campaign's publishers whose channel has
	// no assignment and no push of any status, ordered by publisher id, with
	// channel admins loaded.
	CandidatePublishers(ctx context.Context, campaignID int64) ([]domain.Publisher, error)

	// PartialPostViews returns enabled posts of partial-view contents.
	PartialPostViews(ctx context.Context, campaignID int64) ([]domain.PostViews, error)
	// FindReminderTargets returns approved campaigns ending in [now, now+horizon]
	// with the chat ids of users owing a screenshot.
	FindReminderTargets(ctx context.Context, now time.Time, horizon time.Duration) ([]domain.ReminderTarget, error)

	GetAssignment(ctx context.Context, id int64) (*domain.Assignment, error)
	UpdateReceipt(ctx context.Context, id int64, price int, date time.Time) error
	AssignmentChannelTags(ctx context.Context, id int64) ([]string, error)
}
