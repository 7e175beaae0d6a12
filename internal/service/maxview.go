package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/notifyhub/campaign-push/internal/domain"
	"github.com/notifyhub/campaign-push/internal/repository"
)

// CampaignReport is the partial-view tally of one campaign.
type CampaignReport struct {
	CampaignID int64                 `json:"campaign_id"`
	MaxView    int                   `json:"max_view"`
	Contents   []domain.ContentViews `json:"contents"`
	Reached    bool                  `json:"max_view_reached"`
}

// ViewCloser disables campaigns whose partial content views reached max_view.
type ViewCloser struct {
	campaigns repository.CampaignRepository
	hooks     Hooks
	logger    *zap.Logger
}

func NewViewCloser(campaigns repository.CampaignRepository, hooks Hooks, logger *zap.Logger) *ViewCloser {
	return &ViewCloser{campaigns: campaigns, hooks: hooks, logger: logger}
}

// Report tallies views per partial content of a campaign.
func (v *ViewCloser) Report(ctx context.Context, campaignID int64) (CampaignReport, error) {
	c, err := v.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return CampaignReport{}, err
	}
	return v.report(ctx, c)
}

// CloseReached checks every approved and enabled campaign and disables those
// that reached max_view. It returns the ids of disabled campaigns.
func (v *ViewCloser) CloseReached(ctx context.Context) ([]int64, error) {
	campaigns, err := v.campaigns.FindEnabledCampaigns(ctx)
	if err != nil {
		return nil, fmt.Errorf("find enabled campaigns: %w", err)
	}

	var disabled []int64
	for _, c := range campaigns {
		rep, err := v.report(ctx, c)
		if err != nil {
			v.logger.Error("view report failed", zap.Int64("campaign_id", c.ID), zap.Error(err))
			continue
		}
		if !rep.Reached {
			continue
		}
		if err := v.campaigns.DisableCampaign(ctx, c.ID); err != nil {
			v.logger.Error("failed to disable campaign", zap.Int64("campaign_id", c.ID), zap.Error(err))
			continue
		}
		disabled = append(disabled, c.ID)
		v.hooks.campaignDisabled()
		v.logger.Info("campaign disabled by max view",
			zap.Int64("campaign_id", c.ID), zap.Int("max_view", c.MaxView))
	}
	return disabled, nil
}

func (v *ViewCloser) report(ctx context.Context, c *domain.Campaign) (CampaignReport, error) {
	posts, err := v.campaigns.PartialPostViews(ctx, c.ID)
	if err != nil {
		return CampaignReport{}, fmt.Errorf("partial post views: %w", err)
	}
	contents := domain.SumContentViews(posts)
	return CampaignReport{
		CampaignID: c.ID,
		MaxView:    c.MaxView,
		Contents:   contents,
		Reached:    domain.ReachedMaxView(contents, c.MaxView),
	}, nil
}
