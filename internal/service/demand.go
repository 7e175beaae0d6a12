package service

import (
	"context"
	"fmt"

	"github.com/notifyhub/campaign-push/internal/domain"
	"github.com/notifyhub/campaign-push/internal/repository"
)

// Demand is the view accounting of one campaign at a point in time.
type Demand struct {
	CampaignID     int64 `json:"campaign_id"`
	MaxView        int   `json:"max_view"`
	ConfirmedViews int   `json:"confirmed_views"`
	VoidViews      int   `json:"void_views"`
	Remaining      int   `json:"remaining"`
}

// DemandCalculator computes how many impressions a campaign still needs.
// It only reads.
type DemandCalculator struct {
	campaigns repository.CampaignRepository
	pushes    repository.PushRepository
}

func NewDemandCalculator(campaigns repository.CampaignRepository, pushes repository.PushRepository) *DemandCalculator {
	return &DemandCalculator{campaigns: campaigns, pushes: pushes}
}

// Compute returns max(0, max_view - confirmed - void) for c, where void views
// are those reserved by pushes still waiting for an answer.
func (d *DemandCalculator) Compute(ctx context.Context, c *domain.Campaign) (Demand, error) {
	confirmed, err := d.campaigns.ConfirmedChannels(ctx, c.ID)
	if err != nil {
		return Demand{}, fmt.Errorf("confirmed channels of campaign %d: %w", c.ID, err)
	}
	pushes, err := d.pushes.ListPushes(ctx, c.ID)
	if err != nil {
		return Demand{}, fmt.Errorf("pushes of campaign %d: %w", c.ID, err)
	}

	dm := Demand{
		CampaignID:     c.ID,
		MaxView:        c.MaxView,
		ConfirmedViews: domain.ConfirmedViews(confirmed),
		VoidViews:      domain.VoidViews(pushes),
	}
	dm.Remaining = domain.RemainingViews(dm.MaxView, dm.ConfirmedViews, dm.VoidViews)
	return dm, nil
}
