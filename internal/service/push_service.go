package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/campaign-push/internal/domain"
	"github.com/notifyhub/campaign-push/internal/queue"
	"github.com/notifyhub/campaign-push/internal/repository"
)

// ScanResult summarises one demand scan.
type ScanResult struct {
	Campaigns int `json:"campaigns"`
	Pushes    int `json:"pushes"`
	Failed    int `json:"failed"`
}

// PushService runs the demand scan: it finds campaigns that still owe views,
// plans push batches for them and hands each batch to the dispatcher.
// HTTP handlers, the CLI and the cron scheduler depend on this service, not
// on each other.
type PushService struct {
	campaigns repository.CampaignRepository
	pushes    repository.PushRepository
	demand    *DemandCalculator
	jobs      Enqueuer
	stagger   time.Duration
	now       Clock
	hooks     Hooks
	logger    *zap.Logger
}

// NewPushService wires the scan. A nil now uses the wall clock.
func NewPushService(
	campaigns repository.CampaignRepository,
	pushes repository.PushRepository,
	jobs Enqueuer,
	stagger time.Duration,
	now Clock,
	hooks Hooks,
	logger *zap.Logger,
) *PushService {
	if now == nil {
		now = time.Now
	}
	return &PushService{
		campaigns: campaigns,
		pushes:    pushes,
		demand:    NewDemandCalculator(campaigns, pushes),
		jobs:      jobs,
		stagger:   stagger,
		now:       now,
		hooks:     hooks,
		logger:    logger,
	}
}

// ScanDemand processes every schedulable campaign in id order. A failure on
// one campaign is logged and does not stop the others.
func (s *PushService) ScanDemand(ctx context.Context) (ScanResult, error) {
	var res ScanResult
	campaigns, err := s.campaigns.FindSchedulableCampaigns(ctx, s.now())
	if err != nil {
		return res, fmt.Errorf("find schedulable campaigns: %w", err)
	}

	for _, c := range campaigns {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Campaigns++
		n, err := s.scanCampaign(ctx, c)
		res.Pushes += n
		if err != nil {
			res.Failed++
			s.logger.Error("demand scan failed for campaign",
				zap.Int64("campaign_id", c.ID), zap.Error(err))
		}
	}
	return res, nil
}

// ScanCampaign runs the scan for a single campaign, which must be
// schedulable now. It returns the number of pushes created.
func (s *PushService) ScanCampaign(ctx context.Context, campaignID int64) (int, error) {
	c, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	if !c.Schedulable(s.now()) {
		return 0, domain.ErrCampaignNotSchedulable
	}
	return s.scanCampaign(ctx, c)
}

// Remaining reports the demand of a campaign regardless of its status.
func (s *PushService) Remaining(ctx context.Context, campaignID int64) (Demand, error) {
	c, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return Demand{}, err
	}
	return s.demand.Compute(ctx, c)
}

func (s *PushService) GetPush(ctx context.Context, id int64) (*domain.Push, error) {
	return s.pushes.GetPush(ctx, id)
}

// ---- private helpers ----

func (s *PushService) scanCampaign(ctx context.Context, c *domain.Campaign) (int, error) {
	log := s.logger.With(zap.Int64("campaign_id", c.ID))

	dm, err := s.demand.Compute(ctx, c)
	if err != nil {
		return 0, err
	}
	if dm.Remaining == 0 {
		log.Debug("campaign has no remaining demand",
			zap.Int("confirmed_views", dm.ConfirmedViews),
			zap.Int("void_views", dm.VoidViews))
		return 0, nil
	}

	candidates, err := s.campaigns.CandidatePublishers(ctx, c.ID)
	if err != nil {
		return 0, fmt.Errorf("candidate publishers: %w", err)
	}
	plans := BuildBatches(candidates, dm.Remaining)

	created := 0
	for _, plan := range plans {
		p, err := s.pushes.CreatePush(ctx, c.ID, plan)
		if errors.Is(err, domain.ErrConflict) {
			// A concurrent scan claimed one of the channels first.
			log.Warn("push plan conflicts with an existing push",
				zap.Int64s("admins", plan.AdminIDs))
			continue
		}
		if err != nil {
			return created, fmt.Errorf("create push: %w", err)
		}

		item := queue.Item{Kind: queue.KindDispatch, PushIDs: []int64{p.ID}}
		if err := s.jobs.EnqueueAfter(item, time.Duration(created)*s.stagger); err != nil {
			// The push stays sent and reserves its views until it expires.
			log.Error("failed to enqueue push dispatch", zap.Int64("push_id", p.ID), zap.Error(err))
		}
		created++
		s.hooks.pushCreated(c.ID)
		log.Info("push created",
			zap.Int64("push_id", p.ID),
			zap.Int("channels", len(plan.Channels)),
			zap.Int("views", plan.Views()),
			zap.Int("recipients", len(p.Recipients)))
	}
	return created, nil
}
