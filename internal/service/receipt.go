package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/campaign-push/internal/domain"
	"github.com/notifyhub/campaign-push/internal/messenger"
	"github.com/notifyhub/campaign-push/internal/repository"
)

// ReceiptService records manually entered payment receipts and tells the
// paid user about them.
type ReceiptService struct {
	campaigns repository.CampaignRepository
	msg       messenger.Messenger
	logger    *zap.Logger
}

func NewReceiptService(campaigns repository.CampaignRepository, msg messenger.Messenger, logger *zap.Logger) *ReceiptService {
	return &ReceiptService{campaigns: campaigns, msg: msg, logger: logger}
}

// Record stores price and date on an assignment. When the receipt date
// changes, the user gets a paid message naming the campaign and channels;
// a failed message is logged and does not fail the call.
func (s *ReceiptService) Record(ctx context.Context, assignmentID int64, price int, date time.Time) (*domain.Assignment, error) {
	if price <= 0 || date.IsZero() {
		return nil, domain.ErrInvalidReceipt
	}
	a, err := s.campaigns.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	changed := a.ReceiptDateChanged(date)

	if err := s.campaigns.UpdateReceipt(ctx, assignmentID, price, date); err != nil {
		return nil, err
	}
	a.ReceiptPrice = &price
	a.ReceiptDate = &date

	if changed {
		s.notifyPaid(ctx, a)
	}
	return a, nil
}

func (s *ReceiptService) notifyPaid(ctx context.Context, a *domain.Assignment) {
	log := s.logger.With(zap.Int64("assignment_id", a.ID), zap.Int64("chat_id", a.ChatID))

	c, err := s.campaigns.GetCampaign(ctx, a.CampaignID)
	if err != nil {
		log.Error("paid message skipped: campaign lookup failed", zap.Error(err))
		return
	}
	tags, err := s.campaigns.AssignmentChannelTags(ctx, a.ID)
	if err != nil {
		log.Error("paid message skipped: channel lookup failed", zap.Error(err))
		return
	}

	if _, err := s.msg.SendText(ctx, a.ChatID, PaidText(c.Title, tags, *a.ReceiptPrice)); err != nil {
		log.Warn("paid message failed", zap.Error(err))
		return
	}
	log.Info("paid message sent")
}

// PaidText renders the HTML paid notice.
func PaidText(title string, tags []string, price int) string {
	channels := make([]string, len(tags))
	for i, t := range tags {
		channels[i] = "@" + html.EscapeString(t)
	}
	return fmt.Sprintf("Payment of %d for campaign <b>%s</b> has been made.\nChannels: %s",
		price, html.EscapeString(title), strings.Join(channels, ", "))
}
