package domain

import "time"

// CampaignStatus is the operator-controlled approval state of a campaign.
type CampaignStatus string

const (
	CampaignWaiting  CampaignStatus = "waiting"
	CampaignTest     CampaignStatus = "test"
	CampaignApproved CampaignStatus = "approved"
	CampaignClose    CampaignStatus = "close"
	CampaignRejected CampaignStatus = "rejected"
)

func (s CampaignStatus) IsValid() bool {
	switch s {
	case CampaignWaiting, CampaignTest, CampaignApproved, CampaignClose, CampaignRejected:
		return true
	}
	return false
}

// Campaign is an advertising campaign with a total impression budget.
type Campaign struct {
	ID       int64          `json:"id"`
	Title    string         `json:"title"`
	MaxView  int            `json:"max_view"`
	Enabled  bool           `json:"is_enable"`
	Status   CampaignStatus `json:"status"`
	StartAt  time.Time      `json:"start_datetime"`
	EndAt    time.Time      `json:"end_datetime"`
	// FileID is the Telegram file id of the uploaded creative. Empty until uploaded.
	FileID    string    `json:"file_id,omitempty"`
	CreatedAt time.Time `json:"created_time"`
	UpdatedAt time.Time `json:"updated_time"`
}

// Schedulable reports whether the demand scan may create pushes for c at now.
func (c *Campaign) Schedulable(now time.Time) bool {
	return c.Status == CampaignApproved &&
		c.Enabled &&
		!c.StartAt.After(now) &&
		!c.EndAt.Before(now) &&
		c.FileID != ""
}

// EndsWithin reports whether c is approved and ends in [now, now+horizon].
func (c *Campaign) EndsWithin(now time.Time, horizon time.Duration) bool {
	return c.Status == CampaignApproved &&
		!c.EndAt.Before(now) &&
		!c.EndAt.After(now.Add(horizon))
}

// Assignment is a user that accepted a campaign, together with the channels
// they serve it on. Its channels count as confirmed views.
type Assignment struct {
	ID            int64      `json:"id"`
	CampaignID    int64      `json:"campaign_id"`
	UserID        int64      `json:"user_id"`
	ChatID        int64      `json:"chat_id"`
	ChannelIDs    []int64    `json:"channel_ids"`
	PayoutAccount string     `json:"sheba_number"`
	ReceiptPrice  *int       `json:"receipt_price,omitempty"`
	ReceiptDate   *time.Time `json:"receipt_date,omitempty"`
	CreatedAt     time.Time  `json:"created_time"`
	UpdatedAt     time.Time  `json:"updated_time"`
}

// Paid reports whether a receipt date has been recorded.
func (a *Assignment) Paid() bool { return a.ReceiptDate != nil }

// ReceiptDateChanged reports whether date differs from the stored receipt date.
// Dates are compared at day granularity.
func (a *Assignment) ReceiptDateChanged(date time.Time) bool {
	if a.ReceiptDate == nil {
		return true
	}
	y1, m1, d1 := a.ReceiptDate.Date()
	y2, m2, d2 := date.Date()
	return y1 != y2 || m1 != m2 || d1 != d2
}

// ReminderTarget is a campaign close to its end together with the chat ids
// of users who still owe a screenshot for a partial-view post.
type ReminderTarget struct {
	Campaign Campaign
	ChatIDs  []int64
}
