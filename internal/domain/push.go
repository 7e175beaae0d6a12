package domain

import "time"

// PushStatus tracks the lifecycle of a push batch.
type PushStatus string

const (
	PushSent     PushStatus = "sent"
	PushReceived PushStatus = "received"
	PushRejected PushStatus = "rejected"
	PushExpired  PushStatus = "expired"
)

func (s PushStatus) IsValid() bool {
	switch s {
	case PushSent, PushReceived, PushRejected, PushExpired:
		return true
	}
	return false
}

// Outstanding reports whether the push still reserves views for its campaign.
func (s PushStatus) Outstanding() bool { return s == PushSent }

// CanTransition reports whether a push may move from s to next.
// Only sent pushes move, and only to one of the three final states.
func (s PushStatus) CanTransition(next PushStatus) bool {
	if s != PushSent {
		return false
	}
	switch next {
	case PushReceived, PushRejected, PushExpired:
		return true
	}
	return false
}

// Push is one grouped notification to the admins that jointly own a set of
// channels, asking them to publish a campaign.
type Push struct {
	ID         int64       `json:"id"`
	CampaignID int64       `json:"campaign_id"`
	Status     PushStatus  `json:"status"`
	Channels   []Channel   `json:"channels"`
	Recipients []Recipient `json:"recipients"`
	CreatedAt  time.Time   `json:"created_time"`
	UpdatedAt  time.Time   `json:"updated_time"`

	// DispatchedAt is set once, when the dispatcher claims the push.
	DispatchedAt *time.Time `json:"dispatched_time,omitempty"`
}

// Transition moves p to next, stamping UpdatedAt.
func (p *Push) Transition(next PushStatus, at time.Time) error {
	if !next.IsValid() {
		return ErrInvalidStatus
	}
	if !p.Status.CanTransition(next) {
		return ErrInvalidTransition
	}
	p.Status = next
	p.UpdatedAt = at
	return nil
}

// ChannelIDs returns the ids of the push's target channels.
func (p *Push) ChannelIDs() []int64 {
	ids := make([]int64, len(p.Channels))
	for i, ch := range p.Channels {
		ids[i] = ch.ID
	}
	return ids
}

// Delivered returns the recipients whose message reached Telegram.
func (p *Push) Delivered() []Recipient {
	var out []Recipient
	for _, r := range p.Recipients {
		if r.Delivered() {
			out = append(out, r)
		}
	}
	return out
}

// Unretracted returns the delivered recipients whose message has not been
// through a deletion attempt yet.
func (p *Push) Unretracted() []Recipient {
	var out []Recipient
	for _, r := range p.Recipients {
		if r.Delivered() && r.RetractedAt == nil {
			out = append(out, r)
		}
	}
	return out
}

// Recipient is the delivery record of one admin for one push.
type Recipient struct {
	UserID      int64      `json:"user_id"`
	ChatID      int64      `json:"chat_id"`
	MessageID   *int       `json:"message_id,omitempty"`
	RetractedAt *time.Time `json:"retracted_time,omitempty"`
}

// Delivered reports whether a message reference was recorded.
func (r Recipient) Delivered() bool { return r.MessageID != nil }

// BatchPlan is one push to be created: the admins to notify and the channels
// they jointly own.
type BatchPlan struct {
	AdminIDs []int64     `json:"admin_ids"`
	Channels []Publisher `json:"channels"`
}

// Views returns the sum of view efficiency over the plan's channels.
func (b BatchPlan) Views() int {
	total := 0
	for _, p := range b.Channels {
		total += p.Channel.ViewEfficiency
	}
	return total
}

// PayoutLine is one still-unconfirmed channel shown in a push message.
type PayoutLine struct {
	ChannelID int64  `json:"id"`
	Tag       string `json:"tag"`
	Tariff    int    `json:"tariff"`
}

// PayoutGroup lists payout lines sharing one payout account.
type PayoutGroup struct {
	Account string       `json:"sheba_number"`
	Lines   []PayoutLine `json:"lines"`
}

// StatusUpdate is a pending status change persisted by a bulk update.
type StatusUpdate struct {
	PushID    int64
	Status    PushStatus
	UpdatedAt time.Time
}

// Outcome is the result of sending a push to a single recipient.
type Outcome struct {
	UserID    int64
	ChatID    int64
	MessageID *int
	Err       error
}

// Delivered reports whether the send produced a message reference.
func (o Outcome) Delivered() bool { return o.Err == nil && o.MessageID != nil }
