package queue

// Kind names the job a worker runs for an item.
type Kind string

const (
	// KindRetract deletes delivered messages of pushes that left the sent state.
	KindRetract Kind = "retract"
	// KindDispatch sends one push to its recipients.
	KindDispatch Kind = "dispatch"
	// KindRemind sends a screenshot reminder for one campaign.
	KindRemind Kind = "remind"
)

// Priority selects the tier an item waits in.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

// Item is the minimal data placed on the queue.
// Workers fetch pushes and campaigns from the DB using the ids, keeping the
// queue lightweight and the domain data authoritative.
type Item struct {
	Kind       Kind
	PushIDs    []int64
	CampaignID int64
	ChatIDs    []int64
}

// Priority maps a job kind to its tier. Retractions go first so a rejected
// or expired push disappears from admins' chats as soon as possible.
func (i Item) Priority() Priority {
	switch i.Kind {
	case KindRetract:
		return PriorityHigh
	case KindRemind:
		return PriorityLow
	default:
		return PriorityNormal
	}
}
