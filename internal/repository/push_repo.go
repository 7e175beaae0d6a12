package repository

import (
	"context"
	"time"

	"github.com/notifyhub/campaign-push/internal/domain"
)

// PushRepository defines all persistence operations for push batches and
// their delivery records. Pushes are never deleted, only status-transitioned.
type PushRepository interface {
	// CreatePush stores a new sent push for plan. It returns domain.ErrConflict
	// when any of the plan's channels already has a push for the campaign.
	CreatePush(ctx context.Context, campaignID int64, plan domain.BatchPlan) (*domain.Push, error)
	GetPush(ctx context.Context, id int64) (*domain.Push, error)
	GetPushes(ctx context.Context, ids []int64) ([]*domain.Push, error)
	// ListPushes returns every push of a campaign with its channels.
	ListPushes(ctx context.Context, campaignID int64) ([]*domain.Push, error)

	// PushPayouts lists the push's channels that are not yet confirmed,
	// grouped by payout account.
	PushPayouts(ctx context.Context, pushID int64) ([]domain.PayoutGroup, error)
	SetDeliveryRef(ctx context.Context, pushID, userID int64, messageID int) error
	// MarkDispatched claims a sent push for its single dispatch. It reports
	// false when the push was already dispatched or is no longer sent.
	MarkDispatched(ctx context.Context, pushID int64, at time.Time) (bool, error)
	// MarkRetracted records that the recipient's message went through a
	// deletion attempt.
	MarkRetracted(ctx context.Context, pushID, userID int64, at time.Time) error

	// FindExpirablePushes returns ids of sent pushes created in [from, to]
	// whose campaign is still approved and enabled.
	FindExpirablePushes(ctx context.Context, from, to time.Time) ([]int64, error)
	// FindUndispatchedPushes returns ids of sent pushes created in [from, to]
	// whose dispatch never started.
	FindUndispatchedPushes(ctx context.Context, from, to time.Time) ([]int64, error)
	// FindUnretractedPushes returns ids of rejected or expired pushes updated
	// at or after since that still have a delivered, unretracted message.
	FindUnretractedPushes(ctx context.Context, since time.Time) ([]int64, error)
	// BulkUpdateStatus persists all updates in one statement and returns the
	// ids that actually changed. Only sent pushes move; a push that reached
	// received or another final state is never overwritten.
	BulkUpdateStatus(ctx context.Context, updates []domain.StatusUpdate) ([]int64, error)
	// AcceptPush marks a sent push received and creates an assignment for the
	// accepting admin over the push channels they administer.
	AcceptPush(ctx context.Context, pushID, userID int64, at time.Time) (*domain.Assignment, error)
}
