package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/campaign-push/internal/domain"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

type pgPushRepository struct {
	pool *pgxpool.Pool
}

// NewPgPushRepository returns a PushRepository backed by PostgreSQL.
func NewPgPushRepository(pool *pgxpool.Pool) PushRepository {
	return &pgPushRepository{pool: pool}
}

func (r *pgPushRepository) CreatePush(ctx context.Context, campaignID int64, plan domain.BatchPlan) (*domain.Push, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	p := &domain.Push{CampaignID: campaignID, Status: domain.PushSent}
	err = tx.QueryRow(ctx, `
		INSERT INTO campaign_pushes (campaign_id, status)
		VALUES ($1, 'sent')
		RETURNING id, created_at, updated_at`, campaignID,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert push: %w", err)
	}

	for _, pub := range plan.Channels {
		_, err = tx.Exec(ctx, `
			INSERT INTO campaign_push_channels (push_id, campaign_id, channel_id)
			VALUES ($1, $2, $3)`, p.ID, campaignID, pub.Channel.ID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return nil, domain.ErrConflict
			}
			return nil, fmt.Errorf("insert push channel: %w", err)
		}
		p.Channels = append(p.Channels, pub.Channel)
	}

	admins := domain.SortedAdmins(plan.AdminIDs)
	if len(admins) > 0 {
		rows, err := tx.Query(ctx, `
			WITH ins AS (
				INSERT INTO campaign_push_users (push_id, user_id)
				SELECT $1, tu.id FROM telegram_users tu WHERE tu.id = ANY($2)
				RETURNING user_id
			)
			SELECT ins.user_id, tu.user_id
			FROM ins JOIN telegram_users tu ON tu.id = ins.user_id
			ORDER BY ins.user_id`,
			p.ID, admins)
		if err != nil {
			return nil, fmt.Errorf("insert push users: %w", err)
		}
		p.Recipients, err = scanRecipients(rows)
		if err != nil {
			return nil, fmt.Errorf("insert push users: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit push: %w", err)
	}
	return p, nil
}

func (r *pgPushRepository) GetPush(ctx context.Context, id int64) (*domain.Push, error) {
	pushes, err := r.GetPushes(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(pushes) == 0 {
		return nil, domain.ErrNotFound
	}
	return pushes[0], nil
}

func (r *pgPushRepository) GetPushes(ctx context.Context, ids []int64) ([]*domain.Push, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, campaign_id, status, created_at, updated_at, dispatched_at
		FROM campaign_pushes WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("get pushes: %w", err)
	}
	pushes, err := scanPushes(rows)
	if err != nil {
		return nil, err
	}
	return pushes, r.loadDetails(ctx, pushes)
}

func (r *pgPushRepository) ListPushes(ctx context.Context, campaignID int64) ([]*domain.Push, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, campaign_id, status, created_at, updated_at, dispatched_at
		FROM campaign_pushes WHERE campaign_id = $1 ORDER BY id`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list pushes: %w", err)
	}
	pushes, err := scanPushes(rows)
	if err != nil {
		return nil, err
	}
	return pushes, r.loadDetails(ctx, pushes)
}

func (r *pgPushRepository) PushPayouts(ctx context.Context, pushID int64) ([]domain.PayoutGroup, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ch.sheba_number, ch.id, ch.tag, COALESCE(cp.tariff, 0)
		FROM campaign_push_channels pc
		JOIN channels ch ON ch.id = pc.channel_id
		LEFT JOIN campaign_publishers cp
		       ON cp.campaign_id = pc.campaign_id AND cp.channel_id = pc.channel_id
		WHERE pc.push_id = $1
		  AND NOT EXISTS (
		      SELECT 1 FROM campaign_user_channels cuc
		      JOIN campaign_users cu ON cu.id = cuc.campaign_user_id
		      WHERE cu.campaign_id = pc.campaign_id AND cuc.channel_id = pc.channel_id)
		ORDER BY ch.sheba_number, ch.id`, pushID)
	if err != nil {
		return nil, fmt.Errorf("push payouts: %w", err)
	}
	defer rows.Close()

	var groups []domain.PayoutGroup
	for rows.Next() {
		var account string
		var line domain.PayoutLine
		if err := rows.Scan(&account, &line.ChannelID, &line.Tag, &line.Tariff); err != nil {
			return nil, err
		}
		if n := len(groups); n == 0 || groups[n-1].Account != account {
			groups = append(groups, domain.PayoutGroup{Account: account})
		}
		groups[len(groups)-1].Lines = append(groups[len(groups)-1].Lines, line)
	}
	return groups, rows.Err()
}

func (r *pgPushRepository) SetDeliveryRef(ctx context.Context, pushID, userID int64, messageID int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaign_push_users
		SET message_id = $1, updated_at = NOW()
		WHERE push_id = $2 AND user_id = $3`, messageID, pushID, userID)
	if err != nil {
		return fmt.Errorf("set delivery ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgPushRepository) MarkDispatched(ctx context.Context, pushID int64, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaign_pushes
		SET dispatched_at = $2
		WHERE id = $1 AND status = 'sent' AND dispatched_at IS NULL`, pushID, at)
	if err != nil {
		return false, fmt.Errorf("mark push dispatched: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgPushRepository) MarkRetracted(ctx context.Context, pushID, userID int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaign_push_users
		SET retracted_at = $3, updated_at = NOW()
		WHERE push_id = $1 AND user_id = $2`, pushID, userID, at)
	if err != nil {
		return fmt.Errorf("mark retracted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgPushRepository) FindUndispatchedPushes(ctx context.Context, from, to time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id
		FROM campaign_pushes
		WHERE status = 'sent'
		  AND dispatched_at IS NULL
		  AND created_at >= $1
		  AND created_at <= $2
		ORDER BY id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("find undispatched pushes: %w", err)
	}
	return scanIDs(rows)
}

func (r *pgPushRepository) FindUnretractedPushes(ctx context.Context, since time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id
		FROM campaign_pushes p
		WHERE p.status IN ('rejected', 'expired')
		  AND p.updated_at >= $1
		  AND EXISTS (
		      SELECT 1 FROM campaign_push_users pu
		      WHERE pu.push_id = p.id
		        AND pu.message_id IS NOT NULL
		        AND pu.retracted_at IS NULL)
		ORDER BY p.id`, since)
	if err != nil {
		return nil, fmt.Errorf("find unretracted pushes: %w", err)
	}
	return scanIDs(rows)
}

func (r *pgPushRepository) FindExpirablePushes(ctx context.Context, from, to time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id
		FROM campaign_pushes p
		JOIN campaigns c ON c.id = p.campaign_id
		WHERE p.status = 'sent'
		  AND p.created_at >= $1
		  AND p.created_at <= $2
		  AND c.status = 'approved'
		  AND c.is_enable
		ORDER BY p.id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("find expirable pushes: %w", err)
	}
	return scanIDs(rows)
}

func (r *pgPushRepository) BulkUpdateStatus(ctx context.Context, updates []domain.StatusUpdate) ([]int64, error) {
	if len(updates) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(updates))
	statuses := make([]string, len(updates))
	times := make([]time.Time, len(updates))
	for i, u := range updates {
		ids[i] = u.PushID
		statuses[i] = string(u.Status)
		times[i] = u.UpdatedAt
	}

	rows, err := r.pool.Query(ctx, `
		UPDATE campaign_pushes p
		SET status = u.status, updated_at = u.updated_at
		FROM unnest($1::bigint[], $2::text[], $3::timestamptz[]) AS u(id, status, updated_at)
		WHERE p.id = u.id AND p.status = 'sent'
		RETURNING p.id`, ids, statuses, times)
	if err != nil {
		return nil, fmt.Errorf("bulk update push status: %w", err)
	}
	defer rows.Close()

	var changed []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		changed = append(changed, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bulk update push status: %w", err)
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })
	return changed, nil
}

func (r *pgPushRepository) AcceptPush(ctx context.Context, pushID, userID int64, at time.Time) (*domain.Assignment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var campaignID int64
	var status domain.PushStatus
	err = tx.QueryRow(ctx,
		`SELECT campaign_id, status FROM campaign_pushes WHERE id = $1 FOR UPDATE`, pushID,
	).Scan(&campaignID, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock push: %w", err)
	}
	if !status.CanTransition(domain.PushReceived) {
		return nil, domain.ErrInvalidTransition
	}

	a := &domain.Assignment{CampaignID: campaignID, UserID: userID}
	err = tx.QueryRow(ctx, `
		SELECT tu.user_id
		FROM campaign_push_users pu
		JOIN telegram_users tu ON tu.id = pu.user_id
		WHERE pu.push_id = $1 AND pu.user_id = $2`, pushID, userID,
	).Scan(&a.ChatID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotRecipient
	}
	if err != nil {
		return nil, fmt.Errorf("check recipient: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE campaign_pushes SET status = 'received', updated_at = $1 WHERE id = $2`,
		at, pushID); err != nil {
		return nil, fmt.Errorf("mark push received: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT ch.id, ch.sheba_number
		FROM campaign_push_channels pc
		JOIN channel_admins ca ON ca.channel_id = pc.channel_id AND ca.user_id = $2
		JOIN channels ch ON ch.id = pc.channel_id
		WHERE pc.push_id = $1
		ORDER BY ch.id`, pushID, userID)
	if err != nil {
		return nil, fmt.Errorf("accepted channels: %w", err)
	}
	for rows.Next() {
		var id int64
		var account string
		if err := rows.Scan(&id, &account); err != nil {
			rows.Close()
			return nil, err
		}
		a.ChannelIDs = append(a.ChannelIDs, id)
		if a.PayoutAccount == "" {
			a.PayoutAccount = account
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO campaign_users (campaign_id, user_id, sheba_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id, created_at, updated_at`, campaignID, userID, a.PayoutAccount, at,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert assignment: %w", err)
	}

	for _, chID := range a.ChannelIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO campaign_user_channels (campaign_user_id, channel_id)
			VALUES ($1, $2)`, a.ID, chID); err != nil {
			return nil, fmt.Errorf("insert assignment channel: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit accept: %w", err)
	}
	return a, nil
}

// ---- helpers ----

// loadDetails fills channels (with admins) and recipients of pushes in two
// queries.
func (r *pgPushRepository) loadDetails(ctx context.Context, pushes []*domain.Push) error {
	if len(pushes) == 0 {
		return nil
	}
	byID := make(map[int64]*domain.Push, len(pushes))
	ids := make([]int64, len(pushes))
	for i, p := range pushes {
		byID[p.ID] = p
		ids[i] = p.ID
	}

	rows, err := r.pool.Query(ctx, `
		SELECT pc.push_id, ch.id, ch.tag, ch.title, ch.channel_id, ch.member_no,
		       ch.view_efficiency, ch.sheba_number,
		       COALESCE(ARRAY(SELECT ca.user_id FROM channel_admins ca
		                      WHERE ca.channel_id = ch.id ORDER BY ca.user_id), '{}')
		FROM campaign_push_channels pc
		JOIN channels ch ON ch.id = pc.channel_id
		WHERE pc.push_id = ANY($1)
		ORDER BY pc.push_id, ch.id`, ids)
	if err != nil {
		return fmt.Errorf("load push channels: %w", err)
	}
	for rows.Next() {
		var pushID int64
		var ch domain.Channel
		if err := rows.Scan(&pushID, &ch.ID, &ch.Tag, &ch.Title, &ch.TelegramID, &ch.MemberCount,
			&ch.ViewEfficiency, &ch.PayoutAccount, &ch.AdminIDs); err != nil {
			rows.Close()
			return err
		}
		byID[pushID].Channels = append(byID[pushID].Channels, ch)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT pu.push_id, pu.user_id, tu.user_id, pu.message_id, pu.retracted_at
		FROM campaign_push_users pu
		JOIN telegram_users tu ON tu.id = pu.user_id
		WHERE pu.push_id = ANY($1)
		ORDER BY pu.push_id, pu.user_id`, ids)
	if err != nil {
		return fmt.Errorf("load push recipients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pushID int64
		var rc domain.Recipient
		if err := rows.Scan(&pushID, &rc.UserID, &rc.ChatID, &rc.MessageID, &rc.RetractedAt); err != nil {
			return err
		}
		byID[pushID].Recipients = append(byID[pushID].Recipients, rc)
	}
	return rows.Err()
}

func scanPushes(rows pgx.Rows) ([]*domain.Push, error) {
	defer rows.Close()
	var result []*domain.Push
	for rows.Next() {
		var p domain.Push
		if err := rows.Scan(&p.ID, &p.CampaignID, &p.Status, &p.CreatedAt, &p.UpdatedAt, &p.DispatchedAt); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}

func scanIDs(rows pgx.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanRecipients(rows pgx.Rows) ([]domain.Recipient, error) {
	defer rows.Close()
	var result []domain.Recipient
	for rows.Next() {
		var rc domain.Recipient
		if err := rows.Scan(&rc.UserID, &rc.ChatID); err != nil {
			return nil, err
		}
		result = append(result, rc)
	}
	return result, rows.Err()
}
