package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/campaign-push/internal/domain"
)

type pgCampaignRepository struct {
	pool *pgxpool.Pool
}

// NewPgCampaignRepository returns a CampaignRepository backed by PostgreSQL.
func NewPgCampaignRepository(pool *pgxpool.Pool) CampaignRepository {
	return &pgCampaignRepository{pool: pool}
}

const campaignColumns = `id, title, max_view, is_enable, status, start_datetime, end_datetime,
		       COALESCE(file_id, ''), created_at, updated_at`

func (r *pgCampaignRepository) GetCampaign(ctx context.Context, id int64) (*domain.Campaign, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	c, err := scanCampaign(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return c, err
}

func (r *pgCampaignRepository) FindSchedulableCampaigns(ctx context.Context, now time.Time) ([]*domain.Campaign, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE status = 'approved'
		  AND is_enable
		  AND start_datetime <= $1
		  AND end_datetime >= $1
		  AND COALESCE(file_id, '') <> ''
		ORDER BY id`, now)
	if err != nil {
		return nil, fmt.Errorf("find schedulable campaigns: %w", err)
	}
	defer rows.Close()
	return scanCampaigns(rows)
}

func (r *pgCampaignRepository) FindEnabledCampaigns(ctx context.Context) ([]*domain.Campaign, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE status = 'approved' AND is_enable
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("find enabled campaigns: %w", err)
	}
	defer rows.Close()
	return scanCampaigns(rows)
}

func (r *pgCampaignRepository) DisableCampaign(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE campaigns SET is_enable = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("disable campaign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgCampaignRepository) ConfirmedChannels(ctx context.Context, campaignID int64) ([]domain.Channel, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ch.id, ch.tag, ch.title, ch.channel_id, ch.member_no,
		       ch.view_efficiency, ch.sheba_number
		FROM channels ch
		JOIN campaign_user_channels cuc ON cuc.channel_id = ch.id
		JOIN campaign_users cu ON cu.id = cuc.campaign_user_id
		WHERE cu.campaign_id = $1
		ORDER BY ch.id`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("confirmed channels: %w", err)
	}
	defer rows.Close()
	return scanChannels(rows)
}

func (r *pgCampaignRepository) CandidatePublishers(ctx context.Context, campaignID int64) ([]domain.Publisher, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT cp.id, cp.campaign_id, cp.tariff,
		       ch.id, ch.tag, ch.title, ch.channel_id, ch.member_no,
		       ch.view_efficiency, ch.sheba_number,
		       COALESCE(ARRAY(SELECT ca.user_id FROM channel_admins ca
		                      WHERE ca.channel_id = ch.id ORDER BY ca.user_id), '{}')
		FROM campaign_publishers cp
		JOIN channels ch ON ch.id = cp.channel_id
		WHERE cp.campaign_id = $1
		  AND NOT EXISTS (
		      SELECT 1 FROM campaign_user_channels cuc
		      JOIN campaign_users cu ON cu.id = cuc.campaign_user_id
		      WHERE cu.campaign_id = cp.campaign_id AND cuc.channel_id = ch.id)
		  AND NOT EXISTS (
		      SELECT 1 FROM campaign_push_channels pc
		      WHERE pc.campaign_id = cp.campaign_id AND pc.channel_id = ch.id)
		ORDER BY cp.id`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("candidate publishers: %w", err)
	}
	defer rows.Close()

	var out []domain.Publisher
	for rows.Next() {
		var p domain.Publisher
		ch := &p.Channel
		if err := rows.Scan(&p.ID, &p.CampaignID, &p.Tariff,
			&ch.ID, &ch.Tag, &ch.Title, &ch.TelegramID, &ch.MemberCount,
			&ch.ViewEfficiency, &ch.PayoutAccount, &ch.AdminIDs); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *pgCampaignRepository) PartialPostViews(ctx context.Context, campaignID int64) ([]domain.PostViews, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, c.id, c.display_text, p.views,
		       (SELECT l.banner_views FROM campaign_post_logs l
		        WHERE l.post_id = p.id ORDER BY l.id DESC LIMIT 1)
		FROM campaign_posts p
		JOIN campaign_contents c ON c.id = p.content_id
		JOIN campaign_users cu ON cu.id = p.campaign_user_id
		WHERE cu.campaign_id = $1
		  AND c.view_type = 'partial'
		  AND p.is_enable
		ORDER BY p.id`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("partial post views: %w", err)
	}
	defer rows.Close()

	var out []domain.PostViews
	for rows.Next() {
		var pv domain.PostViews
		if err := rows.Scan(&pv.PostID, &pv.ContentID, &pv.ContentText, &pv.Views, &pv.LastLogViews); err != nil {
			return nil, err
		}
		out = append(out, pv)
	}
	return out, rows.Err()
}

func (r *pgCampaignRepository) FindReminderTargets(ctx context.Context, now time.Time, horizon time.Duration) ([]domain.ReminderTarget, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+campaignColumns+`,
		       ARRAY(SELECT DISTINCT tu.user_id
		             FROM campaign_users cu
		             JOIN telegram_users tu ON tu.id = cu.user_id
		             JOIN campaign_posts p ON p.campaign_user_id = cu.id
		             JOIN campaign_contents c ON c.id = p.content_id
		             WHERE cu.campaign_id = campaigns.id
		               AND c.view_type = 'partial'
		               AND p.is_enable
		               AND p.screen_shot = ''
		             ORDER BY tu.user_id)
		FROM campaigns
		WHERE status = 'approved'
		  AND end_datetime >= $1
		  AND end_datetime <= $2
		ORDER BY id`, now, now.Add(horizon))
	if err != nil {
		return nil, fmt.Errorf("find reminder targets: %w", err)
	}
	defer rows.Close()

	var out []domain.ReminderTarget
	for rows.Next() {
		var t domain.ReminderTarget
		c := &t.Campaign
		if err := rows.Scan(&c.ID, &c.Title, &c.MaxView, &c.Enabled, &c.Status, &c.StartAt, &c.EndAt,
			&c.FileID, &c.CreatedAt, &c.UpdatedAt, &t.ChatIDs); err != nil {
			return nil, err
		}
		if len(t.ChatIDs) > 0 {
			out = append(out, t)
		}
	}
	return out, rows.Err()
}

func (r *pgCampaignRepository) GetAssignment(ctx context.Context, id int64) (*domain.Assignment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT cu.id, cu.campaign_id, cu.user_id, tu.user_id, cu.sheba_number,
		       cu.receipt_price, cu.receipt_date, cu.created_at, cu.updated_at,
		       COALESCE(ARRAY(SELECT cuc.channel_id FROM campaign_user_channels cuc
		                      WHERE cuc.campaign_user_id = cu.id ORDER BY cuc.channel_id), '{}')
		FROM campaign_users cu
		JOIN telegram_users tu ON tu.id = cu.user_id
		WHERE cu.id = $1`, id)

	var a domain.Assignment
	err := row.Scan(&a.ID, &a.CampaignID, &a.UserID, &a.ChatID, &a.PayoutAccount,
		&a.ReceiptPrice, &a.ReceiptDate, &a.CreatedAt, &a.UpdatedAt, &a.ChannelIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return &a, nil
}

func (r *pgCampaignRepository) UpdateReceipt(ctx context.Context, id int64, price int, date time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaign_users
		SET receipt_price = $1, receipt_date = $2, updated_at = NOW()
		WHERE id = $3`, price, date, id)
	if err != nil {
		return fmt.Errorf("update receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgCampaignRepository) AssignmentChannelTags(ctx context.Context, id int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ch.tag
		FROM campaign_user_channels cuc
		JOIN channels ch ON ch.id = cuc.channel_id
		WHERE cuc.campaign_user_id = $1
		ORDER BY ch.id`, id)
	if err != nil {
		return nil, fmt.Errorf("assignment channel tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// ---- helpers ----

func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var c domain.Campaign
	err := row.Scan(&c.ID, &c.Title, &c.MaxView, &c.Enabled, &c.Status,
		&c.StartAt, &c.EndAt, &c.FileID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCampaigns(rows pgx.Rows) ([]*domain.Campaign, error) {
	var result []*domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func scanChannels(rows pgx.Rows) ([]domain.Channel, error) {
	var result []domain.Channel
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(&ch.ID, &ch.Tag, &ch.Title, &ch.TelegramID, &ch.MemberCount,
			&ch.ViewEfficiency, &ch.PayoutAccount); err != nil {
			return nil, err
		}
		result = append(result, ch)
	}
	return result, rows.Err()
}
