package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/campaignkit/dispatch-service/internal/domain"
)

// CampaignRepository handles database operations for campaigns and their
// per-recipient messages.
type CampaignRepository struct {
	db *sqlx.DB
}

func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

func (r *CampaignRepository) Create(
	ctx context.Context,
	campaign *domain.Campaign,
	messages []domain.OutboundMessage,
) (*domain.Campaign, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx, `
		INSERT INTO campaigns (reference, subject, sender_email, sender_name, status, total_recipients, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'draft', ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, campaign.Reference, campaign.Subject, campaign.SenderEmail, campaign.SenderName, len(messages))
	if err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	for _, msg := range messages {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO campaign_messages (campaign_id, to_email, to_name, subject, body, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 'pending', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		`, id, msg.ToEmail, msg.ToName, msg.Subject, msg.Body); err != nil {
			return nil, fmt.Errorf("failed to create campaign message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit campaign: %w", err)
	}

	return r.GetByID(ctx, id)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*domain.Campaign, error) {
	query := `
		SELECT id, reference, subject, sender_email, sender_name, status,
		       total_recipients, total_sent, total_failed, duplicates_removed,
		       created_at, updated_at
		FROM campaigns
		WHERE id = ?
	`

	var campaign domain.Campaign
	if err := r.db.GetContext(ctx, &campaign, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return &campaign, nil
}

func (r *CampaignRepository) List(ctx context.Context, page, pageSize int) ([]domain.Campaign, int64, error) {
	offset := (page - 1) * pageSize

	var totalCount int64
	if err := r.db.GetContext(ctx, &totalCount, "SELECT COUNT(*) FROM campaigns"); err != nil {
		return nil, 0, fmt.Errorf("failed to count campaigns: %w", err)
	}

	query := `
		SELECT id, reference, subject, sender_email, sender_name, status,
		       total_recipients, total_sent, total_failed, duplicates_removed,
		       created_at, updated_at
		FROM campaigns
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	var campaigns []domain.Campaign
	if err := r.db.SelectContext(ctx, &campaigns, query, pageSize, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
	}

	return campaigns, totalCount, nil
}

func (r *CampaignRepository) GetMessages(ctx context.Context, campaignID int64) ([]domain.CampaignMessage, error) {
	query := `
		SELECT id, campaign_id, to_email, to_name, subject, body, status,
		       message_id, last_error, sent_at, created_at, updated_at
		FROM campaign_messages
		WHERE campaign_id = ?
		ORDER BY id ASC
	`

	var messages []domain.CampaignMessage
	if err := r.db.SelectContext(ctx, &messages, query, campaignID); err != nil {
		return nil, fmt.Errorf("failed to get campaign messages: %w", err)
	}

	return messages, nil
}

func (r *CampaignRepository) MarkSending(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'sending', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('draft', 'failed')
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark campaign as sending: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("campaign %d is not in a dispatchable state", id)
	}

	return nil
}

// RecordDispatchResult stores the aggregate outcome of a bulk send on the
// campaign row.
func (r *CampaignRepository) RecordDispatchResult(ctx context.Context, id int64, res domain.SendResult) error {
	status := domain.CampaignSent
	switch res.Status {
	case domain.BulkPartial:
		status = domain.CampaignPartial
	case domain.BulkError:
		status = domain.CampaignFailed
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = ?, total_sent = ?, total_failed = ?, duplicates_removed = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, res.TotalSent, res.FailedCount, res.DuplicatesRemoved, id)
	if err != nil {
		return fmt.Errorf("failed to record dispatch result: %w", err)
	}

	return nil
}

func (r *CampaignRepository) MarkMessageSent(ctx context.Context, campaignID int64, toEmail, messageID string, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_messages
		SET status = 'sent', message_id = ?, sent_at = ?, last_error = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE campaign_id = ? AND to_email = ?
	`, messageID, sentAt, campaignID, toEmail)
	if err != nil {
		return fmt.Errorf("failed to mark message as sent: %w", err)
	}

	return nil
}

func (r *CampaignRepository) MarkMessageFailed(ctx context.Context, campaignID int64, toEmail, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_messages
		SET status = 'failed', last_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE campaign_id = ? AND to_email = ?
	`, errMsg, campaignID, toEmail)
	if err != nil {
		return fmt.Errorf("failed to mark message as failed: %w", err)
	}

	return nil
}

// GetRecentlySent returns sent messages that have a provider message id, for
// the reconciliation loop to refresh delivery state.
func (r *CampaignRepository) GetRecentlySent(ctx context.Context, since time.Time, limit int) ([]domain.CampaignMessage, error) {
	query := `
		SELECT id, campaign_id, to_email, to_name, subject, body, status,
		       message_id, last_error, sent_at, created_at, updated_at
		FROM campaign_messages
		WHERE status IN ('sent', 'invalid') AND message_id IS NOT NULL AND sent_at >= ?
		ORDER BY sent_at DESC
		LIMIT ?
	`

	var messages []domain.CampaignMessage
	if err := r.db.SelectContext(ctx, &messages, query, since, limit); err != nil {
		return nil, fmt.Errorf("failed to get recently sent messages: %w", err)
	}

	return messages, nil
}

// UpdateRecipientStatus rewrites the stored status of one message row after
// reconciliation classified its delivery events.
func (r *CampaignRepository) UpdateRecipientStatus(ctx context.Context, id int64, status domain.MessageStatus, detail string) error {
	var detailPtr *string
	if detail != "" {
		detailPtr = &detail
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_messages
		SET status = ?, last_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, detailPtr, id)
	if err != nil {
		return fmt.Errorf("failed to update recipient status: %w", err)
	}

	return nil
}

func (r *CampaignRepository) ReplayFailedByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE campaign_messages
		SET status = 'pending',
		    message_id = NULL,
		    sent_at = NULL,
		    last_error = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'failed'
	`, id)
	if err != nil {
		return fmt.Errorf("failed to replay failed message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("no failed message found with id %d", id)
	}

	return nil
}

func (r *CampaignRepository) ReplayAllFailed(ctx context.Context, campaignID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE campaign_messages
		SET status = 'pending',
		    message_id = NULL,
		    sent_at = NULL,
		    last_error = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE campaign_id = ? AND status = 'failed'
	`, campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to replay failed messages: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows, nil
}

// GetStats returns message counts by status across all campaigns.
func (r *CampaignRepository) GetStats(ctx context.Context) (pending, sent, failed, invalid int64, err error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0) AS pending,
			COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0)    AS sent,
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)  AS failed,
			COALESCE(SUM(CASE WHEN status = 'invalid' THEN 1 ELSE 0 END), 0) AS invalid
		FROM campaign_messages
	`

	var stats struct {
		Pending int64 `db:"pending"`
		Sent    int64 `db:"sent"`
		Failed  int64 `db:"failed"`
		Invalid int64 `db:"invalid"`
	}

	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("failed to get stats: %w", err)
	}

	return stats.Pending, stats.Sent, stats.Failed, stats.Invalid, nil
}
