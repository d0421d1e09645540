package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	appErrors "github.com/Rakesh-Kumar-Talam/CRM-backend/internal/errors"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
)

type CommunicationLogRepositoryInterface interface {
	Create(ctx context.Context, l *model.CommunicationLog) error
	GetByMessageID(ctx context.Context, messageID string) (*model.CommunicationLog, error)
	ListByCampaign(ctx context.Context, ownerID, campaignID string, offset, limit int) ([]model.CommunicationLog, int, error)
	// MarkOutcomes has the same contract as the sent-message variant.
	MarkOutcomes(ctx context.Context, outcomes []model.Outcome) ([]string, error)
}

type CommunicationLogRepository struct {
	DB *sql.DB
}

const commLogColumns = `id, owner_id, campaign_id, customer_id, message_id, status, message, error_message, sent_at, created_at, updated_at`

func scanCommLog(row interface{ Scan(...any) error }, l *model.CommunicationLog) error {
	var campaignID, customerID sql.NullString
	var sentAt sql.NullTime
	if err := row.Scan(&l.ID, &l.OwnerID, &campaignID, &customerID, &l.MessageID, &l.Status, &l.Message,
		&l.ErrorMessage, &sentAt, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return err
	}
	l.CampaignID = nullStringPtr(campaignID)
	l.CustomerID = nullStringPtr(customerID)
	l.SentAt = nullTimePtr(sentAt)
	return nil
}

func (r *CommunicationLogRepository) Create(ctx context.Context, l *model.CommunicationLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	query := `
        INSERT INTO communication_logs (id, owner_id, campaign_id, customer_id, message_id, status, message, error_message, sent_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `
	_, err := r.DB.ExecContext(ctx, query, l.ID, l.OwnerID, l.CampaignID, l.CustomerID, l.MessageID, string(l.Status),
		l.Message, l.ErrorMessage, l.SentAt, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert communication log: %w", duplicateMessage(err, l.MessageID))
	}
	return nil
}

func (r *CommunicationLogRepository) GetByMessageID(ctx context.Context, messageID string) (*model.CommunicationLog, error) {
	var l model.CommunicationLog
	query := `SELECT ` + commLogColumns + ` FROM communication_logs WHERE message_id=$1`
	if err := scanCommLog(r.DB.QueryRowContext(ctx, query, messageID), &l); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewMessageNotFound(messageID)
		}
		return nil, err
	}
	return &l, nil
}

func (r *CommunicationLogRepository) ListByCampaign(ctx context.Context, ownerID, campaignID string, offset, limit int) ([]model.CommunicationLog, int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM communication_logs WHERE owner_id=$1 AND campaign_id=$2`,
		ownerID, campaignID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + commLogColumns + `
        FROM communication_logs
        WHERE owner_id=$1 AND campaign_id=$2
        ORDER BY created_at, id
        LIMIT $3 OFFSET $4`
	rows, err := r.DB.QueryContext(ctx, query, ownerID, campaignID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	logs := []model.CommunicationLog{}
	for rows.Next() {
		var l model.CommunicationLog
		if err := scanCommLog(rows, &l); err != nil {
			return nil, 0, err
		}
		logs = append(logs, l)
	}
	return logs, total, rows.Err()
}

func (r *CommunicationLogRepository) MarkOutcomes(ctx context.Context, outcomes []model.Outcome) ([]string, error) {
	return markCommLogs(ctx, r.DB, outcomes)
}

func markCommLogs(ctx context.Context, q queryer, outcomes []model.Outcome) ([]string, error) {
	if len(outcomes) == 0 {
		return nil, nil
	}
	ids, statuses, reasons, ats := outcomeColumns(outcomes)
	query := `
        UPDATE communication_logs AS l
        SET status = u.status,
            error_message = u.error_message,
            sent_at = CASE WHEN u.status = 'SENT' THEN u.at ELSE l.sent_at END,
            updated_at = NOW()
        FROM unnest($1::text[], $2::text[], $3::text[], $4::timestamptz[]) AS u(message_id, status, error_message, at)
        WHERE l.message_id = u.message_id AND l.status IN ('PENDING', 'QUEUED')
        RETURNING l.message_id
    `
	return collectIDs(q.QueryContext(ctx, query, pq.Array(ids), pq.Array(statuses), pq.Array(reasons), pq.Array(ats)))
}

var _ CommunicationLogRepositoryInterface = (*CommunicationLogRepository)(nil)
