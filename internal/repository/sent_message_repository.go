package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	appErrors "github.com/Rakesh-Kumar-Talam/CRM-backend/internal/errors"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
)

type SentMessageRepositoryInterface interface {
	Create(ctx context.Context, m *model.SentMessage) error
	GetByMessageID(ctx context.Context, messageID string) (*model.SentMessage, error)
	// OldestQueued returns nil, nil when nothing is QUEUED.
	OldestQueued(ctx context.Context) (*model.SentMessage, error)
	ListByCampaign(ctx context.Context, ownerID, campaignID string) ([]model.SentMessage, error)
	// CountByStatus groups by status. Empty ownerID or campaignID disables that filter.
	CountByStatus(ctx context.Context, ownerID, campaignID string) (map[model.DeliveryStatus]int, error)
	// MarkOutcomes applies terminal outcomes to PENDING/QUEUED rows only and
	// returns the message ids that actually transitioned.
	MarkOutcomes(ctx context.Context, outcomes []model.Outcome) ([]string, error)
}

type SentMessageRepository struct {
	DB *sql.DB
}

const sentMessageColumns = `id, owner_id, campaign_id, customer_id, message_id, recipient, subject, text, html, status,
        error_message, metadata, created_at, sent_at, delivered_at, updated_at`

func scanSentMessage(row interface{ Scan(...any) error }, m *model.SentMessage) error {
	var campaignID, customerID sql.NullString
	var sentAt, deliveredAt sql.NullTime
	var meta []byte
	if err := row.Scan(&m.ID, &m.OwnerID, &campaignID, &customerID, &m.MessageID, &m.Recipient, &m.Subject,
		&m.Text, &m.HTML, &m.Status, &m.ErrorMessage, &meta, &m.CreatedAt, &sentAt, &deliveredAt, &m.UpdatedAt); err != nil {
		return err
	}
	m.CampaignID = nullStringPtr(campaignID)
	m.CustomerID = nullStringPtr(customerID)
	m.SentAt = nullTimePtr(sentAt)
	m.DeliveredAt = nullTimePtr(deliveredAt)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return fmt.Errorf("decode message metadata: %w", err)
		}
	}
	return nil
}

func (r *SentMessageRepository) Create(ctx context.Context, m *model.SentMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO sent_messages (id, owner_id, campaign_id, customer_id, message_id, recipient, subject, text, html,
            status, error_message, metadata, created_at, sent_at, delivered_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
    `
	_, err = r.DB.ExecContext(ctx, query, m.ID, m.OwnerID, m.CampaignID, m.CustomerID, m.MessageID, m.Recipient,
		m.Subject, m.Text, m.HTML, string(m.Status), m.ErrorMessage, meta, m.CreatedAt, m.SentAt, m.DeliveredAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert sent message: %w", duplicateMessage(err, m.MessageID))
	}
	return nil
}

func (r *SentMessageRepository) GetByMessageID(ctx context.Context, messageID string) (*model.SentMessage, error) {
	var m model.SentMessage
	query := `SELECT ` + sentMessageColumns + ` FROM sent_messages WHERE message_id=$1`
	if err := scanSentMessage(r.DB.QueryRowContext(ctx, query, messageID), &m); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewMessageNotFound(messageID)
		}
		return nil, err
	}
	return &m, nil
}

func (r *SentMessageRepository) OldestQueued(ctx context.Context) (*model.SentMessage, error) {
	var m model.SentMessage
	query := `SELECT ` + sentMessageColumns + ` FROM sent_messages WHERE status='QUEUED' ORDER BY created_at, id LIMIT 1`
	if err := scanSentMessage(r.DB.QueryRowContext(ctx, query), &m); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *SentMessageRepository) ListByCampaign(ctx context.Context, ownerID, campaignID string) ([]model.SentMessage, error) {
	query := `SELECT ` + sentMessageColumns + ` FROM sent_messages WHERE owner_id=$1 AND campaign_id=$2 ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, query, ownerID, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.SentMessage{}
	for rows.Next() {
		var m model.SentMessage
		if err := scanSentMessage(rows, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *SentMessageRepository) CountByStatus(ctx context.Context, ownerID, campaignID string) (map[model.DeliveryStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM sent_messages WHERE 1=1`
	args := []any{}
	if ownerID != "" {
		args = append(args, ownerID)
		query += fmt.Sprintf(" AND owner_id=$%d", len(args))
	}
	if campaignID != "" {
		args = append(args, campaignID)
		query += fmt.Sprintf(" AND campaign_id=$%d", len(args))
	}
	query += ` GROUP BY status`

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[model.DeliveryStatus]int{
		model.StatusPending: 0,
		model.StatusQueued:  0,
		model.StatusSent:    0,
		model.StatusFailed:  0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[model.DeliveryStatus(status)] = count
	}
	return stats, rows.Err()
}

func (r *SentMessageRepository) MarkOutcomes(ctx context.Context, outcomes []model.Outcome) ([]string, error) {
	return markSentMessages(ctx, r.DB, outcomes)
}

func markSentMessages(ctx context.Context, q queryer, outcomes []model.Outcome) ([]string, error) {
	if len(outcomes) == 0 {
		return nil, nil
	}
	ids, statuses, reasons, ats := outcomeColumns(outcomes)
	query := `
        UPDATE sent_messages AS m
        SET status = u.status,
            error_message = u.error_message,
            sent_at = CASE WHEN u.status = 'SENT' THEN u.at ELSE m.sent_at END,
            delivered_at = CASE WHEN u.status = 'SENT' THEN u.at ELSE m.delivered_at END,
            updated_at = NOW()
        FROM unnest($1::text[], $2::text[], $3::text[], $4::timestamptz[]) AS u(message_id, status, error_message, at)
        WHERE m.message_id = u.message_id AND m.status IN ('PENDING', 'QUEUED')
        RETURNING m.message_id
    `
	return collectIDs(q.QueryContext(ctx, query, pq.Array(ids), pq.Array(statuses), pq.Array(reasons), pq.Array(ats)))
}

// outcomeColumns splits outcomes into parallel arrays for unnest. Timestamps
// travel as RFC 3339 text and are cast server side.
func outcomeColumns(outcomes []model.Outcome) (ids, statuses, reasons, ats []string) {
	for _, o := range outcomes {
		at := o.At
		if at.IsZero() {
			at = time.Now()
		}
		ids = append(ids, o.MessageID)
		statuses = append(statuses, string(o.Status))
		reasons = append(reasons, o.ErrorMessage)
		ats = append(ats, at.UTC().Format(time.RFC3339Nano))
	}
	return
}

func collectIDs(rows *sql.Rows, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

var _ SentMessageRepositoryInterface = (*SentMessageRepository)(nil)
