package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/Rakesh-Kumar-Talam/CRM-backend/internal/errors"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	ListCampaigns(ctx context.Context, ownerID string, offset, limit int, status string) ([]*model.Campaign, int, error)
	GetByID(ctx context.Context, ownerID, id string) (*model.Campaign, error)
	UpdateStatus(ctx context.Context, ownerID, id string, status model.CampaignStatus) error
	Create(ctx context.Context, c *model.Campaign) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, owner_id, segment_id, name, subject, message, status, context, created_at, updated_at, completed_at`

func scanCampaign(row interface{ Scan(...any) error }, c *model.Campaign) error {
	var pctx []byte
	var updated, completed sql.NullTime
	if err := row.Scan(&c.ID, &c.OwnerID, &c.SegmentID, &c.Name, &c.Subject, &c.Message, &c.Status,
		&pctx, &c.CreatedAt, &updated, &completed); err != nil {
		return err
	}
	if len(pctx) > 0 {
		if err := json.Unmarshal(pctx, &c.Context); err != nil {
			return fmt.Errorf("decode campaign context: %w", err)
		}
	}
	if updated.Valid {
		t := updated.Time
		c.UpdatedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		c.CompletedAt = &t
	}
	return nil
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	pctx, err := json.Marshal(c.Context)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO campaigns (id, owner_id, segment_id, name, subject, message, status, context, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	_, err = r.DB.ExecContext(ctx, query, c.ID, c.OwnerID, c.SegmentID, c.Name, c.Subject, c.Message, c.Status, pctx, c.CreatedAt)
	return err
}

// UpdateStatus stamps completed_at when the campaign reaches a final state.
func (r *CampaignRepository) UpdateStatus(ctx context.Context, ownerID, id string, status model.CampaignStatus) error {
	query := `
        UPDATE campaigns
        SET status=$1,
            updated_at=$2,
            completed_at = CASE WHEN $1 IN ('COMPLETED', 'CANCELLED') THEN $2 ELSE completed_at END
        WHERE owner_id=$3 AND id=$4
    `
	res, err := r.DB.ExecContext(ctx, query, string(status), time.Now().UTC(), ownerID, id)
	if err != nil {
		return err
	}
	return expectOne(res, appErrors.NewCampaignNotFound(id))
}

func (r *CampaignRepository) GetByID(ctx context.Context, ownerID, id string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE owner_id=$1 AND id=$2`
	var c model.Campaign
	if err := scanCampaign(r.DB.QueryRowContext(ctx, query, ownerID, id), &c); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, ownerID string, offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	where := ` WHERE owner_id=$1`
	args := []interface{}{ownerID}
	if status != "" {
		where += ` AND status=$2`
		args = append(args, status)
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)

	rows, err := r.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c := &model.Campaign{}
		if err := scanCampaign(rows, c); err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// Count total
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
