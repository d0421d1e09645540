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

type SegmentRepositoryInterface interface {
	Create(ctx context.Context, s *model.Segment) error
	GetByID(ctx context.Context, ownerID, id string) (*model.Segment, error)
	List(ctx context.Context, ownerID string) ([]model.Segment, error)
	// Update writes name, description and rules. The snapshot is left alone.
	Update(ctx context.Context, s *model.Segment) error
	Delete(ctx context.Context, ownerID, id string) error
	// SaveSnapshot stores the materialized id list; customer_count is len(ids).
	SaveSnapshot(ctx context.Context, ownerID, id string, customerIDs []string, at time.Time) error
}

type SegmentRepository struct {
	DB *sql.DB
}

const segmentColumns = `id, owner_id, name, description, rules, customer_ids, customer_count, last_populated_at, created_at, updated_at`

func scanSegment(row interface{ Scan(...any) error }, s *model.Segment) error {
	var rules []byte
	var populated sql.NullTime
	ids := []string{}
	if err := row.Scan(&s.ID, &s.OwnerID, &s.Name, &s.Description, &rules, pq.Array(&ids),
		&s.CustomerCount, &populated, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return err
	}
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &s.Rules); err != nil {
			return fmt.Errorf("decode segment rules: %w", err)
		}
	}
	s.CustomerIDs = ids
	if populated.Valid {
		t := populated.Time
		s.LastPopulatedAt = &t
	}
	return nil
}

func (r *SegmentRepository) Create(ctx context.Context, s *model.Segment) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	if s.CustomerIDs == nil {
		s.CustomerIDs = []string{}
	}
	rules, err := json.Marshal(s.Rules)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO segments (id, owner_id, name, description, rules, customer_ids, customer_count, last_populated_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err = r.DB.ExecContext(ctx, query, s.ID, s.OwnerID, s.Name, s.Description, rules,
		pq.Array(s.CustomerIDs), len(s.CustomerIDs), s.LastPopulatedAt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert segment: %w", err)
	}
	s.CustomerCount = len(s.CustomerIDs)
	return nil
}

func (r *SegmentRepository) GetByID(ctx context.Context, ownerID, id string) (*model.Segment, error) {
	var s model.Segment
	query := `SELECT ` + segmentColumns + ` FROM segments WHERE owner_id=$1 AND id=$2`
	if err := scanSegment(r.DB.QueryRowContext(ctx, query, ownerID, id), &s); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewSegmentNotFound(id)
		}
		return nil, err
	}
	return &s, nil
}

func (r *SegmentRepository) List(ctx context.Context, ownerID string) ([]model.Segment, error) {
	query := `SELECT ` + segmentColumns + ` FROM segments WHERE owner_id=$1 ORDER BY created_at DESC, id`
	rows, err := r.DB.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	segments := []model.Segment{}
	for rows.Next() {
		var s model.Segment
		if err := scanSegment(rows, &s); err != nil {
			return nil, err
		}
		segments = append(segments, s)
	}
	return segments, rows.Err()
}

func (r *SegmentRepository) Update(ctx context.Context, s *model.Segment) error {
	s.UpdatedAt = time.Now().UTC()
	rules, err := json.Marshal(s.Rules)
	if err != nil {
		return err
	}
	query := `
        UPDATE segments SET name=$1, description=$2, rules=$3, updated_at=$4
        WHERE owner_id=$5 AND id=$6
    `
	res, err := r.DB.ExecContext(ctx, query, s.Name, s.Description, rules, s.UpdatedAt, s.OwnerID, s.ID)
	if err != nil {
		return err
	}
	return expectOne(res, appErrors.NewSegmentNotFound(s.ID))
}

func (r *SegmentRepository) Delete(ctx context.Context, ownerID, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM segments WHERE owner_id=$1 AND id=$2`, ownerID, id)
	if err != nil {
		return err
	}
	return expectOne(res, appErrors.NewSegmentNotFound(id))
}

func (r *SegmentRepository) SaveSnapshot(ctx context.Context, ownerID, id string, customerIDs []string, at time.Time) error {
	if customerIDs == nil {
		customerIDs = []string{}
	}
	query := `
        UPDATE segments
        SET customer_ids=$1, customer_count=$2, last_populated_at=$3, updated_at=NOW()
        WHERE owner_id=$4 AND id=$5
    `
	res, err := r.DB.ExecContext(ctx, query, pq.Array(customerIDs), len(customerIDs), at, ownerID, id)
	if err != nil {
		return err
	}
	return expectOne(res, appErrors.NewSegmentNotFound(id))
}

var _ SegmentRepositoryInterface = (*SegmentRepository)(nil)
