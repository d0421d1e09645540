package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/Rakesh-Kumar-Talam/CRM-backend/internal/errors"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
)

type MemoryCampaignRepository struct {
	mu        sync.RWMutex
	campaigns map[string]model.Campaign
	order     []string
}

func NewMemoryCampaignRepository() *MemoryCampaignRepository {
	return &MemoryCampaignRepository{campaigns: map[string]model.Campaign{}}
}

func (r *MemoryCampaignRepository) Create(_ context.Context, c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	r.campaigns[c.ID] = *c
	r.order = append(r.order, c.ID)
	return nil
}

func (r *MemoryCampaignRepository) GetByID(_ context.Context, ownerID, id string) (*model.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.campaigns[id]
	if !ok || c.OwnerID != ownerID {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return &c, nil
}

func (r *MemoryCampaignRepository) UpdateStatus(_ context.Context, ownerID, id string, status model.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.OwnerID != ownerID {
		return appErrors.NewCampaignNotFound(id)
	}
	now := time.Now().UTC()
	c.Status = status
	c.UpdatedAt = &now
	if status == model.CampaignCompleted || status == model.CampaignCancelled {
		c.CompletedAt = &now
	}
	r.campaigns[id] = c
	return nil
}

func (r *MemoryCampaignRepository) ListCampaigns(_ context.Context, ownerID string, offset, limit int, status string) ([]*model.Campaign, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	filtered := []*model.Campaign{}
	for i := len(r.order) - 1; i >= 0; i-- {
		c := r.campaigns[r.order[i]]
		if c.OwnerID != ownerID || (status != "" && string(c.Status) != status) {
			continue
		}
		cp := c
		filtered = append(filtered, &cp)
	}
	return paginate(filtered, offset, limit), len(filtered), nil
}

var _ CampaignRepositoryInterface = (*MemoryCampaignRepository)(nil)
