package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/service"
)

// Mock Campaign Repository for pagination
type MockCampaignPaginationRepo struct {
	gotStatus string
}

func (m *MockCampaignPaginationRepo) ListCampaigns(_ context.Context, _ string, offset, limit int, status string) ([]*model.Campaign, int, error) {
	m.gotStatus = status
	all := []*model.Campaign{
		{ID: "c5", Name: "C5", CreatedAt: time.Unix(500, 0)},
		{ID: "c4", Name: "C4", CreatedAt: time.Unix(400, 0)},
		{ID: "c3", Name: "C3", CreatedAt: time.Unix(300, 0)},
		{ID: "c2", Name: "C2", CreatedAt: time.Unix(200, 0)},
		{ID: "c1", Name: "C1", CreatedAt: time.Unix(100, 0)},
	}

	start := offset
	end := offset + limit

	if start >= len(all) {
		return []*model.Campaign{}, len(all), nil
	}
	if end > len(all) {
		end = len(all)
	}

	return all[start:end], len(all), nil
}

// Stub implementations to satisfy the interface
func (m *MockCampaignPaginationRepo) Create(_ context.Context, c *model.Campaign) error {
	c.ID = "fake"
	c.CreatedAt = time.Now()
	return nil
}

func (m *MockCampaignPaginationRepo) GetByID(_ context.Context, _, id string) (*model.Campaign, error) {
	return &model.Campaign{ID: id, Name: "Mock"}, nil
}

func (m *MockCampaignPaginationRepo) UpdateStatus(context.Context, string, string, model.CampaignStatus) error {
	return nil
}

func TestPagination(t *testing.T) {
	repo := &MockCampaignPaginationRepo{}
	svc := &service.CampaignService{CampaignRepo: repo}

	pageSize := 2

	page1, pagination1, err := svc.ListCampaigns(context.Background(), "owner-1", 1, pageSize, "")
	require.NoError(t, err)
	page2, _, err := svc.ListCampaigns(context.Background(), "owner-1", 2, pageSize, "")
	require.NoError(t, err)
	page3, pagination3, err := svc.ListCampaigns(context.Background(), "owner-1", 3, pageSize, "COMPLETED")
	require.NoError(t, err)

	assert.Equal(t, 5, pagination1["total_count"])
	assert.Equal(t, 3, pagination1["total_pages"])
	assert.Equal(t, 3, pagination3["page"])
	assert.Equal(t, "COMPLETED", repo.gotStatus)

	require.Len(t, page1, 2)
	require.Len(t, page2, 2)
	require.Len(t, page3, 1)

	// newest first within and across pages
	assert.True(t, page1[0].CreatedAt.After(page1[1].CreatedAt))
	assert.True(t, page1[1].CreatedAt.After(page2[0].CreatedAt))
	assert.True(t, page2[0].CreatedAt.After(page2[1].CreatedAt))
}

func TestPagination_Defaults(t *testing.T) {
	svc := &service.CampaignService{CampaignRepo: &MockCampaignPaginationRepo{}}

	_, p, err := svc.ListCampaigns(context.Background(), "owner-1", 0, 0, "")
	require.NoError(t, err)
	assert.Equal(t, 1, p["page"])
	assert.Equal(t, 20, p["page_size"])

	_, p, err = svc.ListCampaigns(context.Background(), "owner-1", 1, 1000, "")
	require.NoError(t, err)
	assert.Equal(t, 100, p["page_size"])
}
