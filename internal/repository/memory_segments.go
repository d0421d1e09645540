package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/Rakesh-Kumar-Talam/CRM-backend/internal/errors"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
)

type MemorySegmentRepository struct {
	mu       sync.RWMutex
	segments map[string]model.Segment
}

func NewMemorySegmentRepository() *MemorySegmentRepository {
	return &MemorySegmentRepository{segments: map[string]model.Segment{}}
}

func (r *MemorySegmentRepository) Create(_ context.Context, s *model.Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	if s.CustomerIDs == nil {
		s.CustomerIDs = []string{}
	}
	s.CustomerCount = len(s.CustomerIDs)
	r.segments[s.ID] = cloneSegment(*s)
	return nil
}

func (r *MemorySegmentRepository) GetByID(_ context.Context, ownerID, id string) (*model.Segment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.segments[id]
	if !ok || s.OwnerID != ownerID {
		return nil, appErrors.NewSegmentNotFound(id)
	}
	s = cloneSegment(s)
	return &s, nil
}

func (r *MemorySegmentRepository) List(_ context.Context, ownerID string) ([]model.Segment, error) {
	r.mu.RLock()
	out := []model.Segment{}
	for _, s := range r.segments {
		if s.OwnerID == ownerID {
			out = append(out, cloneSegment(s))
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemorySegmentRepository) Update(_ context.Context, s *model.Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.segments[s.ID]
	if !ok || cur.OwnerID != s.OwnerID {
		return appErrors.NewSegmentNotFound(s.ID)
	}
	cur.Name = s.Name
	cur.Description = s.Description
	cur.Rules = cloneRules(s.Rules)
	cur.UpdatedAt = time.Now().UTC()
	s.UpdatedAt = cur.UpdatedAt
	r.segments[s.ID] = cur
	return nil
}

func (r *MemorySegmentRepository) Delete(_ context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.segments[id]
	if !ok || s.OwnerID != ownerID {
		return appErrors.NewSegmentNotFound(id)
	}
	delete(r.segments, id)
	return nil
}

func (r *MemorySegmentRepository) SaveSnapshot(_ context.Context, ownerID, id string, customerIDs []string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.segments[id]
	if !ok || s.OwnerID != ownerID {
		return appErrors.NewSegmentNotFound(id)
	}
	s.CustomerIDs = append([]string{}, customerIDs...)
	s.CustomerCount = len(s.CustomerIDs)
	t := at
	s.LastPopulatedAt = &t
	s.UpdatedAt = time.Now().UTC()
	r.segments[id] = s
	return nil
}

func cloneSegment(s model.Segment) model.Segment {
	s.CustomerIDs = append([]string{}, s.CustomerIDs...)
	s.Rules = cloneRules(s.Rules)
	return s
}

// cloneRules deep-copies a rule tree through its JSON form, which is also
// how it is stored in Postgres.
func cloneRules(n model.RuleNode) model.RuleNode {
	b, err := json.Marshal(n)
	if err != nil {
		return n
	}
	var out model.RuleNode
	if err := json.Unmarshal(b, &out); err != nil {
		return n
	}
	return out
}

var _ SegmentRepositoryInterface = (*MemorySegmentRepository)(nil)
