package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/Rakesh-Kumar-Talam/CRM-backend/internal/errors"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
)

// MemoryCustomerRepository backs STORE=memory and service tests.
// Scan order is insertion order.
type MemoryCustomerRepository struct {
	mu    sync.RWMutex
	byID  map[string]model.Customer
	order []string
}

func NewMemoryCustomerRepository() *MemoryCustomerRepository {
	return &MemoryCustomerRepository{byID: map[string]model.Customer{}}
}

func (r *MemoryCustomerRepository) Create(_ context.Context, c *model.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertLocked(c)
	return nil
}

func (r *MemoryCustomerRepository) CreateMany(_ context.Context, cs []*model.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cs {
		r.insertLocked(c)
	}
	return nil
}

func (r *MemoryCustomerRepository) insertLocked(c *model.Customer) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if _, exists := r.byID[c.ID]; !exists {
		r.order = append(r.order, c.ID)
	}
	r.byID[c.ID] = *c
}

func (r *MemoryCustomerRepository) GetByID(_ context.Context, ownerID, id string) (*model.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok || c.OwnerID != ownerID {
		return nil, appErrors.NewCustomerNotFound(id)
	}
	return &c, nil
}

func (r *MemoryCustomerRepository) GetByIDs(_ context.Context, ownerID string, ids []string) ([]model.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Customer, 0, len(ids))
	for _, id := range ids {
		if c, ok := r.byID[id]; ok && c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *MemoryCustomerRepository) ListAll(_ context.Context, ownerID string) ([]model.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []model.Customer{}
	for _, id := range r.order {
		if c := r.byID[id]; c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *MemoryCustomerRepository) List(ctx context.Context, ownerID string, offset, limit int, search string) ([]model.Customer, int, error) {
	all, _ := r.ListAll(ctx, ownerID)
	s := strings.ToLower(strings.TrimSpace(search))
	filtered := make([]model.Customer, 0, len(all))
	// newest first, like the SQL listing
	for i := len(all) - 1; i >= 0; i-- {
		c := all[i]
		if s != "" && !strings.Contains(strings.ToLower(c.Name), s) && !strings.Contains(strings.ToLower(c.Email), s) {
			continue
		}
		filtered = append(filtered, c)
	}
	return paginate(filtered, offset, limit), len(filtered), nil
}

func (r *MemoryCustomerRepository) Update(_ context.Context, c *model.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[c.ID]
	if !ok || cur.OwnerID != c.OwnerID {
		return appErrors.NewCustomerNotFound(c.ID)
	}
	c.CreatedAt = cur.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	r.byID[c.ID] = *c
	return nil
}

func (r *MemoryCustomerRepository) Delete(_ context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok || c.OwnerID != ownerID {
		return appErrors.NewCustomerNotFound(id)
	}
	delete(r.byID, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *MemoryCustomerRepository) SetSpend(_ context.Context, ownerID, id string, spend float64) error {
	return r.mutate(ownerID, id, func(c *model.Customer) { c.Spend = spend })
}

func (r *MemoryCustomerRepository) TouchActivity(_ context.Context, ownerID, id string, at time.Time) error {
	return r.mutate(ownerID, id, func(c *model.Customer) {
		c.Visits++
		if c.LastActive == nil || at.After(*c.LastActive) {
			t := at
			c.LastActive = &t
		}
	})
}

func (r *MemoryCustomerRepository) mutate(ownerID, id string, fn func(*model.Customer)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok || c.OwnerID != ownerID {
		return appErrors.NewCustomerNotFound(id)
	}
	fn(&c)
	c.UpdatedAt = time.Now().UTC()
	r.byID[id] = c
	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]T, end-offset)
	copy(out, items[offset:end])
	return out
}

var _ CustomerRepositoryInterface = (*MemoryCustomerRepository)(nil)
