package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/Rakesh-Kumar-Talam/CRM-backend/internal/errors"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
)

type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]model.Order
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: map[string]model.Order{}}
}

func (r *MemoryOrderRepository) Create(_ context.Context, o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	r.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (r *MemoryOrderRepository) GetByID(_ context.Context, ownerID, id string) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok || o.OwnerID != ownerID {
		return nil, appErrors.NewOrderNotFound(id)
	}
	o = cloneOrder(o)
	return &o, nil
}

func (r *MemoryOrderRepository) List(_ context.Context, ownerID, customerID string, offset, limit int) ([]model.Order, int, error) {
	r.mu.RLock()
	all := []model.Order{}
	for _, o := range r.orders {
		if o.OwnerID != ownerID || (customerID != "" && o.CustomerID != customerID) {
			continue
		}
		all = append(all, cloneOrder(o))
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].OrderDate.Equal(all[j].OrderDate) {
			return all[i].ID < all[j].ID
		}
		return all[i].OrderDate.After(all[j].OrderDate)
	})
	return paginate(all, offset, limit), len(all), nil
}

func (r *MemoryOrderRepository) Update(_ context.Context, o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.orders[o.ID]
	if !ok || cur.OwnerID != o.OwnerID {
		return appErrors.NewOrderNotFound(o.ID)
	}
	o.CreatedAt = cur.CreatedAt
	o.UpdatedAt = time.Now().UTC()
	r.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (r *MemoryOrderRepository) Delete(_ context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.OwnerID != ownerID {
		return appErrors.NewOrderNotFound(id)
	}
	delete(r.orders, id)
	return nil
}

func (r *MemoryOrderRepository) SumByCustomer(_ context.Context, ownerID, customerID string) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total float64
	for _, o := range r.orders {
		if o.OwnerID == ownerID && o.CustomerID == customerID {
			total += o.Amount
		}
	}
	return total, nil
}

func (r *MemoryOrderRepository) SumAllByCustomer(_ context.Context, ownerID string) (map[string]float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sums := map[string]float64{}
	for _, o := range r.orders {
		if o.OwnerID == ownerID {
			sums[o.CustomerID] += o.Amount
		}
	}
	return sums, nil
}

func cloneOrder(o model.Order) model.Order {
	items := make([]model.LineItem, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return o
}

var _ OrderRepositoryInterface = (*MemoryOrderRepository)(nil)
