package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/Rakesh-Kumar-Talam/CRM-backend/internal/errors"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/repository"
)

type OrderService struct {
	Orders    repository.OrderRepositoryInterface
	Customers repository.CustomerRepositoryInterface
	Spend     *CustomerService
	Now       func() time.Time
}

type OrderInput struct {
	CustomerID string           `json:"customer_id"`
	Amount     float64          `json:"amount"`
	Items      []model.LineItem `json:"items"`
	OrderDate  *time.Time       `json:"order_date"`
}

// OrderUpdate leaves nil fields unchanged.
type OrderUpdate struct {
	Amount    *float64          `json:"amount"`
	Items     *[]model.LineItem `json:"items"`
	OrderDate *time.Time        `json:"order_date"`
}

func (s *OrderService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func orderViolations(amount float64, items []model.LineItem) []string {
	var v []string
	if amount < 0 {
		v = append(v, "amount: must not be negative")
	}
	for i, it := range items {
		if it.Quantity <= 0 {
			v = append(v, fmt.Sprintf("items[%d].quantity: must be positive", i))
		}
		if it.Price < 0 {
			v = append(v, fmt.Sprintf("items[%d].price: must not be negative", i))
		}
	}
	return v
}

// Create stores the order, counts it as a visit and refreshes the customer's
// spend. A zero amount is taken from the line items.
func (s *OrderService) Create(ctx context.Context, ownerID string, in OrderInput) (*model.Order, error) {
	violations := orderViolations(in.Amount, in.Items)
	if strings.TrimSpace(in.CustomerID) == "" {
		violations = append([]string{"customer_id: is required"}, violations...)
	}
	if len(violations) > 0 {
		return nil, appErrors.NewValidation("invalid order", violations...)
	}
	if _, err := s.Customers.GetByID(ctx, ownerID, in.CustomerID); err != nil {
		return nil, err
	}

	o := &model.Order{
		OwnerID:    ownerID,
		CustomerID: in.CustomerID,
		Amount:     in.Amount,
		Items:      in.Items,
		OrderDate:  s.now().UTC(),
	}
	if in.OrderDate != nil {
		o.OrderDate = in.OrderDate.UTC()
	}
	if o.Items == nil {
		o.Items = []model.LineItem{}
	}
	if o.Amount == 0 {
		o.Amount = o.ItemsTotal()
	}
	if err := s.Orders.Create(ctx, o); err != nil {
		return nil, err
	}
	if err := s.Customers.TouchActivity(ctx, ownerID, o.CustomerID, o.OrderDate); err != nil {
		return nil, err
	}
	if _, err := s.Spend.RecalculateSpend(ctx, ownerID, o.CustomerID); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *OrderService) Get(ctx context.Context, ownerID, id string) (*model.Order, error) {
	return s.Orders.GetByID(ctx, ownerID, id)
}

func (s *OrderService) List(ctx context.Context, ownerID, customerID string, page, pageSize int) ([]model.Order, map[string]int, error) {
	page, pageSize, offset := normalizePage(page, pageSize)
	orders, total, err := s.Orders.List(ctx, ownerID, customerID, offset, pageSize)
	if err != nil {
		return nil, nil, err
	}
	return orders, pagination(page, pageSize, total), nil
}

func (s *OrderService) Update(ctx context.Context, ownerID, id string, in OrderUpdate) (*model.Order, error) {
	o, err := s.Orders.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if in.Items != nil {
		o.Items = *in.Items
	}
	if in.Amount != nil {
		o.Amount = *in.Amount
	}
	if in.OrderDate != nil {
		o.OrderDate = in.OrderDate.UTC()
	}
	if v := orderViolations(o.Amount, o.Items); len(v) > 0 {
		return nil, appErrors.NewValidation("invalid order", v...)
	}
	if o.Amount == 0 {
		o.Amount = o.ItemsTotal()
	}
	if err := s.Orders.Update(ctx, o); err != nil {
		return nil, err
	}
	if _, err := s.Spend.RecalculateSpend(ctx, ownerID, o.CustomerID); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *OrderService) Delete(ctx context.Context, ownerID, id string) error {
	o, err := s.Orders.GetByID(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.Orders.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	_, err = s.Spend.RecalculateSpend(ctx, ownerID, o.CustomerID)
	return err
}
