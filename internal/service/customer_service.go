package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/Rakesh-Kumar-Talam/CRM-backend/internal/errors"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/repository"
)

type CustomerService struct {
	Customers repository.CustomerRepositoryInterface
	Orders    repository.OrderRepositoryInterface
	Logger    *zap.Logger
}

type CustomerInput struct {
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Phone      *string    `json:"phone"`
	Spend      float64    `json:"spend"`
	Visits     int        `json:"visits"`
	LastActive *time.Time `json:"last_active"`
}

// CustomerUpdate leaves nil fields unchanged.
type CustomerUpdate struct {
	Name       *string    `json:"name"`
	Email      *string    `json:"email"`
	Phone      *string    `json:"phone"`
	Visits     *int       `json:"visits"`
	LastActive *time.Time `json:"last_active"`
}

func customerViolations(prefix, name, email string, spend float64, visits int) []string {
	var v []string
	if strings.TrimSpace(name) == "" {
		v = append(v, prefix+"name: is required")
	}
	if strings.TrimSpace(email) == "" {
		v = append(v, prefix+"email: is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		v = append(v, prefix+"email: is not a valid address")
	}
	if spend < 0 {
		v = append(v, prefix+"spend: must not be negative")
	}
	if visits < 0 {
		v = append(v, prefix+"visits: must not be negative")
	}
	return v
}

func (in CustomerInput) toModel(ownerID string) *model.Customer {
	return &model.Customer{
		OwnerID:    ownerID,
		Name:       strings.TrimSpace(in.Name),
		Email:      strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:      in.Phone,
		Spend:      in.Spend,
		Visits:     in.Visits,
		LastActive: in.LastActive,
	}
}

func (s *CustomerService) Create(ctx context.Context, ownerID string, in CustomerInput) (*model.Customer, error) {
	if v := customerViolations("", in.Name, in.Email, in.Spend, in.Visits); len(v) > 0 {
		return nil, appErrors.NewValidation("invalid customer", v...)
	}
	c := in.toModel(ownerID)
	if err := s.Customers.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateMany validates every input before writing any of them.
func (s *CustomerService) CreateMany(ctx context.Context, ownerID string, ins []CustomerInput) ([]*model.Customer, error) {
	if len(ins) == 0 {
		return nil, appErrors.NewValidation("no customers supplied")
	}
	var violations []string
	for i, in := range ins {
		violations = append(violations, customerViolations(fmt.Sprintf("customers[%d].", i), in.Name, in.Email, in.Spend, in.Visits)...)
	}
	if len(violations) > 0 {
		return nil, appErrors.NewValidation("invalid customers", violations...)
	}

	cs := make([]*model.Customer, len(ins))
	for i, in := range ins {
		cs[i] = in.toModel(ownerID)
	}
	if err := s.Customers.CreateMany(ctx, cs); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("customers imported", zap.String("owner_id", ownerID), zap.Int("count", len(cs)))
	}
	return cs, nil
}

func (s *CustomerService) Get(ctx context.Context, ownerID, id string) (*model.Customer, error) {
	return s.Customers.GetByID(ctx, ownerID, id)
}

func (s *CustomerService) List(ctx context.Context, ownerID string, page, pageSize int, search string) ([]model.Customer, map[string]int, error) {
	page, pageSize, offset := normalizePage(page, pageSize)
	customers, total, err := s.Customers.List(ctx, ownerID, offset, pageSize, strings.TrimSpace(search))
	if err != nil {
		return nil, nil, err
	}
	return customers, pagination(page, pageSize, total), nil
}

func (s *CustomerService) Update(ctx context.Context, ownerID, id string, in CustomerUpdate) (*model.Customer, error) {
	c, err := s.Customers.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		c.Email = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.Phone != nil {
		c.Phone = in.Phone
	}
	if in.Visits != nil {
		c.Visits = *in.Visits
	}
	if in.LastActive != nil {
		c.LastActive = in.LastActive
	}
	if v := customerViolations("", c.Name, c.Email, c.Spend, c.Visits); len(v) > 0 {
		return nil, appErrors.NewValidation("invalid customer", v...)
	}
	if err := s.Customers.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CustomerService) Delete(ctx context.Context, ownerID, id string) error {
	return s.Customers.Delete(ctx, ownerID, id)
}

// RecalculateSpend sets the customer's spend to the sum of their orders.
func (s *CustomerService) RecalculateSpend(ctx context.Context, ownerID, customerID string) (float64, error) {
	total, err := s.Orders.SumByCustomer(ctx, ownerID, customerID)
	if err != nil {
		return 0, fmt.Errorf("sum orders: %w", err)
	}
	if err := s.Customers.SetSpend(ctx, ownerID, customerID, total); err != nil {
		return 0, err
	}
	return total, nil
}

// RecalculateAll recomputes spend for every customer of the owner and
// returns how many were updated.
func (s *CustomerService) RecalculateAll(ctx context.Context, ownerID string) (int, error) {
	totals, err := s.Orders.SumAllByCustomer(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("sum orders: %w", err)
	}
	customers, err := s.Customers.ListAll(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, c := range customers {
		spend := totals[c.ID]
		if spend == c.Spend {
			continue
		}
		if err := s.Customers.SetSpend(ctx, ownerID, c.ID, spend); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}
