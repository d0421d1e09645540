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

type OrderRepositoryInterface interface {
	Create(ctx context.Context, o *model.Order) error
	GetByID(ctx context.Context, ownerID, id string) (*model.Order, error)
	// List filters by customerID when it is non-empty.
	List(ctx context.Context, ownerID, customerID string, offset, limit int) ([]model.Order, int, error)
	Update(ctx context.Context, o *model.Order) error
	Delete(ctx context.Context, ownerID, id string) error
	SumByCustomer(ctx context.Context, ownerID, customerID string) (float64, error)
	// SumAllByCustomer returns customer id -> total order amount.
	SumAllByCustomer(ctx context.Context, ownerID string) (map[string]float64, error)
}

type OrderRepository struct {
	DB *sql.DB
}

const orderColumns = `id, owner_id, customer_id, amount, items, order_date, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }, o *model.Order) error {
	var items []byte
	if err := row.Scan(&o.ID, &o.OwnerID, &o.CustomerID, &o.Amount, &items, &o.OrderDate, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return err
	}
	o.Items = []model.LineItem{}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return fmt.Errorf("decode order items: %w", err)
		}
	}
	return nil
}

func (r *OrderRepository) Create(ctx context.Context, o *model.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO orders (id, owner_id, customer_id, amount, items, order_date, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	if _, err := r.DB.ExecContext(ctx, query, o.ID, o.OwnerID, o.CustomerID, o.Amount, items, o.OrderDate, o.CreatedAt, o.UpdatedAt); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, ownerID, id string) (*model.Order, error) {
	var o model.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE owner_id=$1 AND id=$2`
	if err := scanOrder(r.DB.QueryRowContext(ctx, query, ownerID, id), &o); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewOrderNotFound(id)
		}
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) List(ctx context.Context, ownerID, customerID string, offset, limit int) ([]model.Order, int, error) {
	where := ` WHERE owner_id=$1`
	args := []any{ownerID}
	if customerID != "" {
		where += ` AND customer_id=$2`
		args = append(args, customerID)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + orderColumns + ` FROM orders` + where +
		fmt.Sprintf(` ORDER BY order_date DESC, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := []model.Order{}
	for rows.Next() {
		var o model.Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

func (r *OrderRepository) Update(ctx context.Context, o *model.Order) error {
	o.UpdatedAt = time.Now().UTC()
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	query := `
        UPDATE orders SET amount=$1, items=$2, order_date=$3, updated_at=$4
        WHERE owner_id=$5 AND id=$6
    `
	res, err := r.DB.ExecContext(ctx, query, o.Amount, items, o.OrderDate, o.UpdatedAt, o.OwnerID, o.ID)
	if err != nil {
		return err
	}
	return expectOne(res, appErrors.NewOrderNotFound(o.ID))
}

func (r *OrderRepository) Delete(ctx context.Context, ownerID, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM orders WHERE owner_id=$1 AND id=$2`, ownerID, id)
	if err != nil {
		return err
	}
	return expectOne(res, appErrors.NewOrderNotFound(id))
}

func (r *OrderRepository) SumByCustomer(ctx context.Context, ownerID, customerID string) (float64, error) {
	var total float64
	query := `SELECT COALESCE(SUM(amount), 0) FROM orders WHERE owner_id=$1 AND customer_id=$2`
	if err := r.DB.QueryRowContext(ctx, query, ownerID, customerID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *OrderRepository) SumAllByCustomer(ctx context.Context, ownerID string) (map[string]float64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT customer_id, SUM(amount) FROM orders WHERE owner_id=$1 GROUP BY customer_id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sums := map[string]float64{}
	for rows.Next() {
		var id string
		var total float64
		if err := rows.Scan(&id, &total); err != nil {
			return nil, err
		}
		sums[id] = total
	}
	return sums, rows.Err()
}

var _ OrderRepositoryInterface = (*OrderRepository)(nil)
