package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	appErrors "github.com/Rakesh-Kumar-Talam/CRM-backend/internal/errors"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
)

// CustomerRepositoryInterface defines methods used by services
type CustomerRepositoryInterface interface {
	Create(ctx context.Context, c *model.Customer) error
	CreateMany(ctx context.Context, cs []*model.Customer) error
	GetByID(ctx context.Context, ownerID, id string) (*model.Customer, error)
	// GetByIDs returns the customers in the order of ids, skipping unknown ones.
	GetByIDs(ctx context.Context, ownerID string, ids []string) ([]model.Customer, error)
	// ListAll is the full scan used by segment materialization.
	ListAll(ctx context.Context, ownerID string) ([]model.Customer, error)
	List(ctx context.Context, ownerID string, offset, limit int, search string) ([]model.Customer, int, error)
	Update(ctx context.Context, c *model.Customer) error
	Delete(ctx context.Context, ownerID, id string) error
	SetSpend(ctx context.Context, ownerID, id string, spend float64) error
	// TouchActivity bumps visits and moves last_active forward to at.
	TouchActivity(ctx context.Context, ownerID, id string, at time.Time) error
}

// CustomerRepository is the Postgres implementation
type CustomerRepository struct {
	DB *sql.DB
}

const customerColumns = `id, owner_id, name, email, phone, spend, visits, last_active, created_at, updated_at`

func scanCustomer(row interface{ Scan(...any) error }, c *model.Customer) error {
	var phone sql.NullString
	var last sql.NullTime
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Email, &phone, &c.Spend, &c.Visits, &last, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return err
	}
	if phone.Valid {
		c.Phone = &phone.String
	}
	if last.Valid {
		t := last.Time
		c.LastActive = &t
	}
	return nil
}

func (r *CustomerRepository) Create(ctx context.Context, c *model.Customer) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	query := `
        INSERT INTO customers (id, owner_id, name, email, phone, spend, visits, last_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err := r.DB.ExecContext(ctx, query, c.ID, c.OwnerID, c.Name, c.Email, c.Phone, c.Spend, c.Visits, c.LastActive, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

func (r *CustomerRepository) CreateMany(ctx context.Context, cs []*model.Customer) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO customers (id, owner_id, name, email, phone, spend, visits, last_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, c := range cs {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.CreatedAt, c.UpdatedAt = now, now
		if _, err := stmt.ExecContext(ctx, c.ID, c.OwnerID, c.Name, c.Email, c.Phone, c.Spend, c.Visits, c.LastActive, c.CreatedAt, c.UpdatedAt); err != nil {
			return fmt.Errorf("insert customer %s: %w", c.Email, err)
		}
	}
	return tx.Commit()
}

func (r *CustomerRepository) GetByID(ctx context.Context, ownerID, id string) (*model.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE owner_id = $1 AND id = $2`
	var c model.Customer
	if err := scanCustomer(r.DB.QueryRowContext(ctx, query, ownerID, id), &c); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCustomerNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

func (r *CustomerRepository) GetByIDs(ctx context.Context, ownerID string, ids []string) ([]model.Customer, error) {
	if len(ids) == 0 {
		return []model.Customer{}, nil
	}
	query := `
        SELECT ` + customerColumns + `
        FROM customers
        WHERE owner_id = $1 AND id = ANY($2)
        ORDER BY array_position($2, id)
    `
	return r.queryCustomers(ctx, query, ownerID, pq.Array(ids))
}

func (r *CustomerRepository) ListAll(ctx context.Context, ownerID string) ([]model.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE owner_id = $1 ORDER BY created_at, id`
	return r.queryCustomers(ctx, query, ownerID)
}

func (r *CustomerRepository) List(ctx context.Context, ownerID string, offset, limit int, search string) ([]model.Customer, int, error) {
	where := ` WHERE owner_id = $1`
	args := []any{ownerID}
	if s := strings.TrimSpace(search); s != "" {
		where += ` AND (name ILIKE $2 OR email ILIKE $2)`
		args = append(args, "%"+s+"%")
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + customerColumns + ` FROM customers` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)
	customers, err := r.queryCustomers(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return customers, total, nil
}

func (r *CustomerRepository) queryCustomers(ctx context.Context, query string, args ...any) ([]model.Customer, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := []model.Customer{}
	for rows.Next() {
		var c model.Customer
		if err := scanCustomer(rows, &c); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (r *CustomerRepository) Update(ctx context.Context, c *model.Customer) error {
	c.UpdatedAt = time.Now().UTC()
	query := `
        UPDATE customers
        SET name=$1, email=$2, phone=$3, spend=$4, visits=$5, last_active=$6, updated_at=$7
        WHERE owner_id=$8 AND id=$9
    `
	res, err := r.DB.ExecContext(ctx, query, c.Name, c.Email, c.Phone, c.Spend, c.Visits, c.LastActive, c.UpdatedAt, c.OwnerID, c.ID)
	if err != nil {
		return err
	}
	return expectOne(res, appErrors.NewCustomerNotFound(c.ID))
}

func (r *CustomerRepository) Delete(ctx context.Context, ownerID, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM customers WHERE owner_id=$1 AND id=$2`, ownerID, id)
	if err != nil {
		return err
	}
	return expectOne(res, appErrors.NewCustomerNotFound(id))
}

func (r *CustomerRepository) SetSpend(ctx context.Context, ownerID, id string, spend float64) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE customers SET spend=$1, updated_at=NOW() WHERE owner_id=$2 AND id=$3`, spend, ownerID, id)
	if err != nil {
		return err
	}
	return expectOne(res, appErrors.NewCustomerNotFound(id))
}

func (r *CustomerRepository) TouchActivity(ctx context.Context, ownerID, id string, at time.Time) error {
	query := `
        UPDATE customers
        SET visits = visits + 1,
            last_active = GREATEST(COALESCE(last_active, $1), $1),
            updated_at = NOW()
        WHERE owner_id=$2 AND id=$3
    `
	res, err := r.DB.ExecContext(ctx, query, at, ownerID, id)
	if err != nil {
		return err
	}
	return expectOne(res, appErrors.NewCustomerNotFound(id))
}

// expectOne maps "no row affected" to notFound.
func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

var _ CustomerRepositoryInterface = (*CustomerRepository)(nil)
