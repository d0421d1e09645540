// internal/model/customer.go
package model

import "time"

type Customer struct {
	ID         string     `db:"id" json:"id"`
	OwnerID    string     `db:"owner_id" json:"owner_id"`
	Name       string     `db:"name" json:"name"`
	Email      string     `db:"email" json:"email"`
	Phone      *string    `db:"phone" json:"phone,omitempty"`
	Spend      float64    `db:"spend" json:"spend"`
	Visits     int        `db:"visits" json:"visits"`
	LastActive *time.Time `db:"last_active" json:"last_active,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// LineItem is one product line of an order.
type LineItem struct {
	SKU      string  `json:"sku"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

type Order struct {
	ID         string     `db:"id" json:"id"`
	OwnerID    string     `db:"owner_id" json:"owner_id"`
	CustomerID string     `db:"customer_id" json:"customer_id"`
	Amount     float64    `db:"amount" json:"amount"`
	Items      []LineItem `db:"items" json:"items"`
	OrderDate  time.Time  `db:"order_date" json:"order_date"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// ItemsTotal sums quantity*price over the line items.
func (o *Order) ItemsTotal() float64 {
	var total float64
	for _, it := range o.Items {
		total += float64(it.Quantity) * it.Price
	}
	return total
}
