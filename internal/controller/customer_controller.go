package controller

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/handler"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/service"
)

type CustomerController struct {
	Customers *service.CustomerService
	Logger    *zap.Logger
}

func (c *CustomerController) Create(w http.ResponseWriter, r *http.Request) {
	var body service.CustomerInput
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	customer, err := c.Customers.Create(r.Context(), handler.OwnerID(r.Context()), body)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, customer)
}

// BulkCreate accepts either a bare array or {"customers": [...]}.
func (c *CustomerController) BulkCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Customers []service.CustomerInput `json:"customers"`
	}
	var raw []service.CustomerInput
	if err := handler.DecodeJSON(r, &rawOrWrapped{list: &raw, wrapped: &body}); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	if raw == nil {
		raw = body.Customers
	}
	created, err := c.Customers.CreateMany(r.Context(), handler.OwnerID(r.Context()), raw)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, map[string]any{"count": len(created), "customers": created})
}

func (c *CustomerController) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := handler.PageParams(r)
	customers, pagination, err := c.Customers.List(r.Context(), handler.OwnerID(r.Context()), page, pageSize, r.URL.Query().Get("search"))
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, handler.Paged(customers, pagination))
}

func (c *CustomerController) Get(w http.ResponseWriter, r *http.Request) {
	customer, err := c.Customers.Get(r.Context(), handler.OwnerID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, customer)
}

func (c *CustomerController) Update(w http.ResponseWriter, r *http.Request) {
	var body service.CustomerUpdate
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	customer, err := c.Customers.Update(r.Context(), handler.OwnerID(r.Context()), chi.URLParam(r, "id"), body)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, customer)
}

func (c *CustomerController) Delete(w http.ResponseWriter, r *http.Request) {
	if err := c.Customers.Delete(r.Context(), handler.OwnerID(r.Context()), chi.URLParam(r, "id")); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecalculateSpend recomputes spend from orders for one customer
// (?customer_id=) or for every customer of the owner.
func (c *CustomerController) RecalculateSpend(w http.ResponseWriter, r *http.Request) {
	owner := handler.OwnerID(r.Context())
	if id := strings.TrimSpace(r.URL.Query().Get("customer_id")); id != "" {
		spend, err := c.Customers.RecalculateSpend(r.Context(), owner, id)
		if err != nil {
			handler.WriteError(w, c.Logger, err)
			return
		}
		handler.WriteJSON(w, http.StatusOK, map[string]any{"customer_id": id, "spend": spend})
		return
	}
	updated, err := c.Customers.RecalculateAll(r.Context(), owner)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

type rawOrWrapped struct {
	list    *[]service.CustomerInput
	wrapped any
}

func (u *rawOrWrapped) UnmarshalJSON(b []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(b), []byte("[")) {
		return json.Unmarshal(b, u.list)
	}
	return json.Unmarshal(b, u.wrapped)
}
