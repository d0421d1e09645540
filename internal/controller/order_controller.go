package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/handler"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/service"
)

type OrderController struct {
	Orders *service.OrderService
	Logger *zap.Logger
}

func (c *OrderController) Create(w http.ResponseWriter, r *http.Request) {
	var body service.OrderInput
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	order, err := c.Orders.Create(r.Context(), handler.OwnerID(r.Context()), body)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, order)
}

func (c *OrderController) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := handler.PageParams(r)
	orders, pagination, err := c.Orders.List(r.Context(), handler.OwnerID(r.Context()), r.URL.Query().Get("customer_id"), page, pageSize)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, handler.Paged(orders, pagination))
}

func (c *OrderController) Get(w http.ResponseWriter, r *http.Request) {
	order, err := c.Orders.Get(r.Context(), handler.OwnerID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, order)
}

func (c *OrderController) Update(w http.ResponseWriter, r *http.Request) {
	var body service.OrderUpdate
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	order, err := c.Orders.Update(r.Context(), handler.OwnerID(r.Context()), chi.URLParam(r, "id"), body)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, order)
}

func (c *OrderController) Delete(w http.ResponseWriter, r *http.Request) {
	if err := c.Orders.Delete(r.Context(), handler.OwnerID(r.Context()), chi.URLParam(r, "id")); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
