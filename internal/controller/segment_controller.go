package controller

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/handler"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/segment"
)

type SegmentController struct {
	Segments *segment.Service
	Logger   *zap.Logger
}

func (c *SegmentController) Create(w http.ResponseWriter, r *http.Request) {
	var body segment.CreateInput
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	res, err := c.Segments.Create(r.Context(), handler.OwnerID(r.Context()), body)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, res)
}

func (c *SegmentController) List(w http.ResponseWriter, r *http.Request) {
	segs, err := c.Segments.List(r.Context(), handler.OwnerID(r.Context()))
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]any{"data": segs})
}

func (c *SegmentController) Get(w http.ResponseWriter, r *http.Request) {
	seg, err := c.Segments.Get(r.Context(), handler.OwnerID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, seg)
}

func (c *SegmentController) Update(w http.ResponseWriter, r *http.Request) {
	var body segment.UpdateInput
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	res, err := c.Segments.Update(r.Context(), handler.OwnerID(r.Context()), chi.URLParam(r, "id"), body)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, res)
}

func (c *SegmentController) Delete(w http.ResponseWriter, r *http.Request) {
	if err := c.Segments.Delete(r.Context(), handler.OwnerID(r.Context()), chi.URLParam(r, "id")); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Customers pages over the segment's snapshot with ?limit=&offset=.
func (c *SegmentController) Customers(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 50
	}
	customers, err := c.Segments.GetCustomers(r.Context(), handler.OwnerID(r.Context()), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]any{
		"data":   customers,
		"limit":  limit,
		"offset": offset,
	})
}

func (c *SegmentController) Refresh(w http.ResponseWriter, r *http.Request) {
	seg, err := c.Segments.Refresh(r.Context(), handler.OwnerID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, seg)
}

func (c *SegmentController) Preview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Rules model.RuleGroup `json:"rules"`
	}
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	count, sample, err := c.Segments.Preview(r.Context(), handler.OwnerID(r.Context()), body.Rules)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]any{"count": count, "sample": sample})
}
