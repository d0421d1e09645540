// internal/handler/campaign_handler.go
package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// CampaignHandler holds the read-side campaign endpoints
type CampaignHandler struct {
	Service *service.CampaignService
	Logger  *zap.Logger
}

// NewCampaignHandler creates a new CampaignHandler with the given service
func NewCampaignHandler(svc *service.CampaignService, logger *zap.Logger) *CampaignHandler {
	return &CampaignHandler{Service: svc, Logger: logger}
}

// ListCampaignsHandler returns a paginated list of campaigns, newest first
func (h *CampaignHandler) ListCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	page, pageSize := PageParams(r)
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := h.Service.ListCampaigns(r.Context(), OwnerID(r.Context()), page, pageSize, status)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, Paged(campaigns, pagination))
}

func (h *CampaignHandler) GetCampaignHandlerWithStats(w http.ResponseWriter, r *http.Request) {
	details, err := h.Service.GetCampaignDetailsWithStats(r.Context(), OwnerID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, details)
}

func (h *CampaignHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	stats, err := h.Service.GetCampaignStats(r.Context(), OwnerID(r.Context()), id)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"campaignId": id, "stats": stats})
}

func (h *CampaignHandler) LogsHandler(w http.ResponseWriter, r *http.Request) {
	page, pageSize := PageParams(r)
	logs, pagination, err := h.Service.ListCampaignLogs(r.Context(), OwnerID(r.Context()), chi.URLParam(r, "id"), page, pageSize)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, Paged(logs, pagination))
}

// ExportHandler streams the campaign's messages as an xlsx attachment.
func (h *CampaignHandler) ExportHandler(w http.ResponseWriter, r *http.Request) {
	campaign, data, err := h.Service.Export(r.Context(), OwnerID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="campaign-%s.xlsx"`, campaign.ID))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil && h.Logger != nil {
		h.Logger.Warn("export write failed", zap.String("campaign_id", campaign.ID), zap.Error(err))
	}
}
