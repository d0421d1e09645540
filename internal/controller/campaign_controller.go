// internal/controller/campaign_controller.go
package controller

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/handler"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	Logger          *zap.Logger
}

// PersonalizedPreview renders a template for one customer without sending it.
func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	var body service.PreviewRequest
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}

	rendered, err := c.CampaignService.RenderPreview(r.Context(), handler.OwnerID(r.Context()), body)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, map[string]any{
		"rendered_message": rendered.PersonalizedMessage,
		"html":             rendered.HTML,
		"used_template":    rendered.OriginalMessage,
		"customer_id":      rendered.CustomerID,
		"data":             rendered.PersonalizationData,
	})
}

// CreateCampaign creates the campaign and delivers it to the segment in one call.
func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body service.CreateCampaignRequest
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}

	report, err := c.CampaignService.CreateAndDeliver(r.Context(), handler.OwnerID(r.Context()), body)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}

	handler.WriteJSON(w, http.StatusCreated, report)
}
