package controller

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/handler"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/service"
)

type AIController struct {
	AI     *service.AIService
	Logger *zap.Logger
}

func (c *AIController) Rules(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	node, err := c.AI.ToRules(r.Context(), body.Text)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]any{"rules": node})
}

func (c *AIController) Messages(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Goal string `json:"goal"`
	}
	if err := handler.DecodeJSON(r, &body); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	msgs, err := c.AI.ToMessages(r.Context(), body.Goal)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}
