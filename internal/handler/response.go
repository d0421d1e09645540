// internal/handler/response.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	appErrors "github.com/Rakesh-Kumar-Talam/CRM-backend/internal/errors"
)

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err onto the error envelope:
// validation -> 400, missing owner -> 401, not found -> 404, anything else -> 500.
func WriteError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var (
		ve    *appErrors.ValidationError
		nf    *appErrors.NotFoundError
		fatal *appErrors.FatalBatchError
	)
	switch {
	case errors.As(err, &ve):
		details := map[string]any{}
		for k, v := range ve.Details {
			details[k] = v
		}
		if len(ve.Violations) > 0 {
			details["violations"] = ve.Violations
		}
		body := errorBody{Type: "validation", Message: ve.Message}
		if len(details) > 0 {
			body.Details = details
		}
		WriteJSON(w, http.StatusBadRequest, map[string]any{"error": body})
	case errors.Is(err, appErrors.ErrUnauthorized):
		WriteJSON(w, http.StatusUnauthorized, map[string]any{"error": errorBody{Type: "unauthorized", Message: err.Error()}})
	case errors.As(err, &nf):
		WriteJSON(w, http.StatusNotFound, map[string]any{"error": errorBody{
			Type:    "not_found",
			Message: nf.Error(),
			Details: map[string]string{"resource": nf.Resource, "id": nf.ID},
		}})
	case errors.As(err, &fatal):
		if logger != nil {
			logger.Error("campaign delivery aborted", zap.String("campaign_id", fatal.CampaignID), zap.Error(err))
		}
		body := errorBody{Type: "fatal_batch", Message: "campaign delivery aborted"}
		if fatal.CampaignID != "" {
			body.Details = map[string]string{"campaignId": fatal.CampaignID, "status": "CANCELLED"}
		}
		WriteJSON(w, http.StatusInternalServerError, map[string]any{"error": body})
	default:
		if logger != nil {
			logger.Error("request failed", zap.Error(err))
		}
		WriteJSON(w, http.StatusInternalServerError, map[string]any{"error": errorBody{Type: "internal", Message: "internal server error"}})
	}
}

// DecodeJSON reads the request body into v. A malformed body is a validation error.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return appErrors.NewValidation("request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return appErrors.NewValidation("invalid request body", err.Error())
	}
	return nil
}

// PageParams reads page and page_size; zero values are normalized by the services.
func PageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	return page, pageSize
}

// Paged is the list response shape shared by every paginated endpoint.
func Paged(data any, pagination map[string]int) map[string]any {
	return map[string]any{
		"data":       data,
		"pagination": pagination,
	}
}
