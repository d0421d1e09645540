package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/Rakesh-Kumar-Talam/CRM-backend/internal/errors"
)

type envelope struct {
	Error struct {
		Type    string         `json:"type"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func TestWriteError(t *testing.T) {
	invalid := appErrors.NewValidation("invalid placeholders", "message: unknown placeholder")
	invalid.Details = map[string]any{"invalidPlaceholders": []string{"{bogus}"}}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantDetail string
	}{
		{"validation", invalid, http.StatusBadRequest, "validation", "invalidPlaceholders"},
		{"wrapped not found", fmt.Errorf("load: %w", appErrors.NewSegmentNotFound("seg-1")), http.StatusNotFound, "not_found", "resource"},
		{"unauthorized", appErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized", ""},
		{"fatal batch", &appErrors.FatalBatchError{CampaignID: "c-1", Err: errors.New("db down")}, http.StatusInternalServerError, "fatal_batch", "campaignId"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "internal", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, nil, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var body envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantType, body.Error.Type)
			assert.NotEmpty(t, body.Error.Message)
			if tt.wantDetail != "" {
				assert.Contains(t, body.Error.Details, tt.wantDetail)
			}
		})
	}
}

func TestWriteError_ValidationViolations(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, nil, appErrors.NewValidation("invalid customer", "name: is required"))

	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []any{"name: is required"}, body.Error.Details["violations"])
}

func TestWriteError_InternalHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, nil, errors.New("pq: password authentication failed"))
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
	require.NoError(t, DecodeJSON(r, &v))
	assert.Equal(t, "x", v.Name)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	err := DecodeJSON(r, &v)
	assert.True(t, appErrors.IsValidation(err))
}

func TestPageParams(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?page=3&page_size=15", nil)
	page, size := PageParams(r)
	assert.Equal(t, 3, page)
	assert.Equal(t, 15, size)

	r = httptest.NewRequest(http.MethodGet, "/?page=abc", nil)
	page, size = PageParams(r)
	assert.Zero(t, page)
	assert.Zero(t, size)
}

func TestRequireOwner(t *testing.T) {
	var seen string
	h := RequireOwner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = OwnerID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, seen)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(OwnerHeader, " owner-1 ")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "owner-1", seen)
}
