package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	appErrors "github.com/Rakesh-Kumar-Talam/CRM-backend/internal/errors"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/metrics"
)

// OwnerHeader carries the identifier every record is scoped by.
const OwnerHeader = "X-Owner-ID"

type ownerKey struct{}

// RequireOwner rejects requests without an owner header and stores the owner
// on the request context.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
		if owner == "" {
			WriteError(w, nil, appErrors.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
	})
}

func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

func OwnerID(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

// Instrument logs each request and records it in m under its route pattern.
func Instrument(m *metrics.Metrics, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			took := time.Since(start)
			m.HTTPRequest(r.Method, route, status, took)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Duration("took", took),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
