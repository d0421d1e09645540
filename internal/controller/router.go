package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/handler"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/metrics"
)

// Routes groups every endpoint owner the router mounts.
type Routes struct {
	Campaigns     *CampaignController
	CampaignReads *handler.CampaignHandler
	Customers     *CustomerController
	Orders        *OrderController
	Segments      *SegmentController
	AI            *AIController
	Delivery      *handler.DeliveryHandler
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
}

func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(handler.Instrument(rt.Metrics, rt.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		handler.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if rt.Metrics != nil {
		r.Handle("/metrics", rt.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		// the vendor calls back without an owner; message ids are global
		r.Post("/delivery-receipts", rt.Delivery.ReceiptHandler)

		r.Group(func(r chi.Router) {
			r.Use(handler.RequireOwner)
			mountOwned(r, rt)
		})
	})
	return r
}

func mountOwned(r chi.Router, rt Routes) {
	// Customer routes
	r.Post("/customers", rt.Customers.Create)
	r.Get("/customers", rt.Customers.List)
	r.Post("/customers/bulk", rt.Customers.BulkCreate)
	r.Post("/customers/recalculate-spend", rt.Customers.RecalculateSpend)
	r.Get("/customers/{id}", rt.Customers.Get)
	r.Put("/customers/{id}", rt.Customers.Update)
	r.Delete("/customers/{id}", rt.Customers.Delete)

	// Order routes
	r.Post("/orders", rt.Orders.Create)
	r.Get("/orders", rt.Orders.List)
	r.Get("/orders/{id}", rt.Orders.Get)
	r.Put("/orders/{id}", rt.Orders.Update)
	r.Delete("/orders/{id}", rt.Orders.Delete)

	// Segment routes
	r.Post("/segments", rt.Segments.Create)
	r.Get("/segments", rt.Segments.List)
	r.Post("/segments/preview", rt.Segments.Preview)
	r.Get("/segments/{id}", rt.Segments.Get)
	r.Put("/segments/{id}", rt.Segments.Update)
	r.Delete("/segments/{id}", rt.Segments.Delete)
	r.Get("/segments/{id}/customers", rt.Segments.Customers)
	r.Post("/segments/{id}/refresh", rt.Segments.Refresh)

	// Campaign routes
	r.Post("/campaigns", rt.Campaigns.CreateCampaign)
	r.Get("/campaigns", rt.CampaignReads.ListCampaignsHandler)
	r.Post("/campaigns/preview", rt.Campaigns.PersonalizedPreview)
	r.Get("/campaigns/{id}", rt.CampaignReads.GetCampaignHandlerWithStats)
	r.Get("/campaigns/{id}/stats", rt.CampaignReads.StatsHandler)
	r.Get("/campaigns/{id}/logs", rt.CampaignReads.LogsHandler)
	r.Get("/campaigns/{id}/export", rt.CampaignReads.ExportHandler)

	r.Get("/queue/stats", rt.Delivery.QueueStatsHandler)

	r.Post("/ai/rules", rt.AI.Rules)
	r.Post("/ai/messages", rt.AI.Messages)
}
