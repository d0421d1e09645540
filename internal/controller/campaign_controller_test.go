package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/cache"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/config"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/controller"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/delivery"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/handler"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/metrics"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/queue"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/repository"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/segment"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/service"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/vendor"
)

const owner = "owner-1"

type app struct {
	router http.Handler
	store  *repository.Store
	drain  *queue.DrainLoop
}

func newApp(t *testing.T) *app {
	t.Helper()
	logger := zap.NewNop()
	m := metrics.New()
	store := repository.NewMemoryStore()

	rec := delivery.NewRecorder(store.Logs, store.Messages, m, logger)
	segments := segment.NewService(store.Segments, store.Customers, time.Minute, m, logger)
	sim := vendor.NewSimulator(vendor.Options{SuccessRate: 1}, vendor.SinkFunc(func(model.Receipt) {}), logger)
	t.Cleanup(sim.Stop)
	drain := queue.NewDrainLoop(store.Messages, rec, sim, time.Hour, 0, m, logger)

	customers := &service.CustomerService{Customers: store.Customers, Orders: store.Orders, Logger: logger}
	campaigns := &service.CampaignService{
		CampaignRepo: store.Campaigns,
		CustomerRepo: store.Customers,
		MessageRepo:  store.Messages,
		LogRepo:      store.Logs,
		Segments:     segments,
		Recorder:     rec,
		Vendor:       sim,
		Queue:        drain,
		Mode:         config.DeliveryQueue,
		Concurrency:  2,
		Metrics:      m,
		Logger:       logger,
	}

	router := controller.NewRouter(controller.Routes{
		Campaigns:     &controller.CampaignController{CampaignService: campaigns, Logger: logger},
		CampaignReads: handler.NewCampaignHandler(campaigns, logger),
		Customers:     &controller.CustomerController{Customers: customers, Logger: logger},
		Orders: &controller.OrderController{
			Orders: &service.OrderService{Orders: store.Orders, Customers: store.Customers, Spend: customers},
			Logger: logger,
		},
		Segments: &controller.SegmentController{Segments: segments, Logger: logger},
		AI:       &controller.AIController{AI: &service.AIService{Cache: cache.NewMemoryKVStore(), CacheTTL: time.Minute}, Logger: logger},
		Delivery: &handler.DeliveryHandler{
			Receipts: service.NewReceiptService(store.Messages, rec, logger),
			Queue:    drain,
			Logger:   logger,
		},
		Metrics: m,
		Logger:  logger,
	})
	return &app{router: router, store: store, drain: drain}
}

func (a *app) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(handler.OwnerHeader, owner)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v), w.Body.String())
}

func (a *app) seed(t *testing.T) (segmentID string, customerIDs []string) {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/customers/bulk", []map[string]any{
		{"name": "Alice", "email": "alice@example.com", "spend": 5000},
		{"name": "Bob", "email": "bob@example.com", "spend": 100},
		{"name": "Cara", "email": "cara@example.com", "spend": 2500},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var bulk struct {
		Customers []model.Customer `json:"customers"`
	}
	decode(t, w, &bulk)
	for _, c := range bulk.Customers {
		customerIDs = append(customerIDs, c.ID)
	}

	w = a.do(t, http.MethodPost, "/api/segments", map[string]any{
		"name":  "Big spenders",
		"rules": map[string]any{"and": []any{map[string]any{"field": "spend", "op": ">", "value": 1000}}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var seg segment.Result
	decode(t, w, &seg)
	assert.Equal(t, 2, seg.Segment.CustomerCount)
	return seg.Segment.ID, customerIDs
}

func TestPersonalizedPreviewHandler(t *testing.T) {
	a := newApp(t)
	_, ids := a.seed(t)

	w := a.do(t, http.MethodPost, "/api/campaigns/preview", map[string]any{
		"customerId":             ids[0],
		"template":               "Enjoy {discount}% off at {storeName}, {customerName}!",
		"personalizationContext": map[string]any{"discount": "20", "store_name": "Acme"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res map[string]any
	decode(t, w, &res)
	msg, ok := res["rendered_message"].(string)
	require.True(t, ok, "rendered_message not found or not a string")
	assert.Equal(t, "Hi Alice, Enjoy 20% off at Acme, Alice!", msg)
	assert.Contains(t, res["html"], "Acme")
}

func TestCreateCampaign_QueuesAndReportsStats(t *testing.T) {
	a := newApp(t)
	segID, _ := a.seed(t)

	w := a.do(t, http.MethodPost, "/api/campaigns", map[string]any{
		"segmentId": segID,
		"name":      "Spring",
		"message":   "Hello {name}, enjoy {discount}% off",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var report service.DeliveryReport
	decode(t, w, &report)
	assert.Equal(t, 2, report.TotalCustomers)
	assert.Equal(t, 2, report.Queued)
	assert.Equal(t, model.CampaignCompleted, report.Status)

	w = a.do(t, http.MethodGet, "/api/queue/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var qs struct {
		Stats map[string]int `json:"stats"`
	}
	decode(t, w, &qs)
	assert.Equal(t, 2, qs.Stats["QUEUED"])

	for i := 0; i < 2; i++ {
		_, err := a.drain.Tick(context.Background())
		require.NoError(t, err)
	}

	w = a.do(t, http.MethodGet, "/api/campaigns/"+report.CampaignID+"/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Stats model.CampaignStats `json:"stats"`
	}
	decode(t, w, &stats)
	assert.Equal(t, 2, stats.Stats.Sent)
	assert.Equal(t, 100.0, stats.Stats.SuccessRate)

	w = a.do(t, http.MethodGet, "/api/campaigns/"+report.CampaignID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var details service.CampaignDetails
	decode(t, w, &details)
	assert.Equal(t, "Spring", details.Name)
	assert.Equal(t, 2, details.Stats.Total)

	w = a.do(t, http.MethodGet, "/api/campaigns/"+report.CampaignID+"/logs?page=1&page_size=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logs struct {
		Data       []model.CommunicationLog `json:"data"`
		Pagination map[string]int           `json:"pagination"`
	}
	decode(t, w, &logs)
	assert.Len(t, logs.Data, 1)
	assert.Equal(t, 2, logs.Pagination["total_pages"])

	w = a.do(t, http.MethodGet, "/api/campaigns/"+report.CampaignID+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), report.CampaignID)
	assert.NotZero(t, w.Body.Len())
}

func TestCreateCampaign_InvalidPlaceholders(t *testing.T) {
	a := newApp(t)
	segID, _ := a.seed(t)

	w := a.do(t, http.MethodPost, "/api/campaigns", map[string]any{"segmentId": segID, "message": "Hi {nickname}"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var res struct {
		Error struct {
			Type    string         `json:"type"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	decode(t, w, &res)
	assert.Equal(t, "validation", res.Error.Type)
	assert.Equal(t, []any{"{nickname}"}, res.Error.Details["invalidPlaceholders"])
}

func TestListCampaignsPagination(t *testing.T) {
	a := newApp(t)
	segID, _ := a.seed(t)
	for i := 0; i < 3; i++ {
		w := a.do(t, http.MethodPost, "/api/campaigns", map[string]any{"segmentId": segID, "message": "Hi"})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := a.do(t, http.MethodGet, "/api/campaigns?page=2&page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Data       []model.Campaign `json:"data"`
		Pagination map[string]int   `json:"pagination"`
	}
	decode(t, w, &res)
	assert.Len(t, res.Data, 1)
	assert.Equal(t, 3, res.Pagination["total_count"])
	assert.Equal(t, 2, res.Pagination["total_pages"])
}

func TestDeliveryReceiptWebhook(t *testing.T) {
	a := newApp(t)
	segID, _ := a.seed(t)
	w := a.do(t, http.MethodPost, "/api/campaigns", map[string]any{"segmentId": segID, "message": "Hi"})
	var report service.DeliveryReport
	decode(t, w, &report)
	msgID := report.PerCustomerLogs[0].MessageID

	receipt := map[string]any{"messageId": msgID, "status": "FAILED", "errorMessage": "Recipient mailbox full"}
	req := httptest.NewRequest(http.MethodPost, "/api/delivery-receipts", strings.NewReader(mustJSON(t, receipt)))
	rw := httptest.NewRecorder()
	a.router.ServeHTTP(rw, req)
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	var first map[string]any
	decode(t, rw, &first)
	assert.Equal(t, true, first["applied"])

	w = a.do(t, http.MethodPost, "/api/delivery-receipts", receipt)
	require.Equal(t, http.StatusOK, w.Code)
	var second map[string]any
	decode(t, w, &second)
	assert.Equal(t, false, second["applied"])

	w = a.do(t, http.MethodPost, "/api/delivery-receipts", map[string]any{"messageId": "nope", "status": "SENT"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodPost, "/api/delivery-receipts", map[string]any{"messageId": msgID, "status": "LOST"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOwnerHeaderRequired(t *testing.T) {
	a := newApp(t)
	req := httptest.NewRequest(http.MethodGet, "/api/campaigns", nil)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newApp(t)
	a.seed(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "crm_segment_materializations_total")
	assert.Contains(t, body, `route="/api/segments"`)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
