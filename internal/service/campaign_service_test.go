package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/config"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/delivery"
	appErrors "github.com/Rakesh-Kumar-Talam/CRM-backend/internal/errors"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/queue"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/repository"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/segment"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/service"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/vendor"
)

const owner = "owner-1"

type harness struct {
	store    *repository.Store
	segments *segment.Service
	recorder *delivery.Recorder
	drain    *queue.DrainLoop
	sim      *vendor.Simulator
	svc      *service.CampaignService
}

func newHarness(t *testing.T, mode string, store *repository.Store) *harness {
	t.Helper()
	if store == nil {
		store = repository.NewMemoryStore()
	}
	h := &harness{store: store}
	h.segments = segment.NewService(store.Segments, store.Customers, time.Minute, nil, nil)
	h.recorder = delivery.NewRecorder(store.Logs, store.Messages, nil, nil)
	h.sim = vendor.NewSimulator(vendor.Options{SuccessRate: 0.9, MinDelay: time.Hour, MaxDelay: time.Hour},
		vendor.SinkFunc(func(r model.Receipt) {
			_, _ = h.recorder.Record(context.Background(), r.Outcome())
		}), nil)
	h.drain = queue.NewDrainLoop(store.Messages, h.recorder, h.sim, time.Hour, 0, nil, nil)
	h.svc = &service.CampaignService{
		CampaignRepo: store.Campaigns,
		CustomerRepo: store.Customers,
		MessageRepo:  store.Messages,
		LogRepo:      store.Logs,
		Segments:     h.segments,
		Recorder:     h.recorder,
		Vendor:       h.sim,
		Queue:        h.drain,
		Mode:         mode,
		Concurrency:  4,
	}
	return h
}

func (h *harness) customers(t *testing.T, spends ...float64) []string {
	t.Helper()
	ids := make([]string, len(spends))
	for i, spend := range spends {
		c := &model.Customer{OwnerID: owner, Name: fmt.Sprintf("Customer%d", i), Email: fmt.Sprintf("c%d@example.com", i), Spend: spend}
		require.NoError(t, h.store.Customers.Create(context.Background(), c))
		ids[i] = c.ID
	}
	return ids
}

func (h *harness) segment(t *testing.T) string {
	t.Helper()
	res, err := h.segments.Create(context.Background(), owner, segment.CreateInput{
		Name:  "VIP",
		Rules: model.All(model.Leaf(model.FieldSpend, ">", 1000)),
	})
	require.NoError(t, err)
	return res.Segment.ID
}

func TestCreateAndDeliver_ZeroCustomersCompletes(t *testing.T) {
	h := newHarness(t, config.DeliveryQueue, nil)
	h.customers(t, 10, 20)
	segID := h.segment(t)

	report, err := h.svc.CreateAndDeliver(context.Background(), owner, service.CreateCampaignRequest{
		SegmentID: segID,
		Message:   "Enjoy {discount}% off!",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalCustomers)
	assert.Equal(t, 0, report.Queued)
	assert.Equal(t, model.CampaignCompleted, report.Status)

	c, err := h.store.Campaigns.GetByID(context.Background(), owner, report.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignCompleted, c.Status)
	assert.NotNil(t, c.CompletedAt)
}

func TestCreateAndDeliver_InvalidPlaceholdersRejected(t *testing.T) {
	h := newHarness(t, config.DeliveryQueue, nil)
	h.customers(t, 2000)
	segID := h.segment(t)

	_, err := h.svc.CreateAndDeliver(context.Background(), owner, service.CreateCampaignRequest{
		SegmentID: segID,
		Message:   "Hello {firstName}, {bogus}",
	})
	var ve *appErrors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"{bogus}", "{firstName}"}, ve.Details["invalidPlaceholders"])
	assert.NotEmpty(t, ve.Details["availablePlaceholders"])

	campaigns, _, err := h.svc.ListCampaigns(context.Background(), owner, 1, 20, "")
	require.NoError(t, err)
	assert.Empty(t, campaigns, "nothing is persisted for an invalid template")
}

func TestCreateAndDeliver_UnknownSegment(t *testing.T) {
	h := newHarness(t, config.DeliveryQueue, nil)
	_, err := h.svc.CreateAndDeliver(context.Background(), owner, service.CreateCampaignRequest{SegmentID: "nope", Message: "Hi"})
	assert.True(t, appErrors.IsNotFound(err))
}

func TestCreateAndDeliver_QueueMode(t *testing.T) {
	h := newHarness(t, config.DeliveryQueue, nil)
	h.customers(t, 1500, 500, 2500, 3500)
	segID := h.segment(t)

	report, err := h.svc.CreateAndDeliver(context.Background(), owner, service.CreateCampaignRequest{
		SegmentID:              segID,
		Subject:                "Spring",
		Message:                "Enjoy {discount}% off, {customerName}!",
		PersonalizationContext: model.PersonalizationContext{Discount: "15", StoreName: "Acme"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalCustomers)
	assert.Equal(t, 3, report.Queued)
	assert.Equal(t, 0, report.Failed)
	require.Len(t, report.PerCustomerLogs, 3)
	for _, d := range report.PerCustomerLogs {
		assert.Equal(t, model.StatusQueued, d.Status)
		assert.Contains(t, d.MessageID, "msg_"+report.CampaignID+"_"+d.CustomerID+"_")
		assert.Contains(t, d.PersonalizedMessage, "Hi Customer")
		assert.Contains(t, d.PersonalizedMessage, "15% off")
	}

	stats, err := h.svc.GetCampaignStats(context.Background(), owner, report.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Queued)
	assert.Equal(t, 3, stats.Total)

	for i := 0; i < 3; i++ {
		_, err := h.drain.Tick(context.Background())
		require.NoError(t, err)
	}
	stats, err = h.svc.GetCampaignStats(context.Background(), owner, report.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Sent+stats.Failed)
	assert.Equal(t, 0, stats.Queued)
	assert.InDelta(t, 100, stats.SuccessRate+stats.FailureRate, 0.001)

	logs, page, err := h.svc.ListCampaignLogs(context.Background(), owner, report.CampaignID, 1, 20)
	require.NoError(t, err)
	assert.Len(t, logs, 3)
	assert.Equal(t, 3, page["total_count"])
}

func TestCreateAndDeliver_DirectModeReceiptsArrive(t *testing.T) {
	h := newHarness(t, config.DeliveryDirect, nil)
	h.customers(t, 1500, 2500)
	segID := h.segment(t)

	report, err := h.svc.CreateAndDeliver(context.Background(), owner, service.CreateCampaignRequest{SegmentID: segID, Message: "Dear {name}, thanks!"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 0, report.Queued)

	stats, err := h.svc.GetCampaignStats(context.Background(), owner, report.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Pending)

	h.sim.Stop()

	stats, err = h.svc.GetCampaignStats(context.Background(), owner, report.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 2, stats.Sent+stats.Failed)

	for _, d := range report.PerCustomerLogs {
		lg, err := h.store.Logs.GetByMessageID(context.Background(), d.MessageID)
		require.NoError(t, err)
		msg, err := h.store.Messages.GetByMessageID(context.Background(), d.MessageID)
		require.NoError(t, err)
		assert.Equal(t, msg.Status, lg.Status)
		assert.True(t, strings.HasPrefix(msg.Text, "Dear Customer"), msg.Text)
	}
}

type flakyEnqueuer struct {
	inner   service.Enqueuer
	failFor string
	panicOn string
}

func (f flakyEnqueuer) Enqueue(ctx context.Context, m queue.QueuedMessage) error {
	switch m.CustomerID {
	case f.failFor:
		return errors.New("queue full")
	case f.panicOn:
		panic("boom")
	}
	return f.inner.Enqueue(ctx, m)
}

func TestCreateAndDeliver_IsolatesCustomerFailures(t *testing.T) {
	h := newHarness(t, config.DeliveryQueue, nil)
	ids := h.customers(t, 1500, 2500, 3500)
	segID := h.segment(t)
	h.svc.Queue = flakyEnqueuer{inner: h.drain, failFor: ids[0], panicOn: ids[1]}

	report, err := h.svc.CreateAndDeliver(context.Background(), owner, service.CreateCampaignRequest{SegmentID: segID, Message: "Hello {name}"})
	require.NoError(t, err)
	assert.Equal(t, model.CampaignCompleted, report.Status)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 1, report.Queued)

	byCustomer := map[string]service.CustomerDelivery{}
	for _, d := range report.PerCustomerLogs {
		byCustomer[d.CustomerID] = d
	}
	assert.Equal(t, "queue full", byCustomer[ids[0]].ErrorMessage)
	assert.Contains(t, byCustomer[ids[1]].ErrorMessage, "boom")
	assert.Equal(t, model.StatusQueued, byCustomer[ids[2]].Status)

	lg, err := h.store.Logs.GetByMessageID(context.Background(), byCustomer[ids[0]].MessageID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, lg.Status)

	stats, err := h.svc.GetCampaignStats(context.Background(), owner, report.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Failed)
}

type brokenMessages struct {
	repository.SentMessageRepositoryInterface
}

func (brokenMessages) Create(context.Context, *model.SentMessage) error {
	return errors.New("disk full")
}

func (brokenMessages) MarkOutcomes(context.Context, []model.Outcome) ([]string, error) {
	return nil, errors.New("disk full")
}

func TestCreateAndDeliver_UnrecordableFailureCancels(t *testing.T) {
	store := repository.NewMemoryStore()
	store.Messages = brokenMessages{SentMessageRepositoryInterface: store.Messages}
	h := newHarness(t, config.DeliveryQueue, store)
	h.customers(t, 1500)
	segID := h.segment(t)

	_, err := h.svc.CreateAndDeliver(context.Background(), owner, service.CreateCampaignRequest{SegmentID: segID, Message: "Hello"})
	var fatal *appErrors.FatalBatchError
	require.True(t, errors.As(err, &fatal))
	require.NotEmpty(t, fatal.CampaignID)

	c, err := store.Campaigns.GetByID(context.Background(), owner, fatal.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignCancelled, c.Status)
}

func TestComputeStats(t *testing.T) {
	tests := []struct {
		name    string
		counts  map[model.DeliveryStatus]int
		success float64
		failure float64
	}{
		{"empty", map[model.DeliveryStatus]int{}, 0, 0},
		{"thirds", map[model.DeliveryStatus]int{model.StatusSent: 1, model.StatusFailed: 2}, 33.33, 66.67},
		{"pending", map[model.DeliveryStatus]int{model.StatusSent: 2, model.StatusFailed: 1, model.StatusPending: 1}, 50, 25},
		{"rounding never exceeds 100", map[model.DeliveryStatus]int{model.StatusSent: 1, model.StatusFailed: 31}, 3.13, 96.87},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := service.ComputeStats(tt.counts)
			assert.Equal(t, st.Total, st.Sent+st.Failed+st.Pending+st.Queued)
			assert.InDelta(t, tt.success, st.SuccessRate, 1e-9)
			assert.InDelta(t, tt.failure, st.FailureRate, 1e-9)
			assert.LessOrEqual(t, st.SuccessRate+st.FailureRate, 100.0)
		})
	}
}

func TestRenderPreview(t *testing.T) {
	h := newHarness(t, config.DeliveryQueue, nil)
	ids := h.customers(t, 2000)
	tmpl := "Enjoy {discount}% off, {customerName}!"

	res, err := h.svc.RenderPreview(context.Background(), owner, service.PreviewRequest{
		CustomerID: ids[0],
		Template:   &tmpl,
		Context:    &model.PersonalizationContext{Discount: "15"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi Customer0, Enjoy 15% off, Customer0!", res.PersonalizedMessage)
	assert.Contains(t, res.HTML, "Enjoy 15% off")

	_, err = h.svc.RenderPreview(context.Background(), owner, service.PreviewRequest{CustomerID: "missing", Template: &tmpl})
	assert.True(t, appErrors.IsNotFound(err))
}

func TestExport(t *testing.T) {
	h := newHarness(t, config.DeliveryQueue, nil)
	h.customers(t, 2000)
	segID := h.segment(t)
	report, err := h.svc.CreateAndDeliver(context.Background(), owner, service.CreateCampaignRequest{SegmentID: segID, Message: "Hi {name}"})
	require.NoError(t, err)

	c, data, err := h.svc.Export(context.Background(), owner, report.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, report.CampaignID, c.ID)
	assert.NotEmpty(t, data)

	_, _, err = h.svc.Export(context.Background(), "someone-else", report.CampaignID)
	assert.True(t, appErrors.IsNotFound(err))
}
