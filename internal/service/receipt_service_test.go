package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/delivery"
	appErrors "github.com/Rakesh-Kumar-Talam/CRM-backend/internal/errors"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/repository"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/service"
)

func newReceiptService(t *testing.T) (*service.ReceiptService, *repository.Store) {
	t.Helper()
	store := repository.NewMemoryStore()
	rec := delivery.NewRecorder(store.Logs, store.Messages, nil, nil)
	require.NoError(t, rec.Open(context.Background(), delivery.Attempt{
		OwnerID: owner, CampaignID: "camp-1", CustomerID: "cust-1", MessageID: "msg-1", Status: model.StatusPending,
	}))
	return service.NewReceiptService(store.Messages, rec, nil), store
}

func TestReceiptService_AppliesOnce(t *testing.T) {
	svc, store := newReceiptService(t)

	applied, err := svc.Apply(context.Background(), model.Receipt{MessageID: "msg-1", Status: model.StatusFailed})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = svc.Apply(context.Background(), model.Receipt{MessageID: "msg-1", Status: model.StatusSent})
	require.NoError(t, err)
	assert.False(t, applied, "terminal states are final")

	lg, err := store.Logs.GetByMessageID(context.Background(), "msg-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, lg.Status)
	assert.Equal(t, "Delivery failed", lg.ErrorMessage)

	msg, err := store.Messages.GetByMessageID(context.Background(), "msg-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, msg.Status)
}

func TestReceiptService_Rejections(t *testing.T) {
	svc, _ := newReceiptService(t)

	_, err := svc.Apply(context.Background(), model.Receipt{MessageID: " ", Status: model.StatusSent})
	assert.True(t, appErrors.IsValidation(err))

	_, err = svc.Apply(context.Background(), model.Receipt{MessageID: "msg-1", Status: model.StatusQueued})
	assert.True(t, appErrors.IsValidation(err))

	_, err = svc.Apply(context.Background(), model.Receipt{MessageID: "unknown", Status: model.StatusSent})
	assert.True(t, appErrors.IsNotFound(err))
}

type fakeAcknowledger struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue []bool
}

func (a *fakeAcknowledger) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *fakeAcknowledger) Reject(uint64, bool) error { return nil }

type erroringApplier struct{}

func (erroringApplier) Apply(context.Context, model.Receipt) (bool, error) {
	return false, errors.New("connection reset")
}

func body(t *testing.T, r model.Receipt) []byte {
	t.Helper()
	b, err := json.Marshal(r)
	require.NoError(t, err)
	return b
}

func TestReceiptWorker_AcksAppliedAndRejected(t *testing.T) {
	svc, store := newReceiptService(t)
	ack := &fakeAcknowledger{}
	deliveries := make(chan amqp.Delivery, 4)
	deliveries <- amqp.Delivery{Acknowledger: ack, Body: body(t, model.Receipt{MessageID: "msg-1", Status: model.StatusSent, DeliveredAt: time.Now()})}
	deliveries <- amqp.Delivery{Acknowledger: ack, Body: []byte("{not json")}
	deliveries <- amqp.Delivery{Acknowledger: ack, Body: body(t, model.Receipt{MessageID: "ghost", Status: model.StatusSent})}
	deliveries <- amqp.Delivery{Acknowledger: ack, Body: body(t, model.Receipt{MessageID: "msg-1", Status: model.StatusFailed})}
	close(deliveries)

	service.NewReceiptWorker(svc, deliveries, nil).Start(context.Background())

	assert.Equal(t, 4, ack.acks)
	assert.Equal(t, 0, ack.nacks)
	msg, err := store.Messages.GetByMessageID(context.Background(), "msg-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, msg.Status)
}

func TestReceiptWorker_RequeuesStorageErrorsOnce(t *testing.T) {
	ack := &fakeAcknowledger{}
	deliveries := make(chan amqp.Delivery, 2)
	payload := body(t, model.Receipt{MessageID: "msg-1", Status: model.StatusSent})
	deliveries <- amqp.Delivery{Acknowledger: ack, Body: payload}
	deliveries <- amqp.Delivery{Acknowledger: ack, Body: payload, Redelivered: true}
	close(deliveries)

	service.NewReceiptWorker(erroringApplier{}, deliveries, nil).Start(context.Background())

	assert.Equal(t, 0, ack.acks)
	assert.Equal(t, []bool{true, false}, ack.requeue)
}

func TestReceiptWorker_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		service.NewReceiptWorker(erroringApplier{}, make(chan amqp.Delivery), nil).Start(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
