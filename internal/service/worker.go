package service

import (
	"context"
	"encoding/json"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	appErrors "github.com/Rakesh-Kumar-Talam/CRM-backend/internal/errors"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
)

// ReceiptApplier is what the worker needs from ReceiptService.
type ReceiptApplier interface {
	Apply(ctx context.Context, r model.Receipt) (bool, error)
}

// ReceiptWorker consumes receipts published to the broker and applies them.
type ReceiptWorker struct {
	Receipts   ReceiptApplier
	Deliveries <-chan amqp.Delivery
	Logger     *zap.Logger
}

// Constructor
func NewReceiptWorker(receipts ReceiptApplier, deliveries <-chan amqp.Delivery, logger *zap.Logger) *ReceiptWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReceiptWorker{Receipts: receipts, Deliveries: deliveries, Logger: logger}
}

// Start processes deliveries until the channel closes or ctx is done.
func (w *ReceiptWorker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-w.Deliveries:
			if !ok {
				return
			}
			w.handle(ctx, d)
		}
	}
}

// handle acks malformed, unknown and duplicate receipts. A storage error is
// requeued once; a redelivered receipt that fails again is dropped.
func (w *ReceiptWorker) handle(ctx context.Context, d amqp.Delivery) {
	var r model.Receipt
	if err := json.Unmarshal(d.Body, &r); err != nil {
		w.Logger.Warn("invalid receipt payload", zap.Error(err))
		w.ack(d)
		return
	}

	_, err := w.Receipts.Apply(ctx, r)
	switch {
	case err == nil:
		w.ack(d)
	case appErrors.IsValidation(err) || appErrors.IsNotFound(err):
		w.Logger.Warn("receipt rejected", zap.String("message_id", r.MessageID), zap.Error(err))
		w.ack(d)
	default:
		w.Logger.Error("failed to apply receipt",
			zap.String("message_id", r.MessageID),
			zap.Bool("redelivered", d.Redelivered),
			zap.Error(err),
		)
		if nerr := d.Nack(false, !d.Redelivered); nerr != nil {
			w.Logger.Error("nack failed", zap.Error(nerr))
		}
	}
}

func (w *ReceiptWorker) ack(d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		w.Logger.Error("ack failed", zap.Error(err))
	}
}
