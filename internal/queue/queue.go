package queue

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/delivery"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
)

// TopicReceipts carries vendor receipts when RECEIPT_MODE=direct.
const TopicReceipts = "delivery_receipts"

// DefaultMaxAttempts bounds handler retries. There is no backoff.
const DefaultMaxAttempts = 3

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryBus fans each published payload out to every subscriber of its
// topic, each in its own goroutine.
type InMemoryBus struct {
	mu          sync.Mutex
	handlers    map[string][]func(payload any) error
	maxAttempts int
	logger      *zap.Logger
	wg          sync.WaitGroup
	closed      bool
}

func NewInMemoryBus(maxAttempts int, logger *zap.Logger) *InMemoryBus {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryBus{
		handlers:    make(map[string][]func(payload any) error),
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// job wraps a payload with its attempt count
type job struct {
	topic   string
	payload any
	attempt int
}

// Publish sends a message to all subscribers
func (q *InMemoryBus) Publish(topic string, payload any) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("bus closed")
	}
	handlers := q.handlers[topic]
	q.wg.Add(len(handlers))
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		go q.process(handler, job{topic: topic, payload: payload})
	}
	return nil
}

func (q *InMemoryBus) process(handler func(payload any) error, j job) {
	defer q.wg.Done()
	for j.attempt < q.maxAttempts {
		j.attempt++
		err := handler(j.payload)
		if err == nil {
			return
		}
		q.logger.Warn("bus handler failed",
			zap.String("topic", j.topic),
			zap.Int("attempt", j.attempt),
			zap.Int("max_attempts", q.maxAttempts),
			zap.Error(err),
		)
	}
	q.logger.Error("bus job dropped after max attempts", zap.String("topic", j.topic))
}

// Subscribe adds a handler for a topic
func (q *InMemoryBus) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close rejects further publishes and waits for in-flight jobs.
func (q *InMemoryBus) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
}

// ReceiptPublisher adapts the bus to the vendor's receipt sink.
type ReceiptPublisher struct {
	Queue  Queue
	Logger *zap.Logger
}

func (p ReceiptPublisher) Deliver(r model.Receipt) {
	if err := p.Queue.Publish(TopicReceipts, r); err != nil && p.Logger != nil {
		p.Logger.Error("failed to publish receipt", zap.String("message_id", r.MessageID), zap.Error(err))
	}
}

// StartReceiptSubscriber applies every receipt on TopicReceipts through rec.
func StartReceiptSubscriber(q Queue, rec *delivery.Recorder, logger *zap.Logger) error {
	return q.Subscribe(TopicReceipts, func(payload any) error {
		r, ok := payload.(model.Receipt)
		if !ok {
			logger.Warn("invalid receipt payload type", zap.String("type", fmt.Sprintf("%T", payload)))
			return nil
		}
		applied, err := rec.Record(context.Background(), r.Outcome())
		if err != nil {
			return err
		}
		if !applied {
			logger.Debug("receipt ignored", zap.String("message_id", r.MessageID))
		}
		return nil
	})
}
