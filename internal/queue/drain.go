package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/delivery"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/metrics"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/repository"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/vendor"
)

// Attempter draws a delivery outcome synchronously.
type Attempter interface {
	Attempt(msg vendor.Message) model.Outcome
}

// QueuedMessage is what a caller hands to Enqueue.
type QueuedMessage struct {
	OwnerID    string
	CampaignID string
	CustomerID string
	MessageID  string
	Recipient  string
	Subject    string
	Text       string
	HTML       string
	Metadata   map[string]string
}

// DrainLoop delivers QUEUED messages one per tick, oldest first. Throughput
// is one message per processing delay.
type DrainLoop struct {
	messages repository.SentMessageRepositoryInterface
	recorder *delivery.Recorder
	vendor   Attempter
	interval time.Duration
	delay    time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger

	busy atomic.Bool
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func NewDrainLoop(messages repository.SentMessageRepositoryInterface, rec *delivery.Recorder, v Attempter,
	interval, processingDelay time.Duration, m *metrics.Metrics, logger *zap.Logger) *DrainLoop {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DrainLoop{
		messages: messages,
		recorder: rec,
		vendor:   v,
		interval: interval,
		delay:    processingDelay,
		metrics:  m,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Enqueue persists the QUEUED record pair and returns.
func (l *DrainLoop) Enqueue(ctx context.Context, m QueuedMessage) error {
	err := l.recorder.Open(ctx, delivery.Attempt{
		OwnerID:    m.OwnerID,
		CampaignID: m.CampaignID,
		CustomerID: m.CustomerID,
		MessageID:  m.MessageID,
		Recipient:  m.Recipient,
		Subject:    m.Subject,
		Text:       m.Text,
		HTML:       m.HTML,
		Metadata:   m.Metadata,
		Status:     model.StatusQueued,
	})
	if err != nil {
		return err
	}
	l.metrics.MessageSubmitted("queue")
	return nil
}

// Tick drains at most one message. It returns false without doing anything
// when a previous tick is still running or nothing is queued.
func (l *DrainLoop) Tick(ctx context.Context) (bool, error) {
	if !l.busy.CompareAndSwap(false, true) {
		return false, nil
	}
	defer l.busy.Store(false)

	// logs left behind by an earlier partial write
	_ = l.recorder.CatchUp(ctx)

	msg, err := l.messages.OldestQueued(ctx)
	if err != nil {
		return false, fmt.Errorf("load oldest queued message: %w", err)
	}
	if msg == nil {
		return false, nil
	}

	if l.delay > 0 {
		t := time.NewTimer(l.delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return false, ctx.Err()
		}
	}

	outcome := l.vendor.Attempt(vendor.Message{
		MessageID: msg.MessageID,
		Recipient: msg.Recipient,
		Subject:   msg.Subject,
		Text:      msg.Text,
		HTML:      msg.HTML,
	})
	outcome.MessageID = msg.MessageID
	if _, err := l.recorder.Record(ctx, outcome); err != nil {
		return false, fmt.Errorf("record outcome for %s: %w", msg.MessageID, err)
	}

	l.logger.Debug("drained queued message",
		zap.String("message_id", msg.MessageID),
		zap.String("status", string(outcome.Status)),
	)
	return true, nil
}

// Start wakes every interval until Stop or ctx is done. A wake-up that finds
// the previous tick still running is skipped.
func (l *DrainLoop) Start(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if l.busy.Load() {
					continue
				}
				l.wg.Add(1)
				go func() {
					defer l.wg.Done()
					if _, err := l.Tick(ctx); err != nil && ctx.Err() == nil {
						l.logger.Error("drain tick failed", zap.Error(err))
					}
				}()
			case <-l.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	l.logger.Info("queue drain loop started",
		zap.Duration("interval", l.interval),
		zap.Duration("processing_delay", l.delay),
	)
}

// Stop ends the loop and waits for an in-flight tick.
func (l *DrainLoop) Stop() {
	l.once.Do(func() { close(l.stop) })
	l.wg.Wait()
}

// GetStats counts the owner's sent messages by status.
func (l *DrainLoop) GetStats(ctx context.Context, ownerID string) (map[string]int, error) {
	counts, err := l.messages.CountByStatus(ctx, ownerID, "")
	if err != nil {
		return nil, err
	}
	stats := make(map[string]int, len(counts))
	for status, n := range counts {
		stats[string(status)] = n
	}
	l.metrics.SetQueueDepth(counts[model.StatusQueued])
	return stats, nil
}
