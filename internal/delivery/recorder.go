// Package delivery owns every write to the two delivery projections
// (communication logs and sent messages) so they always agree.
package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/metrics"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/repository"
)

// OutcomeRecorded is the event fanned out to both projections and to listeners.
type OutcomeRecorded = model.Outcome

// Listener observes outcomes that actually transitioned a record.
type Listener func(ctx context.Context, o OutcomeRecorded)

// Attempt describes a new delivery record pair.
type Attempt struct {
	OwnerID      string
	CampaignID   string
	CustomerID   string
	MessageID    string
	Recipient    string
	Subject      string
	Text         string
	HTML         string
	Metadata     map[string]string
	Status       model.DeliveryStatus
	ErrorMessage string
}

type Recorder struct {
	logs      repository.CommunicationLogRepositoryInterface
	messages  repository.SentMessageRepositoryInterface
	outcomes  repository.OutcomeMarker
	metrics   *metrics.Metrics
	logger    *zap.Logger
	listeners []Listener
	now       func() time.Time

	// serializes marking so both projections see outcomes in the same order
	mu sync.Mutex
	// outcomes already applied to sent messages whose logs still lag
	lagging []model.Outcome
}

func NewRecorder(logs repository.CommunicationLogRepositoryInterface, messages repository.SentMessageRepositoryInterface,
	m *metrics.Metrics, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{logs: logs, messages: messages, metrics: m, logger: logger, now: time.Now}
}

// NewStoreRecorder marks outcomes through store.Outcomes when the store
// provides one, so both projections transition in a single transaction.
func NewStoreRecorder(store *repository.Store, m *metrics.Metrics, logger *zap.Logger) *Recorder {
	r := NewRecorder(store.Logs, store.Messages, m, logger)
	r.outcomes = store.Outcomes
	return r
}

// Subscribe registers l. It must be called before the recorder is shared.
func (r *Recorder) Subscribe(l Listener) {
	r.listeners = append(r.listeners, l)
}

// Open writes the sent-message record and its communication log with the
// same status. Opening a FAILED pair counts as a recorded outcome.
func (r *Recorder) Open(ctx context.Context, a Attempt) error {
	if a.MessageID == "" {
		return fmt.Errorf("delivery: message id is required")
	}
	if a.Status == "" {
		a.Status = model.StatusPending
	}
	now := r.now().UTC()
	var sentAt *time.Time
	if a.Status == model.StatusSent {
		sentAt = &now
	}

	msg := &model.SentMessage{
		OwnerID:      a.OwnerID,
		CampaignID:   optional(a.CampaignID),
		CustomerID:   optional(a.CustomerID),
		MessageID:    a.MessageID,
		Recipient:    a.Recipient,
		Subject:      a.Subject,
		Text:         a.Text,
		HTML:         a.HTML,
		Status:       a.Status,
		ErrorMessage: a.ErrorMessage,
		Metadata:     a.Metadata,
		CreatedAt:    now,
		SentAt:       sentAt,
	}
	if err := r.messages.Create(ctx, msg); err != nil {
		return fmt.Errorf("create sent message %s: %w", a.MessageID, err)
	}

	entry := &model.CommunicationLog{
		OwnerID:      a.OwnerID,
		CampaignID:   optional(a.CampaignID),
		CustomerID:   optional(a.CustomerID),
		MessageID:    a.MessageID,
		Status:       a.Status,
		Message:      a.Text,
		ErrorMessage: a.ErrorMessage,
		SentAt:       sentAt,
		CreatedAt:    now,
	}
	if err := r.logs.Create(ctx, entry); err != nil {
		return fmt.Errorf("create communication log %s: %w", a.MessageID, err)
	}

	if a.Status.IsTerminal() {
		r.metrics.OutcomeRecorded(string(a.Status))
	}
	return nil
}

// Record applies one outcome. It reports false when the message was already
// terminal or is unknown.
func (r *Recorder) Record(ctx context.Context, o OutcomeRecorded) (bool, error) {
	n, err := r.RecordBatch(ctx, []OutcomeRecorded{o})
	return n > 0, err
}

// RecordBatch applies outcomes to both projections and returns how many
// messages transitioned. Non-terminal statuses are skipped and the first
// outcome wins when a message id repeats.
func (r *Recorder) RecordBatch(ctx context.Context, outcomes []OutcomeRecorded) (int, error) {
	batch := make([]model.Outcome, 0, len(outcomes))
	byID := make(map[string]model.Outcome, len(outcomes))
	for _, o := range outcomes {
		if o.MessageID == "" || !o.Status.IsTerminal() {
			r.logger.Warn("skipping invalid outcome",
				zap.String("message_id", o.MessageID),
				zap.String("status", string(o.Status)),
			)
			continue
		}
		if _, dup := byID[o.MessageID]; dup {
			continue
		}
		if o.At.IsZero() {
			o.At = r.now()
		}
		if o.Status == model.StatusSent {
			o.ErrorMessage = ""
		}
		byID[o.MessageID] = o
		batch = append(batch, o)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	r.mu.Lock()
	_ = r.catchUpLocked(ctx)
	appliedMsgs, appliedLogs, err := r.mark(ctx, batch)
	r.mu.Unlock()
	if err != nil {
		return 0, err
	}

	applied := make(map[string]bool, len(appliedMsgs)+len(appliedLogs))
	for _, id := range appliedMsgs {
		applied[id] = true
	}
	for _, id := range appliedLogs {
		applied[id] = true
	}

	for _, o := range batch {
		if !applied[o.MessageID] {
			continue
		}
		r.metrics.OutcomeRecorded(string(o.Status))
		for _, l := range r.listeners {
			l(ctx, o)
		}
	}
	if len(applied) < len(batch) {
		r.logger.Debug("some outcomes were already terminal",
			zap.Int("received", len(batch)),
			zap.Int("applied", len(applied)),
		)
	}
	return len(applied), nil
}

// mark writes batch to both projections. Without a transactional marker the
// writes are sequential; when the log update fails after the sent messages
// transitioned, the batch is kept and replayed to the logs by catchUpLocked.
func (r *Recorder) mark(ctx context.Context, batch []model.Outcome) ([]string, []string, error) {
	if r.outcomes != nil {
		return r.outcomes.MarkOutcomes(ctx, batch)
	}
	appliedMsgs, err := r.messages.MarkOutcomes(ctx, batch)
	if err != nil {
		return nil, nil, fmt.Errorf("mark sent messages: %w", err)
	}
	appliedLogs, err := r.logs.MarkOutcomes(ctx, batch)
	if err != nil {
		r.lagging = append(r.lagging, batch...)
		r.logger.Error("communication logs lag sent messages, will retry",
			zap.Int("outcomes", len(batch)),
			zap.Error(err),
		)
		return appliedMsgs, nil, nil
	}
	return appliedMsgs, appliedLogs, nil
}

func (r *Recorder) catchUpLocked(ctx context.Context) error {
	if len(r.lagging) == 0 {
		return nil
	}
	if _, err := r.logs.MarkOutcomes(ctx, r.lagging); err != nil {
		r.logger.Warn("communication log catch-up failed", zap.Int("outcomes", len(r.lagging)), zap.Error(err))
		return fmt.Errorf("catch up communication logs: %w", err)
	}
	r.logger.Info("communication logs caught up", zap.Int("outcomes", len(r.lagging)))
	r.lagging = nil
	return nil
}

// CatchUp replays outcomes whose communication logs failed to update.
func (r *Recorder) CatchUp(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.catchUpLocked(ctx)
}

// Lagging reports how many outcomes are waiting for CatchUp.
func (r *Recorder) Lagging() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lagging)
}

// ApplyReceipts adapts RecordBatch to the vendor's batch flush signature.
func (r *Recorder) ApplyReceipts(ctx context.Context, receipts []model.Receipt) error {
	outcomes := make([]OutcomeRecorded, len(receipts))
	for i, rc := range receipts {
		outcomes[i] = rc.Outcome()
	}
	n, err := r.RecordBatch(ctx, outcomes)
	if err != nil {
		return err
	}
	r.metrics.ReceiptsFlushed(n)
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
