package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/Rakesh-Kumar-Talam/CRM-backend/internal/errors"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
)

// MemorySentMessageRepository keeps messages in insertion order, which is
// the FIFO order OldestQueued relies on.
type MemorySentMessageRepository struct {
	mu    sync.RWMutex
	byMsg map[string]*model.SentMessage
	order []string
}

func NewMemorySentMessageRepository() *MemorySentMessageRepository {
	return &MemorySentMessageRepository{byMsg: map[string]*model.SentMessage{}}
}

func (r *MemorySentMessageRepository) Create(_ context.Context, m *model.SentMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byMsg[m.MessageID]; exists {
		return fmt.Errorf("insert sent message: %w: %s", ErrDuplicateMessageID, m.MessageID)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	cp := cloneSentMessage(*m)
	r.order = append(r.order, m.MessageID)
	r.byMsg[m.MessageID] = &cp
	return nil
}

func (r *MemorySentMessageRepository) GetByMessageID(_ context.Context, messageID string) (*model.SentMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byMsg[messageID]
	if !ok {
		return nil, appErrors.NewMessageNotFound(messageID)
	}
	cp := cloneSentMessage(*m)
	return &cp, nil
}

func (r *MemorySentMessageRepository) OldestQueued(_ context.Context) (*model.SentMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if m := r.byMsg[id]; m.Status == model.StatusQueued {
			cp := cloneSentMessage(*m)
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemorySentMessageRepository) ListByCampaign(_ context.Context, ownerID, campaignID string) ([]model.SentMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []model.SentMessage{}
	for _, id := range r.order {
		m := r.byMsg[id]
		if m.OwnerID == ownerID && m.CampaignID != nil && *m.CampaignID == campaignID {
			out = append(out, cloneSentMessage(*m))
		}
	}
	return out, nil
}

func (r *MemorySentMessageRepository) CountByStatus(_ context.Context, ownerID, campaignID string) (map[model.DeliveryStatus]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := map[model.DeliveryStatus]int{
		model.StatusPending: 0,
		model.StatusQueued:  0,
		model.StatusSent:    0,
		model.StatusFailed:  0,
	}
	for _, m := range r.byMsg {
		if ownerID != "" && m.OwnerID != ownerID {
			continue
		}
		if campaignID != "" && (m.CampaignID == nil || *m.CampaignID != campaignID) {
			continue
		}
		stats[m.Status]++
	}
	return stats, nil
}

func (r *MemorySentMessageRepository) MarkOutcomes(_ context.Context, outcomes []model.Outcome) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	applied := []string{}
	for _, o := range outcomes {
		m, ok := r.byMsg[o.MessageID]
		if !ok || m.Status.IsTerminal() {
			continue
		}
		at := outcomeTime(o)
		m.Status = o.Status
		m.ErrorMessage = o.ErrorMessage
		if o.Status == model.StatusSent {
			m.SentAt = &at
			m.DeliveredAt = &at
		}
		m.UpdatedAt = time.Now().UTC()
		applied = append(applied, o.MessageID)
	}
	return applied, nil
}

func cloneSentMessage(m model.SentMessage) model.SentMessage {
	if m.Metadata != nil {
		meta := make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			meta[k] = v
		}
		m.Metadata = meta
	}
	return m
}

type MemoryCommunicationLogRepository struct {
	mu    sync.RWMutex
	byMsg map[string]*model.CommunicationLog
	order []string
}

func NewMemoryCommunicationLogRepository() *MemoryCommunicationLogRepository {
	return &MemoryCommunicationLogRepository{byMsg: map[string]*model.CommunicationLog{}}
}

func (r *MemoryCommunicationLogRepository) Create(_ context.Context, l *model.CommunicationLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byMsg[l.MessageID]; exists {
		return fmt.Errorf("insert communication log: %w: %s", ErrDuplicateMessageID, l.MessageID)
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	cp := *l
	r.order = append(r.order, l.MessageID)
	r.byMsg[l.MessageID] = &cp
	return nil
}

func (r *MemoryCommunicationLogRepository) GetByMessageID(_ context.Context, messageID string) (*model.CommunicationLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.byMsg[messageID]
	if !ok {
		return nil, appErrors.NewMessageNotFound(messageID)
	}
	cp := *l
	return &cp, nil
}

func (r *MemoryCommunicationLogRepository) ListByCampaign(_ context.Context, ownerID, campaignID string, offset, limit int) ([]model.CommunicationLog, int, error) {
	r.mu.RLock()
	all := []model.CommunicationLog{}
	for _, id := range r.order {
		l := r.byMsg[id]
		if l.OwnerID == ownerID && l.CampaignID != nil && *l.CampaignID == campaignID {
			all = append(all, *l)
		}
	}
	r.mu.RUnlock()
	return paginate(all, offset, limit), len(all), nil
}

func (r *MemoryCommunicationLogRepository) MarkOutcomes(_ context.Context, outcomes []model.Outcome) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	applied := []string{}
	for _, o := range outcomes {
		l, ok := r.byMsg[o.MessageID]
		if !ok || l.Status.IsTerminal() {
			continue
		}
		at := outcomeTime(o)
		l.Status = o.Status
		l.ErrorMessage = o.ErrorMessage
		if o.Status == model.StatusSent {
			l.SentAt = &at
		}
		l.UpdatedAt = time.Now().UTC()
		applied = append(applied, o.MessageID)
	}
	return applied, nil
}

func outcomeTime(o model.Outcome) time.Time {
	if o.At.IsZero() {
		return time.Now().UTC()
	}
	return o.At
}

var (
	_ SentMessageRepositoryInterface      = (*MemorySentMessageRepository)(nil)
	_ CommunicationLogRepositoryInterface = (*MemoryCommunicationLogRepository)(nil)
)
