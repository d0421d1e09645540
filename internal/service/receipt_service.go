package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/delivery"
	appErrors "github.com/Rakesh-Kumar-Talam/CRM-backend/internal/errors"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/repository"
)

// ReceiptService applies vendor delivery receipts.
type ReceiptService struct {
	Messages repository.SentMessageRepositoryInterface
	Recorder *delivery.Recorder
	Logger   *zap.Logger
	Now      func() time.Time
}

func NewReceiptService(messages repository.SentMessageRepositoryInterface, rec *delivery.Recorder, logger *zap.Logger) *ReceiptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReceiptService{Messages: messages, Recorder: rec, Logger: logger, Now: time.Now}
}

// Apply records r against its message. A receipt for a message that is
// already SENT or FAILED returns false and no error.
func (s *ReceiptService) Apply(ctx context.Context, r model.Receipt) (bool, error) {
	r.MessageID = strings.TrimSpace(r.MessageID)
	var violations []string
	if r.MessageID == "" {
		violations = append(violations, "messageId: must not be empty")
	}
	if !r.Status.IsTerminal() {
		violations = append(violations, "status: must be SENT or FAILED")
	}
	if len(violations) > 0 {
		return false, appErrors.NewValidation("invalid delivery receipt", violations...)
	}

	if _, err := s.Messages.GetByMessageID(ctx, r.MessageID); err != nil {
		return false, err
	}
	if r.DeliveredAt.IsZero() {
		r.DeliveredAt = s.Now()
	}
	if r.Status == model.StatusFailed && r.ErrorMessage == "" {
		r.ErrorMessage = "Delivery failed"
	}

	applied, err := s.Recorder.Record(ctx, r.Outcome())
	if err != nil {
		return false, err
	}
	s.Logger.Debug("delivery receipt processed",
		zap.String("message_id", r.MessageID),
		zap.String("status", string(r.Status)),
		zap.Bool("applied", applied),
	)
	return applied, nil
}
