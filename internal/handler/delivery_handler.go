package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
)

type ReceiptApplier interface {
	Apply(ctx context.Context, r model.Receipt) (bool, error)
}

type QueueStats interface {
	GetStats(ctx context.Context, ownerID string) (map[string]int, error)
}

// DeliveryHandler serves the vendor receipt webhook and queue statistics.
type DeliveryHandler struct {
	Receipts ReceiptApplier
	Queue    QueueStats
	Logger   *zap.Logger
}

// ReceiptHandler accepts {messageId, status, deliveredAt, errorMessage}. A
// repeat receipt for a finished message answers 200 with applied=false.
func (h *DeliveryHandler) ReceiptHandler(w http.ResponseWriter, r *http.Request) {
	var receipt model.Receipt
	if err := DecodeJSON(r, &receipt); err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	applied, err := h.Receipts.Apply(r.Context(), receipt)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"messageId": receipt.MessageID,
		"applied":   applied,
	})
}

func (h *DeliveryHandler) QueueStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Queue.GetStats(r.Context(), OwnerID(r.Context()))
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"stats": stats})
}
