package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// OutcomeMarker applies outcomes to sent messages and communication logs as
// one unit: either both tables transition or neither does.
type OutcomeMarker interface {
	MarkOutcomes(ctx context.Context, outcomes []model.Outcome) (messages, logs []string, err error)
}

// TxOutcomeMarker runs both updates inside one Postgres transaction.
type TxOutcomeMarker struct {
	DB *sql.DB
}

func (m *TxOutcomeMarker) MarkOutcomes(ctx context.Context, outcomes []model.Outcome) (messages, logs []string, err error) {
	if len(outcomes) == 0 {
		return nil, nil, nil
	}
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin outcome tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if messages, err = markSentMessages(ctx, tx, outcomes); err != nil {
		return nil, nil, fmt.Errorf("mark sent messages: %w", err)
	}
	if logs, err = markCommLogs(ctx, tx, outcomes); err != nil {
		return nil, nil, fmt.Errorf("mark communication logs: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit outcome tx: %w", err)
	}
	return messages, logs, nil
}

var _ OutcomeMarker = (*TxOutcomeMarker)(nil)

// ErrDuplicateMessageID is returned when a delivery record with the same
// message id already exists.
var ErrDuplicateMessageID = errors.New("message id already exists")

// duplicateMessage maps a Postgres unique violation onto ErrDuplicateMessageID.
func duplicateMessage(err error, messageID string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicateMessageID, messageID)
	}
	return err
}
