package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
)

var markOutcomes = []model.Outcome{
	{MessageID: "m1", Status: model.StatusSent, At: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
}

func TestTxOutcomeMarker_CommitsBothTables(t *testing.T) {
	db, mock := setupMockDB(t)
	marker := &TxOutcomeMarker{DB: db}

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE sent_messages AS m`).
		WillReturnRows(sqlmock.NewRows([]string{"message_id"}).AddRow("m1"))
	mock.ExpectQuery(`UPDATE communication_logs AS l`).
		WillReturnRows(sqlmock.NewRows([]string{"message_id"}).AddRow("m1"))
	mock.ExpectCommit()

	msgs, logs, err := marker.MarkOutcomes(context.Background(), markOutcomes)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, msgs)
	assert.Equal(t, []string{"m1"}, logs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxOutcomeMarker_RollsBackWhenLogUpdateFails(t *testing.T) {
	db, mock := setupMockDB(t)
	marker := &TxOutcomeMarker{DB: db}

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE sent_messages AS m`).
		WillReturnRows(sqlmock.NewRows([]string{"message_id"}).AddRow("m1"))
	mock.ExpectQuery(`UPDATE communication_logs AS l`).
		WillReturnError(errors.New("transient db error"))
	mock.ExpectRollback()

	msgs, logs, err := marker.MarkOutcomes(context.Background(), markOutcomes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark communication logs")
	assert.Nil(t, msgs)
	assert.Nil(t, logs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxOutcomeMarker_EmptyBatchSkipsTransaction(t *testing.T) {
	db, mock := setupMockDB(t)
	marker := &TxOutcomeMarker{DB: db}

	_, _, err := marker.MarkOutcomes(context.Background(), nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSentMessageRepository_CreateDuplicate(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &SentMessageRepository{DB: db}

	mock.ExpectExec(`INSERT INTO sent_messages`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.Create(context.Background(), &model.SentMessage{OwnerID: "o", MessageID: "m1", Status: model.StatusQueued})
	assert.ErrorIs(t, err, ErrDuplicateMessageID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
