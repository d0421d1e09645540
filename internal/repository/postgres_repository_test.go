package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/Rakesh-Kumar-Talam/CRM-backend/internal/errors"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var customerCols = []string{"id", "owner_id", "name", "email", "phone", "spend", "visits", "last_active", "created_at", "updated_at"}

func TestCustomerRepository_GetByID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &CustomerRepository{DB: db}
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM customers WHERE owner_id = \$1 AND id = \$2`).
		WithArgs("owner-1", "cust-1").
		WillReturnRows(sqlmock.NewRows(customerCols).
			AddRow("cust-1", "owner-1", "Ann", "ann@example.com", nil, 1500.0, 3, now, now, now))

	c, err := repo.GetByID(context.Background(), "owner-1", "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", c.Name)
	assert.Equal(t, 1500.0, c.Spend)
	assert.Nil(t, c.Phone)
	require.NotNil(t, c.LastActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerRepository_GetByID_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &CustomerRepository{DB: db}

	mock.ExpectQuery(`SELECT .* FROM customers`).
		WithArgs("owner-1", "missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "owner-1", "missing")
	assert.True(t, appErrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerRepository_GetByIDs_UsesArray(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &CustomerRepository{DB: db}
	now := time.Now().UTC()
	ids := []string{"b", "a"}

	mock.ExpectQuery(`id = ANY\(\$2\)`).
		WithArgs("owner-1", pq.Array(ids)).
		WillReturnRows(sqlmock.NewRows(customerCols).
			AddRow("b", "owner-1", "B", "b@example.com", "+1", 10.0, 1, nil, now, now).
			AddRow("a", "owner-1", "A", "a@example.com", nil, 20.0, 2, nil, now, now))

	out, err := repo.GetByIDs(context.Background(), "owner-1", ids)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ID)
	require.NotNil(t, out[0].Phone)
	assert.Equal(t, "+1", *out[0].Phone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerRepository_Delete_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &CustomerRepository{DB: db}

	mock.ExpectExec(`DELETE FROM customers`).
		WithArgs("owner-1", "cust-x").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "owner-1", "cust-x")
	assert.True(t, appErrors.IsNotFound(err))
}

func TestSegmentRepository_SaveSnapshot(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &SegmentRepository{DB: db}
	at := time.Now().UTC()
	ids := []string{"c1", "c2"}

	mock.ExpectExec(`UPDATE segments\s+SET customer_ids=\$1, customer_count=\$2`).
		WithArgs(pq.Array(ids), 2, at, "owner-1", "seg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SaveSnapshot(context.Background(), "owner-1", "seg-1", ids, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSegmentRepository_GetByID_DecodesRules(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &SegmentRepository{DB: db}
	now := time.Now().UTC()

	cols := []string{"id", "owner_id", "name", "description", "rules", "customer_ids", "customer_count", "last_populated_at", "created_at", "updated_at"}
	mock.ExpectQuery(`SELECT .* FROM segments`).
		WithArgs("owner-1", "seg-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("seg-1", "owner-1", "Big spenders", "", []byte(`{"and":[{"field":"spend","op":">","value":1000}]}`),
				[]byte(`{c1,c2}`), 2, now, now, now))

	s, err := repo.GetByID(context.Background(), "owner-1", "seg-1")
	require.NoError(t, err)
	require.Len(t, s.Rules.And, 1)
	assert.Equal(t, model.FieldSpend, s.Rules.And[0].Field)
	assert.Equal(t, []string{"c1", "c2"}, s.CustomerIDs)
	assert.Equal(t, 2, s.CustomerCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepository_UpdateStatus(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &CampaignRepository{DB: db}

	mock.ExpectExec(`UPDATE campaigns`).
		WithArgs("COMPLETED", sqlmock.AnyArg(), "owner-1", "camp-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE campaigns`).
		WithArgs("CANCELLED", sqlmock.AnyArg(), "owner-1", "camp-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.UpdateStatus(context.Background(), "owner-1", "camp-1", model.CampaignCompleted))
	err := repo.UpdateStatus(context.Background(), "owner-1", "camp-2", model.CampaignCancelled)
	assert.True(t, appErrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSentMessageRepository_MarkOutcomes(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &SentMessageRepository{DB: db}
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	outcomes := []model.Outcome{
		{MessageID: "m1", Status: model.StatusSent, At: at},
		{MessageID: "m2", Status: model.StatusFailed, ErrorMessage: "Recipient mailbox full", At: at},
	}

	mock.ExpectQuery(`UPDATE sent_messages AS m .* unnest\(\$1::text\[\], \$2::text\[\], \$3::text\[\], \$4::timestamptz\[\]\)`).
		WithArgs(
			pq.Array([]string{"m1", "m2"}),
			pq.Array([]string{"SENT", "FAILED"}),
			pq.Array([]string{"", "Recipient mailbox full"}),
			pq.Array([]string{"2025-01-02T03:04:05Z", "2025-01-02T03:04:05Z"}),
		).
		WillReturnRows(sqlmock.NewRows([]string{"message_id"}).AddRow("m1"))

	applied, err := repo.MarkOutcomes(context.Background(), outcomes)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSentMessageRepository_CountByStatus(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &SentMessageRepository{DB: db}

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM sent_messages WHERE 1=1 AND owner_id=\$1 AND campaign_id=\$2 GROUP BY status`).
		WithArgs("owner-1", "camp-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("SENT", 9).
			AddRow("FAILED", 1))

	stats, err := repo.CountByStatus(context.Background(), "owner-1", "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 9, stats[model.StatusSent])
	assert.Equal(t, 1, stats[model.StatusFailed])
	assert.Equal(t, 0, stats[model.StatusQueued])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSentMessageRepository_OldestQueued_Empty(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &SentMessageRepository{DB: db}

	mock.ExpectQuery(`WHERE status='QUEUED' ORDER BY created_at, id LIMIT 1`).
		WillReturnError(sql.ErrNoRows)

	m, err := repo.OldestQueued(context.Background())
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestOrderRepository_SumAllByCustomer(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := &OrderRepository{DB: db}

	mock.ExpectQuery(`SELECT customer_id, SUM\(amount\) FROM orders`).
		WithArgs("owner-1").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "sum"}).
			AddRow("c1", 120.5).
			AddRow("c2", 30.0))

	sums, err := repo.SumAllByCustomer(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"c1": 120.5, "c2": 30.0}, sums)
}
