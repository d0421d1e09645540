package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
)

func TestCampaignMessagesWorkbook(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	sent := created.Add(3 * time.Second)
	campaign := &model.Campaign{ID: "camp-1", Name: "Spring sale", Status: model.CampaignCompleted, CreatedAt: created}
	messages := []model.SentMessage{
		{MessageID: "msg_1", CustomerID: model.StrPtr("c1"), Recipient: "a@example.com", Subject: "Hi", Status: model.StatusSent, CreatedAt: created, SentAt: &sent},
		{MessageID: "msg_2", CustomerID: model.StrPtr("c2"), Recipient: "b@example.com", Subject: "Hi", Status: model.StatusFailed, ErrorMessage: "Recipient mailbox full", CreatedAt: created},
		{MessageID: "msg_3", Recipient: "c@example.com", Status: model.StatusQueued, CreatedAt: created},
	}

	data, err := CampaignMessagesWorkbook(campaign, messages)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{MessagesSheet, SummarySheet}, f.GetSheetList())

	rows, err := f.GetRows(MessagesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, MessagesHeader, rows[0])
	assert.Equal(t, "msg_1", rows[1][0])
	assert.Equal(t, "2025-03-01 10:00:03", rows[1][7])
	assert.Equal(t, "Recipient mailbox full", rows[2][5])
	assert.Equal(t, "", rows[3][1])

	failed, err := f.GetCellValue(SummarySheet, "B8")
	require.NoError(t, err)
	assert.Equal(t, "1", failed)
	total, err := f.GetCellValue(SummarySheet, "B6")
	require.NoError(t, err)
	assert.Equal(t, "3", total)
}

func TestCampaignMessagesWorkbook_Empty(t *testing.T) {
	data, err := CampaignMessagesWorkbook(&model.Campaign{ID: "c"}, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(MessagesSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
