// Package export renders campaign delivery data as xlsx workbooks.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
)

const (
	MessagesSheet = "Messages"
	SummarySheet  = "Summary"
	timeLayout    = "2006-01-02 15:04:05"
)

// MessagesHeader is the column order of the Messages sheet.
var MessagesHeader = []string{
	"Message ID",
	"Customer ID",
	"Recipient",
	"Subject",
	"Status",
	"Error",
	"Created At",
	"Sent At",
}

var messageColumnWidths = []float64{48, 38, 30, 30, 10, 32, 20, 20}

// CampaignMessagesWorkbook writes one row per sent message plus a summary
// sheet with the status counts.
func CampaignMessagesWorkbook(campaign *model.Campaign, messages []model.SentMessage) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(MessagesSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeRow(f, MessagesSheet, 1, toAny(MessagesHeader)); err != nil {
		f.Close()
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(MessagesHeader), 1)
	if err := f.SetCellStyle(MessagesSheet, "A1", last, headerStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	for i, w := range messageColumnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(MessagesSheet, col, col, w); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	counts := map[model.DeliveryStatus]int{}
	for i, m := range messages {
		counts[m.Status]++
		row := []any{
			m.MessageID,
			deref(m.CustomerID),
			m.Recipient,
			m.Subject,
			string(m.Status),
			m.ErrorMessage,
			m.CreatedAt.UTC().Format(timeLayout),
			formatTime(m.SentAt),
		}
		if err := writeRow(f, MessagesSheet, i+2, row); err != nil {
			f.Close()
			return nil, err
		}
	}

	if err := f.SetPanes(MessagesSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	if err := writeSummary(f, campaign, len(messages), counts, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, c *model.Campaign, total int, counts map[model.DeliveryStatus]int, headerStyle int) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	rows := [][]any{
		{"Field", "Value"},
		{"Campaign ID", c.ID},
		{"Name", c.Name},
		{"Status", string(c.Status)},
		{"Created At", c.CreatedAt.UTC().Format(timeLayout)},
		{"Total", total},
		{"Sent", counts[model.StatusSent]},
		{"Failed", counts[model.StatusFailed]},
		{"Pending", counts[model.StatusPending]},
		{"Queued", counts[model.StatusQueued]},
	}
	for i, r := range rows {
		if err := writeRow(f, SummarySheet, i+1, r); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(SummarySheet, "A1", "B1", headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	return f.SetColWidth(SummarySheet, "A", "B", 24)
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
