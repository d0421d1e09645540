// internal/model/delivery.go
package model

import "time"

type DeliveryStatus string

const (
	StatusPending DeliveryStatus = "PENDING"
	StatusQueued  DeliveryStatus = "QUEUED"
	StatusSent    DeliveryStatus = "SENT"
	StatusFailed  DeliveryStatus = "FAILED"
)

// IsTerminal reports whether no further transition is allowed.
func (s DeliveryStatus) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}

// CommunicationLog is one row per (campaign, customer) delivery attempt.
type CommunicationLog struct {
	ID           string         `db:"id" json:"id"`
	OwnerID      string         `db:"owner_id" json:"owner_id"`
	CampaignID   *string        `db:"campaign_id" json:"campaign_id,omitempty"`
	CustomerID   *string        `db:"customer_id" json:"customer_id,omitempty"`
	MessageID    string         `db:"message_id" json:"message_id"`
	Status       DeliveryStatus `db:"status" json:"status"`
	Message      string         `db:"message" json:"message"`
	ErrorMessage string         `db:"error_message" json:"error_message,omitempty"`
	SentAt       *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// SentMessage is the system of record for outbound attempts and statistics.
type SentMessage struct {
	ID           string            `db:"id" json:"id"`
	OwnerID      string            `db:"owner_id" json:"owner_id"`
	CampaignID   *string           `db:"campaign_id" json:"campaign_id,omitempty"`
	CustomerID   *string           `db:"customer_id" json:"customer_id,omitempty"`
	MessageID    string            `db:"message_id" json:"message_id"`
	Recipient    string            `db:"recipient" json:"recipient"`
	Subject      string            `db:"subject" json:"subject"`
	Text         string            `db:"text" json:"text"`
	HTML         string            `db:"html" json:"html"`
	Status       DeliveryStatus    `db:"status" json:"status"`
	ErrorMessage string            `db:"error_message" json:"error_message,omitempty"`
	Metadata     map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	SentAt       *time.Time        `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt  *time.Time        `db:"delivered_at" json:"delivered_at,omitempty"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

// Outcome is a terminal delivery result keyed by message id.
type Outcome struct {
	MessageID    string         `json:"message_id"`
	Status       DeliveryStatus `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	At           time.Time      `json:"at"`
}

// CampaignStats are the per-campaign counters exposed by the statistics surface.
type CampaignStats struct {
	Total       int     `json:"total"`
	Sent        int     `json:"sent"`
	Failed      int     `json:"failed"`
	Pending     int     `json:"pending"`
	Queued      int     `json:"queued"`
	SuccessRate float64 `json:"success_rate"`
	FailureRate float64 `json:"failure_rate"`
}

func StrPtr(s string) *string { return &s }

// Receipt is the vendor's asynchronous terminal report for one message.
type Receipt struct {
	MessageID    string         `json:"messageId"`
	Status       DeliveryStatus `json:"status"`
	DeliveredAt  time.Time      `json:"deliveredAt"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

func (r Receipt) Outcome() Outcome {
	return Outcome{MessageID: r.MessageID, Status: r.Status, ErrorMessage: r.ErrorMessage, At: r.DeliveredAt}
}
