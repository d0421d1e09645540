// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "DRAFT"
	CampaignActive    CampaignStatus = "ACTIVE"
	CampaignPaused    CampaignStatus = "PAUSED"
	CampaignCompleted CampaignStatus = "COMPLETED"
	CampaignCancelled CampaignStatus = "CANCELLED"
)

// PersonalizationContext carries the campaign-wide placeholder values
// ({discount}, {storeName}, {couponCode}) and the fallback customer name.
type PersonalizationContext struct {
	FallbackName string            `json:"fallback_name,omitempty"`
	Discount     string            `json:"discount,omitempty"`
	StoreName    string            `json:"store_name,omitempty"`
	CouponCode   string            `json:"coupon_code,omitempty"`
	Signature    string            `json:"signature,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// CustomData flattens the context into placeholder name -> value.
func (p PersonalizationContext) CustomData() map[string]string {
	data := make(map[string]string, len(p.Extra)+3)
	for k, v := range p.Extra {
		data[k] = v
	}
	if p.Discount != "" {
		data["discount"] = p.Discount
	}
	if p.StoreName != "" {
		data["storeName"] = p.StoreName
	}
	if p.CouponCode != "" {
		data["couponCode"] = p.CouponCode
	}
	return data
}

type Campaign struct {
	ID          string                 `db:"id" json:"id"`
	OwnerID     string                 `db:"owner_id" json:"owner_id"`
	SegmentID   string                 `db:"segment_id" json:"segment_id"`
	Name        string                 `db:"name" json:"name"`
	Subject     string                 `db:"subject" json:"subject"`
	Message     string                 `db:"message" json:"message"`
	Status      CampaignStatus         `db:"status" json:"status"`
	Context     PersonalizationContext `db:"context" json:"context"`
	CreatedAt   time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time             `db:"updated_at" json:"updated_at,omitempty"`
	CompletedAt *time.Time             `db:"completed_at" json:"completed_at,omitempty"`
}
