package conversion

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusReversed = "reversed"
)

// Conversion is one tracked sale. Only pending conversions change status:
// to approved by distribution or to reversed by an operator.
type Conversion struct {
	ID              string          `gorm:"column:id;primaryKey" json:"id"`
	Code            string          `gorm:"column:code;index" json:"code"`
	AffiliateID     string          `gorm:"column:affiliate_id;not null;index" json:"affiliate_id"`
	ExternalOrderID *string         `gorm:"column:external_order_id;uniqueIndex" json:"external_order_id,omitempty"`
	Amount          decimal.Decimal `gorm:"column:amount;type:decimal(20,6);not null" json:"amount"`
	Status          string          `gorm:"column:status;not null;index" json:"status"`
	Reason          string          `gorm:"column:reason" json:"reason,omitempty"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Conversion) TableName() string { return "conversions" }

type SubmitRequest struct {
	AffiliateCode   string
	Amount          decimal.Decimal
	ExternalOrderID *string
}

// Share is one ledger credit written by a distribution run.
type Share struct {
	AccountID string          `json:"account_id"`
	Tier      int             `json:"tier"`
	Amount    decimal.Decimal `json:"amount"`
}

// DistributionResult lists the shares written by one run, tier ascending.
type DistributionResult struct {
	ConversionID string  `json:"conversion_id"`
	Shares       []Share `json:"shares"`
}

// Total is the sum of all shares.
func (r DistributionResult) Total() decimal.Decimal {
	total := decimal.Zero
	for _, s := range r.Shares {
		total = total.Add(s.Amount)
	}
	return total
}

type ListParams struct {
	AffiliateID string `form:"affiliate_id"`
	Status      string `form:"status" binding:"omitempty,oneof=pending approved reversed"`
	Cursor      string `form:"cursor"`
	Limit       int    `form:"limit" binding:"omitempty,gte=1,lte=250"`
}
