package account

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Account is one affiliate. Balance is a cache of the sum of its completed
// ledger entries and is only written by the ledger inside the same
// transaction as the entry. Accounts are never deleted.
type Account struct {
	ID         string          `gorm:"column:id;primaryKey" json:"id"`
	Code       string          `gorm:"column:code;uniqueIndex;not null" json:"code"`
	Name       string          `gorm:"column:name" json:"name"`
	Balance    decimal.Decimal `gorm:"column:balance;type:decimal(20,6);not null;default:0" json:"balance"`
	ReferrerID *string         `gorm:"column:referrer_id;index" json:"referrer_id,omitempty"`
	Status     string          `gorm:"column:status;not null;default:active" json:"status"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

func (a *Account) IsActive() bool { return a != nil && a.Status == StatusActive }

func (a *Account) HasReferrer() bool { return a != nil && a.ReferrerID != nil && *a.ReferrerID != "" }

type CreateRequest struct {
	Name         string `json:"name" binding:"required,max=120"`
	ReferrerCode string `json:"referrer_code" binding:"omitempty,max=64"`
}
