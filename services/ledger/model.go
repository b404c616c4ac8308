package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"smallbiznis-affiliate/services/internal/money"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	TypeCommission = "commission"
	TypeBonus      = "bonus"
	TypeWithdrawal = "withdrawal"
	TypeAdjustment = "adjustment"

	StatusCompleted = "completed"

	GenesisHash = "GENESIS"
)

// LedgerEntry is one immutable balance movement. Entries of an account form a
// hash chain ordered by Sequence.
type LedgerEntry struct {
	ID           string          `gorm:"column:id;primaryKey" json:"id"`
	AccountID    string          `gorm:"column:account_id;not null;uniqueIndex:idx_ledger_account_sequence,priority:1" json:"account_id"`
	Sequence     int64           `gorm:"column:sequence;not null;uniqueIndex:idx_ledger_account_sequence,priority:2" json:"sequence"`
	ConversionID *string         `gorm:"column:conversion_id;index" json:"conversion_id,omitempty"`
	Tier         int             `gorm:"column:tier;not null;default:0" json:"tier"`
	Type         string          `gorm:"column:type;not null" json:"type"`
	Status       string          `gorm:"column:status;not null" json:"status"`
	Amount       decimal.Decimal `gorm:"column:amount;type:decimal(20,6);not null" json:"amount"`
	ReferenceID  *string         `gorm:"column:reference_id;uniqueIndex" json:"reference_id,omitempty"`
	Description  string          `gorm:"column:description" json:"description,omitempty"`
	Metadata     datatypes.JSON  `gorm:"column:metadata" json:"metadata,omitempty"`
	PreviousHash string          `gorm:"column:previous_hash;not null" json:"previous_hash"`
	Hash         string          `gorm:"column:hash;not null" json:"hash"`
	CreatedAt    time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// EntryParams describes an entry to append. Amount is signed.
type EntryParams struct {
	AccountID    string
	ConversionID *string
	Tier         int
	Type         string
	Amount       decimal.Decimal
	ReferenceID  *string
	Description  string
	Metadata     map[string]any
}

type ReconcileResult struct {
	AccountID  string          `json:"account_id"`
	Cached     decimal.Decimal `json:"cached_balance"`
	Computed   decimal.Decimal `json:"computed_balance"`
	Entries    int             `json:"entries"`
	Consistent bool            `json:"consistent"`
}

func validType(t string) bool {
	switch t {
	case TypeCommission, TypeBonus, TypeWithdrawal, TypeAdjustment:
		return true
	}
	return false
}

func (m *LedgerEntry) HashFields() map[string]string {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	return map[string]string{
		"id":            m.ID,
		"account_id":    m.AccountID,
		"sequence":      fmt.Sprintf("%d", m.Sequence),
		"conversion_id": deref(m.ConversionID),
		"tier":          fmt.Sprintf("%d", m.Tier),
		"type":          m.Type,
		"status":        m.Status,
		"amount":        m.Amount.Round(money.Scale).String(),
		"reference_id":  deref(m.ReferenceID),
		"description":   m.Description,
		"created_at":    m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash": m.PreviousHash,
	}
}

func (m *LedgerEntry) GenerateHash() string {
	fields := m.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

// entryTime is the creation time stored with an entry. It is cut to
// milliseconds so the hash survives the round trip through every supported
// database.
func entryTime() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// LoginBonusReference is the reference id of the login bonus of accountID for
// the calendar day of day (UTC).
func LoginBonusReference(accountID string, day time.Time) string {
	return fmt.Sprintf("login-bonus:%s:%s", accountID, day.UTC().Format("2006-01-02"))
}
