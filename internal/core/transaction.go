package core

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format for transaction dates.
const DateLayout = "2006-01-02"

// Transaction is a single ledger entry.
//
// The partial unique index on (date, description) only covers rows with
// deleted = false, so a soft-deleted record never blocks a new one.
type Transaction struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Date        time.Time       `gorm:"type:date;not null;uniqueIndex:idx_transactions_active_key,priority:1,where:deleted = false" json:"date"`
	Description string          `gorm:"type:text;not null;uniqueIndex:idx_transactions_active_key,priority:2,where:deleted = false" json:"description"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Currency    string          `gorm:"type:text;not null" json:"currency"`
	Deleted     bool            `gorm:"not null;default:false;index" json:"deleted"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// TableName pins the table name independent of GORM's naming strategy.
func (Transaction) TableName() string {
	return "transactions"
}

// MarshalJSON renders Date as YYYY-MM-DD.
func (t Transaction) MarshalJSON() ([]byte, error) {
	type plain Transaction
	return json.Marshal(struct {
		plain
		Date string `json:"date"`
	}{
		plain: plain(t),
		Date:  t.Date.UTC().Format(DateLayout),
	})
}

// Key returns the duplicate-detection key of the record.
func (t *Transaction) Key() Key {
	return NewKey(t.Date, t.Description)
}

// Key identifies a record for duplicate detection: no two non-deleted
// records share one.
type Key struct {
	Date        string
	Description string
}

// NewKey builds a Key with the date normalized to UTC.
func NewKey(date time.Time, description string) Key {
	return Key{Date: date.UTC().Format(DateLayout), Description: description}
}

// RowError describes a CSV row that was not imported.
type RowError struct {
	Line   int      `json:"line"`
	Reason string   `json:"reason"`
	Data   []string `json:"data"`
}

// ImportResult summarizes a CSV import.
type ImportResult struct {
	Message       string        `json:"message"`
	Transactions  []Transaction `json:"transactions"`
	InvalidRows   []RowError    `json:"invalidRows"`
	DuplicateRows []RowError    `json:"duplicateRows"`
}
