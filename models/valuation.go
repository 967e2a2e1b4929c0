package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Valuation is a user-confirmed total balance for an account on a date.
type Valuation struct {
	ID        int             `gorm:"primary_key" json:"id"`
	AccountId int             `gorm:"uniqueIndex:idx_valuation_account_date_kind,priority:1;not null" json:"account_id"`
	Date      time.Time       `gorm:"type:date;uniqueIndex:idx_valuation_account_date_kind,priority:2;not null" json:"date"`
	Kind      ValuationKind   `gorm:"size:20;uniqueIndex:idx_valuation_account_date_kind,priority:3;not null;default:'reconciliation'" json:"kind"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Currency  string          `gorm:"size:3;not null" json:"currency"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
