package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate converts one unit of FromCurrency into Rate units of ToCurrency on Date.
type ExchangeRate struct {
	ID           int             `gorm:"primary_key" json:"id"`
	FromCurrency string          `gorm:"size:3;uniqueIndex:idx_exchange_rate_pair_date,priority:1;not null" json:"from_currency"`
	ToCurrency   string          `gorm:"size:3;uniqueIndex:idx_exchange_rate_pair_date,priority:2;not null" json:"to_currency"`
	Date         time.Time       `gorm:"type:date;uniqueIndex:idx_exchange_rate_pair_date,priority:3;not null" json:"date"`
	Rate         decimal.Decimal `gorm:"type:decimal(20,10);not null" json:"rate"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
