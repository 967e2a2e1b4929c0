package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Security struct {
	ID       int    `gorm:"primary_key" json:"id"`
	Ticker   string `gorm:"size:20;uniqueIndex:idx_security_ticker_exchange,priority:1;not null" json:"ticker"`
	Exchange string `gorm:"size:20;uniqueIndex:idx_security_ticker_exchange,priority:2" json:"exchange"`
	Name     string `gorm:"size:255" json:"name"`
	Currency string `gorm:"size:3;not null" json:"currency"`
}

// SecurityPrice rows are written by the external price feed and only read here.
type SecurityPrice struct {
	ID         int             `gorm:"primary_key" json:"id"`
	SecurityId int             `gorm:"uniqueIndex:idx_security_price_date,priority:1;not null" json:"security_id"`
	Date       time.Time       `gorm:"type:date;uniqueIndex:idx_security_price_date,priority:2;not null" json:"date"`
	Price      decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"price"`
	Currency   string          `gorm:"size:3;not null" json:"currency"`
}

// Holding is a position snapshot of one security in one account on one date.
type Holding struct {
	ID         int             `gorm:"primary_key" json:"id"`
	AccountId  int             `gorm:"uniqueIndex:idx_holding_account_security_date,priority:1;not null" json:"account_id"`
	SecurityId int             `gorm:"uniqueIndex:idx_holding_account_security_date,priority:2;not null" json:"security_id"`
	Date       time.Time       `gorm:"type:date;uniqueIndex:idx_holding_account_security_date,priority:3;not null" json:"date"`
	Qty        decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"qty"`
	Price      decimal.Decimal `gorm:"type:decimal(20,6);default:0" json:"price"`
	// Amount is the position value; zero means "price it from SecurityPrice".
	Amount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Currency  string          `gorm:"size:3;not null" json:"currency"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// Trade qty is positive for buys and negative for sells; Amount = Qty * Price.
type Trade struct {
	ID         int             `gorm:"primary_key" json:"id"`
	AccountId  int             `gorm:"index:idx_trade_account_date,priority:1;not null" json:"account_id"`
	SecurityId int             `gorm:"index;not null" json:"security_id"`
	Date       time.Time       `gorm:"type:date;index:idx_trade_account_date,priority:2;not null" json:"date"`
	Qty        decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"qty"`
	Price      decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"price"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Currency   string          `gorm:"size:3;not null" json:"currency"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (t *Trade) BeforeSave(tx *gorm.DB) error {
	t.Amount = t.Qty.Mul(t.Price).Round(4)
	return nil
}
