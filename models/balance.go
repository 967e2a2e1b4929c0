package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the materialized end-of-day snapshot of one account in one currency.
// Rows are owned by the balance materializer and rebuilt wholesale on every sync.
type Balance struct {
	ID        int       `gorm:"primary_key" json:"id"`
	AccountId int       `gorm:"uniqueIndex:idx_balance_account_date_currency,priority:1;not null" json:"account_id"`
	Date      time.Time `gorm:"type:date;uniqueIndex:idx_balance_account_date_currency,priority:2;not null" json:"date"`
	Currency  string    `gorm:"size:3;uniqueIndex:idx_balance_account_date_currency,priority:3;not null" json:"currency"`

	Balance     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	CashBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cash_balance"`

	StartCashBalance    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"start_cash_balance"`
	StartNonCashBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"start_non_cash_balance"`

	CashInflows     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cash_inflows"`
	CashOutflows    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cash_outflows"`
	NonCashInflows  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"non_cash_inflows"`
	NonCashOutflows decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"non_cash_outflows"`
	NetMarketFlows  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"net_market_flows"`

	CashAdjustments    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cash_adjustments"`
	NonCashAdjustments decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"non_cash_adjustments"`

	FlowsFactor int `gorm:"not null;default:1" json:"flows_factor"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b Balance) factor() decimal.Decimal {
	return decimal.NewFromInt(int64(b.FlowsFactor))
}

func (b Balance) StartBalance() decimal.Decimal {
	return b.StartCashBalance.Add(b.StartNonCashBalance)
}

func (b Balance) NetCashFlows() decimal.Decimal {
	return b.CashInflows.Sub(b.CashOutflows).Mul(b.factor())
}

func (b Balance) NetNonCashFlows() decimal.Decimal {
	return b.NonCashInflows.Sub(b.NonCashOutflows).Mul(b.factor())
}

func (b Balance) EndCashBalance() decimal.Decimal {
	return b.StartCashBalance.Add(b.NetCashFlows()).Add(b.CashAdjustments)
}

func (b Balance) EndNonCashBalance() decimal.Decimal {
	return b.StartNonCashBalance.Add(b.NetNonCashFlows()).Add(b.NetMarketFlows).Add(b.NonCashAdjustments)
}

func (b Balance) EndBalance() decimal.Decimal {
	return b.EndCashBalance().Add(b.EndNonCashBalance())
}
