package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction amounts are signed: negative is money flowing into the account,
// positive is money flowing out.
type Transaction struct {
	ID        int             `gorm:"primary_key" json:"id"`
	AccountId int             `gorm:"index:idx_txn_account_date,priority:1;not null" json:"account_id"`
	Account   *Account        `gorm:"foreignKey:AccountId" json:"account,omitempty"`
	Date      time.Time       `gorm:"type:date;index:idx_txn_account_date,priority:2;not null" json:"date"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Currency  string          `gorm:"size:3;not null" json:"currency"`
	Name      string          `gorm:"size:255" json:"name"`
	Notes     string          `gorm:"type:text" json:"notes"`
	Kind      TransactionKind `gorm:"size:20;not null;default:'standard';index" json:"kind"`
	Excluded  bool            `gorm:"not null;default:false" json:"excluded"`

	CategoryId *int      `gorm:"index" json:"category_id"`
	Category   *Category `gorm:"foreignKey:CategoryId" json:"category,omitempty"`
	MerchantId *int      `gorm:"index" json:"merchant_id"`
	Merchant   *Merchant `gorm:"foreignKey:MerchantId" json:"merchant,omitempty"`
	Tags       []Tag     `gorm:"many2many:transaction_tags" json:"tags,omitempty"`

	InstallmentCurrent *int `json:"installment_current"`
	InstallmentTotal   *int `json:"installment_total"`
	// OriginalPurchaseId points at the root of an installment series; nil on the root itself.
	OriginalPurchaseId *int `gorm:"index" json:"original_purchase_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t Transaction) IsInflow() bool {
	return t.Amount.IsNegative()
}

// IsInstallmentParent reports whether t roots an installment series.
func (t Transaction) IsInstallmentParent() bool {
	return t.OriginalPurchaseId == nil && t.InstallmentTotal != nil && *t.InstallmentTotal > 1
}

// SeriesRootId is the id shared by every member of t's installment series.
func (t Transaction) SeriesRootId() int {
	if t.OriginalPurchaseId != nil {
		return *t.OriginalPurchaseId
	}
	return t.ID
}

type TransactionTag struct {
	TransactionId int       `gorm:"primaryKey" json:"transaction_id"`
	TagId         int       `gorm:"primaryKey;index" json:"tag_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
