package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Account struct {
	ID              int                   `gorm:"primary_key" json:"id"`
	UserId          int                   `gorm:"index:idx_account_user_status,priority:1;not null" json:"user_id"`
	Name            string                `gorm:"size:100;not null" json:"name"`
	AccountableType AccountableType       `gorm:"size:20;not null;index" json:"accountable_type"`
	Classification  AccountClassification `gorm:"size:10;not null" json:"classification"`
	Status          AccountStatus         `gorm:"size:20;not null;default:'active';index:idx_account_user_status,priority:2" json:"status"`
	Currency        string                `gorm:"size:3;not null;default:'BRL'" json:"currency"`
	// OpeningBalance is the user-entered balance at creation. Recalculation falls back to it
	// when no reconciliation valuation exists.
	OpeningBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"opening_balance"`
	// Balance and CashBalance mirror the latest materialized Balance row.
	Balance     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	CashBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cash_balance"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *Account) BeforeSave(tx *gorm.DB) error {
	a.Classification = a.AccountableType.Classification()
	return nil
}

func (a Account) IsLiability() bool {
	return a.AccountableType.Classification() == AccountClassificationLiability
}

type NewAccount struct {
	Name            string          `json:"name" validate:"required,max=100"`
	AccountableType AccountableType `json:"accountable_type" validate:"required"`
	Currency        string          `json:"currency" validate:"omitempty,iso4217"`
	OpeningBalance  decimal.Decimal `json:"opening_balance"`
}

func (input *NewAccount) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.AccountableType.IsValid() {
		return fmt.Errorf("%w: accountable type", utils.ErrInvalidInput)
	}
	return nil
}

// CreateAccount creates an active account owned by the context user.
// Balance fields start at the opening balance until the first sync.
func CreateAccount(ctx context.Context, input *NewAccount) (*Account, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, errors.New("user id is required")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	currency := strings.ToUpper(input.Currency)
	if currency == "" {
		currency = config.DefaultCurrency()
	}
	account := Account{
		UserId:          userId,
		Name:            input.Name,
		AccountableType: input.AccountableType,
		Status:          AccountStatusActive,
		Currency:        currency,
		OpeningBalance:  input.OpeningBalance,
		Balance:         input.OpeningBalance,
	}
	if input.AccountableType.BalanceType() == BalanceTypeCash {
		account.CashBalance = input.OpeningBalance
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// UpdateAccountStatus moves an account through its soft lifecycle; accounts are never hard-deleted.
func UpdateAccountStatus(ctx context.Context, id int, status AccountStatus) error {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return errors.New("user id is required")
	}
	res := config.GetDB().WithContext(ctx).Model(&Account{}).
		Where("id = ? AND user_id = ?", id, userId).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

func GetAccount(ctx context.Context, tx *gorm.DB, id int) (*Account, error) {
	var account Account
	if err := tx.WithContext(ctx).Where("id = ?", id).Take(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &account, nil
}

func GetActiveAccounts(ctx context.Context, tx *gorm.DB, userId int) ([]*Account, error) {
	var accounts []*Account
	err := tx.WithContext(ctx).
		Where("user_id = ? AND status = ?", userId, AccountStatusActive).
		Order("id").
		Find(&accounts).Error
	return accounts, err
}
