package entries

import (
	"context"
	"strings"
	"time"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NewTrade struct {
	AccountId  int             `json:"account_id" validate:"required"`
	SecurityId int             `json:"security_id" validate:"required"`
	Date       time.Time       `json:"date" validate:"required"`
	Qty        decimal.Decimal `json:"qty"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency" validate:"omitempty,iso4217"`
}

type NewHolding struct {
	AccountId  int             `json:"account_id" validate:"required"`
	SecurityId int             `json:"security_id" validate:"required"`
	Date       time.Time       `json:"date" validate:"required"`
	Qty        decimal.Decimal `json:"qty"`
	Price      decimal.Decimal `json:"price"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency" validate:"omitempty,iso4217"`
}

func investmentAccount(ctx context.Context, tx *gorm.DB, accountId, securityId int) (*models.Account, error) {
	account, err := ownedAccount(ctx, tx, accountId)
	if err != nil {
		return nil, err
	}
	if account.AccountableType != models.AccountableTypeInvestment {
		return nil, ErrInvestmentRequired
	}
	var n int64
	if err := tx.Model(&models.Security{}).Where("id = ?", securityId).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, utils.ErrorRecordNotFound
	}
	return account, nil
}

// CreateTrade records a buy (positive qty) or sell (negative qty) in an investment account.
func (s *Service) CreateTrade(ctx context.Context, input *NewTrade) (*models.Trade, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	var trade models.Trade
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := investmentAccount(ctx, tx, input.AccountId, input.SecurityId)
		if err != nil {
			return err
		}
		trade = models.Trade{
			AccountId:  account.ID,
			SecurityId: input.SecurityId,
			Date:       utils.TruncateToDate(input.Date),
			Qty:        input.Qty,
			Price:      input.Price,
			Currency:   defaultCurrency(input.Currency, account),
		}
		return tx.Create(&trade).Error
	})
	if err != nil {
		return nil, err
	}
	s.Invalidator.AfterEntryChange(ctx, trade.AccountId)
	return &trade, nil
}

func (s *Service) DeleteTrade(ctx context.Context, id int) error {
	var trade models.Trade
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Take(&trade).Error; err != nil {
			return err
		}
		if _, err := ownedAccount(ctx, tx, trade.AccountId); err != nil {
			return err
		}
		return tx.Delete(&trade).Error
	})
	if err != nil {
		if utils.IsNotFound(err) {
			return utils.ErrorRecordNotFound
		}
		return err
	}
	s.Invalidator.AfterEntryChange(ctx, trade.AccountId)
	return nil
}

// UpsertHolding stores the position snapshot for (account, security, date).
// A zero amount leaves pricing to the calculator.
func (s *Service) UpsertHolding(ctx context.Context, input *NewHolding) (*models.Holding, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	var holding models.Holding
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := investmentAccount(ctx, tx, input.AccountId, input.SecurityId)
		if err != nil {
			return err
		}
		holding = models.Holding{
			AccountId:  account.ID,
			SecurityId: input.SecurityId,
			Date:       utils.TruncateToDate(input.Date),
			Qty:        input.Qty,
			Price:      input.Price,
			Amount:     input.Amount,
			Currency:   defaultCurrency(input.Currency, account),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "security_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"qty", "price", "amount", "currency"}),
		}).Create(&holding).Error; err != nil {
			return err
		}
		return tx.Where("account_id = ? AND security_id = ? AND date = ?", holding.AccountId, holding.SecurityId, holding.Date).
			Take(&holding).Error
	})
	if err != nil {
		return nil, err
	}
	s.Invalidator.AfterEntryChange(ctx, holding.AccountId)
	return &holding, nil
}

func defaultCurrency(currency string, account *models.Account) string {
	if c := strings.ToUpper(currency); c != "" {
		return c
	}
	return account.Currency
}
