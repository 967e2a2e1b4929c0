package entries

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NewValuation struct {
	AccountId int                  `json:"account_id" validate:"required"`
	Date      time.Time            `json:"date" validate:"required"`
	Kind      models.ValuationKind `json:"kind"`
	Amount    decimal.Decimal      `json:"amount"`
	Currency  string               `json:"currency" validate:"omitempty,iso4217"`
}

func (input *NewValuation) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	switch input.Kind {
	case "":
		input.Kind = models.ValuationKindReconciliation
	case models.ValuationKindReconciliation, models.ValuationKindCurrentAnchor:
	default:
		return fmt.Errorf("%w: valuation kind", utils.ErrInvalidInput)
	}
	return nil
}

// UpsertValuation records the confirmed balance for (account, date, kind), replacing
// the amount of an existing row.
func (s *Service) UpsertValuation(ctx context.Context, input *NewValuation) (*models.Valuation, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	var valuation models.Valuation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := ownedAccount(ctx, tx, input.AccountId)
		if err != nil {
			return err
		}
		currency := strings.ToUpper(input.Currency)
		if currency == "" {
			currency = account.Currency
		}
		valuation = models.Valuation{
			AccountId: account.ID,
			Date:      utils.TruncateToDate(input.Date),
			Kind:      input.Kind,
			Amount:    input.Amount,
			Currency:  currency,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "date"}, {Name: "kind"}},
			DoUpdates: clause.AssignmentColumns([]string{"amount", "currency", "updated_at"}),
		}).Create(&valuation).Error; err != nil {
			return err
		}
		return tx.Where("account_id = ? AND date = ? AND kind = ?", valuation.AccountId, valuation.Date, valuation.Kind).
			Take(&valuation).Error
	})
	if err != nil {
		return nil, err
	}
	s.Invalidator.AfterEntryChange(ctx, valuation.AccountId)
	return &valuation, nil
}

func (s *Service) DeleteValuation(ctx context.Context, id int) error {
	var valuation models.Valuation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Take(&valuation).Error; err != nil {
			return err
		}
		if _, err := ownedAccount(ctx, tx, valuation.AccountId); err != nil {
			return err
		}
		return tx.Delete(&valuation).Error
	})
	if err != nil {
		if utils.IsNotFound(err) {
			return utils.ErrorRecordNotFound
		}
		return err
	}
	s.Invalidator.AfterEntryChange(ctx, valuation.AccountId)
	return nil
}
