package entries

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AccountUpdate struct {
	Name           *string               `json:"name" validate:"omitempty,min=1,max=100"`
	Status         *models.AccountStatus `json:"status"`
	OpeningBalance *decimal.Decimal      `json:"opening_balance"`
}

// UpdateAccount edits account attributes. A new opening balance shifts every derived
// balance that has no reconciliation anchor, so it triggers a resync.
func (s *Service) UpdateAccount(ctx context.Context, id int, input *AccountUpdate) (*models.Account, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.Status != nil {
		switch *input.Status {
		case models.AccountStatusActive, models.AccountStatusDraft, models.AccountStatusDisabled, models.AccountStatusPendingDeletion:
		default:
			return nil, fmt.Errorf("%w: account status", utils.ErrInvalidInput)
		}
	}
	var account *models.Account
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if account, err = ownedAccount(ctx, tx, id); err != nil {
			return err
		}
		changes := map[string]interface{}{}
		if input.Name != nil {
			changes["name"] = strings.TrimSpace(*input.Name)
		}
		if input.Status != nil {
			changes["status"] = *input.Status
		}
		if input.OpeningBalance != nil {
			changes["opening_balance"] = *input.OpeningBalance
		}
		if len(changes) == 0 {
			return nil
		}
		if err := tx.Model(&models.Account{}).Where("id = ?", id).Updates(changes).Error; err != nil {
			return err
		}
		account, err = models.GetAccount(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if input.OpeningBalance != nil || input.Status != nil {
		s.Invalidator.AfterEntryChange(ctx, account.ID)
	}
	return account, nil
}
