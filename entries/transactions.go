package entries

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/ledger_backend/installments"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type NewTransaction struct {
	AccountId          int                    `json:"account_id" validate:"required"`
	Date               time.Time              `json:"date" validate:"required"`
	Amount             decimal.Decimal        `json:"amount"`
	Currency           string                 `json:"currency" validate:"omitempty,iso4217"`
	Name               string                 `json:"name" validate:"max=255"`
	Notes              string                 `json:"notes"`
	Kind               models.TransactionKind `json:"kind"`
	Excluded           bool                   `json:"excluded"`
	CategoryId         *int                   `json:"category_id"`
	MerchantId         *int                   `json:"merchant_id"`
	TagNames           []string               `json:"tags"`
	InstallmentCurrent *int                   `json:"installment_current" validate:"omitempty,min=1"`
	InstallmentTotal   *int                   `json:"installment_total" validate:"omitempty,min=1"`
}

func (input *NewTransaction) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.Kind == "" {
		input.Kind = models.TransactionKindStandard
	}
	if !input.Kind.IsValid() {
		return fmt.Errorf("%w: transaction kind", utils.ErrInvalidInput)
	}
	if input.InstallmentCurrent != nil && input.InstallmentTotal != nil && *input.InstallmentCurrent > *input.InstallmentTotal {
		return installments.ErrInvalidCurrent
	}
	return nil
}

// TransactionUpdate patches a transaction; nil fields are left alone.
type TransactionUpdate struct {
	Date       *time.Time              `json:"date"`
	Amount     *decimal.Decimal        `json:"amount"`
	Name       *string                 `json:"name" validate:"omitempty,max=255"`
	Notes      *string                 `json:"notes"`
	Kind       *models.TransactionKind `json:"kind"`
	Excluded   *bool                   `json:"excluded"`
	CategoryId *int                    `json:"category_id"`
	MerchantId *int                    `json:"merchant_id"`
}

func (input *TransactionUpdate) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.Kind != nil && !input.Kind.IsValid() {
		return fmt.Errorf("%w: transaction kind", utils.ErrInvalidInput)
	}
	return nil
}

func (input *TransactionUpdate) changes() map[string]interface{} {
	out := map[string]interface{}{}
	if input.Date != nil {
		out["date"] = utils.TruncateToDate(*input.Date)
	}
	if input.Amount != nil {
		out["amount"] = *input.Amount
	}
	if input.Name != nil {
		out["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Notes != nil {
		out["notes"] = *input.Notes
	}
	if input.Kind != nil {
		out["kind"] = *input.Kind
	}
	if input.Excluded != nil {
		out["excluded"] = *input.Excluded
	}
	if input.CategoryId != nil {
		out["category_id"] = *input.CategoryId
	}
	if input.MerchantId != nil {
		out["merchant_id"] = *input.MerchantId
	}
	return out
}

// CreateTransaction stores a transaction. A parent with an installment total above 1
// gets its remaining installments in the same database transaction.
func (s *Service) CreateTransaction(ctx context.Context, input *NewTransaction) (*models.Transaction, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	txn, err := s.createTransaction(ctx, s.DB, input)
	if err != nil {
		return nil, err
	}
	s.Invalidator.AfterEntryChange(ctx, txn.AccountId)
	return txn, nil
}

// CreateTransactionDeferred is CreateTransaction without the resync. Callers that write
// many rows sync the touched accounts once at the end.
func (s *Service) CreateTransactionDeferred(ctx context.Context, input *NewTransaction) (*models.Transaction, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	return s.createTransaction(ctx, s.DB, input)
}

func (s *Service) createTransaction(ctx context.Context, db *gorm.DB, input *NewTransaction) (*models.Transaction, error) {
	var txn models.Transaction
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := ownedAccount(ctx, tx, input.AccountId)
		if err != nil {
			return err
		}
		currency := strings.ToUpper(input.Currency)
		if currency == "" {
			currency = account.Currency
		}
		txn = models.Transaction{
			AccountId:          account.ID,
			Date:               utils.TruncateToDate(input.Date),
			Amount:             input.Amount,
			Currency:           currency,
			Name:               strings.TrimSpace(input.Name),
			Notes:              input.Notes,
			Kind:               input.Kind,
			Excluded:           input.Excluded,
			CategoryId:         input.CategoryId,
			MerchantId:         input.MerchantId,
			InstallmentCurrent: input.InstallmentCurrent,
			InstallmentTotal:   input.InstallmentTotal,
		}
		if txn.InstallmentTotal != nil && *txn.InstallmentTotal > 1 && txn.InstallmentCurrent == nil {
			one := 1
			txn.InstallmentCurrent = &one
		}
		if err := tx.Omit("Tags").Create(&txn).Error; err != nil {
			return err
		}
		if err := attachTags(ctx, tx, account.UserId, txn.ID, input.TagNames); err != nil {
			return err
		}
		if txn.IsInstallmentParent() {
			siblings, err := installments.Build(txn)
			if err != nil {
				return err
			}
			if len(siblings) > 0 {
				if err := tx.Create(&siblings).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func attachTags(ctx context.Context, tx *gorm.DB, userId, transactionId int, names []string) error {
	for _, name := range utils.UniqueSlice(names) {
		if strings.TrimSpace(name) == "" {
			continue
		}
		tag, err := models.GetOrCreateTag(ctx, tx, userId, name)
		if err != nil {
			return err
		}
		link := models.TransactionTag{TransactionId: transactionId, TagId: tag.ID}
		if err := tx.Where(link).FirstOrCreate(&link).Error; err != nil {
			return err
		}
	}
	return nil
}

// UpdateTransaction applies input and, when the transaction belongs to an installment
// series, copies the shared attributes onto the other members.
func (s *Service) UpdateTransaction(ctx context.Context, id int, input *TransactionUpdate) (*models.Transaction, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	var txn models.Transaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Take(&txn).Error; err != nil {
			return err
		}
		if _, err := ownedAccount(ctx, tx, txn.AccountId); err != nil {
			return err
		}
		changes := input.changes()
		if len(changes) == 0 {
			return nil
		}
		if err := tx.Model(&txn).Updates(changes).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", id).Take(&txn).Error; err != nil {
			return err
		}
		if txn.InstallmentTotal == nil || !touchesSeries(changes) {
			return nil
		}
		_, err := installments.UpdateSeries(tx, &txn)
		return err
	})
	if err != nil {
		if utils.IsNotFound(err) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	s.Invalidator.AfterEntryChange(ctx, txn.AccountId)
	return &txn, nil
}

// seriesFields are the attributes an installment shares with the rest of its series.
var seriesFields = []string{"name", "notes", "kind", "category_id", "merchant_id"}

func touchesSeries(changes map[string]interface{}) bool {
	for _, f := range seriesFields {
		if _, ok := changes[f]; ok {
			return true
		}
	}
	return false
}

// DeleteTransaction removes a transaction with its tag links and transfers. Deleting a
// series root also deletes its installments.
func (s *Service) DeleteTransaction(ctx context.Context, id int) error {
	var txn models.Transaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Take(&txn).Error; err != nil {
			return err
		}
		if _, err := ownedAccount(ctx, tx, txn.AccountId); err != nil {
			return err
		}
		ids := []int{txn.ID}
		if txn.IsInstallmentParent() {
			var siblings []int
			if err := tx.Model(&models.Transaction{}).Where("original_purchase_id = ?", txn.ID).Pluck("id", &siblings).Error; err != nil {
				return err
			}
			ids = append(ids, siblings...)
		}
		_, err := installments.DeleteTransactions(tx, ids)
		return err
	})
	if err != nil {
		if utils.IsNotFound(err) {
			return utils.ErrorRecordNotFound
		}
		return err
	}
	s.Invalidator.AfterEntryChange(ctx, txn.AccountId)
	return nil
}
