package installments

import (
	"context"
	"errors"

	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/ledger"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var ErrAlreadyGenerated = errors.New("installment series already generated")

// Generator persists installment series.
type Generator struct {
	DB          *gorm.DB
	Invalidator *ledger.Invalidator
	Logger      *logrus.Logger
}

func NewGenerator(db *gorm.DB, invalidator *ledger.Invalidator, logger *logrus.Logger) *Generator {
	return &Generator{DB: db, Invalidator: invalidator, Logger: logger}
}

// GenerateInstallments creates the remaining installments of a parent transaction and
// returns them. A parent without a current number is stamped as installment 1.
func (g *Generator) GenerateInstallments(ctx context.Context, parentId int) ([]models.Transaction, error) {
	var created []models.Transaction
	var accountId int
	err := g.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parent models.Transaction
		if err := tx.Where("id = ?", parentId).Take(&parent).Error; err != nil {
			return err
		}
		accountId = parent.AccountId
		siblings, err := Build(parent)
		if err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&models.Transaction{}).Where("original_purchase_id = ?", parent.SeriesRootId()).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyGenerated
		}

		if parent.InstallmentCurrent == nil {
			one := 1
			if err := tx.Model(&parent).Update("installment_current", one).Error; err != nil {
				return err
			}
		}
		if len(siblings) == 0 {
			return nil
		}
		if err := tx.Create(&siblings).Error; err != nil {
			return err
		}
		created = siblings
		return nil
	})
	if err != nil {
		if utils.IsNotFound(err) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if len(created) > 0 {
		g.Invalidator.AfterEntryChange(ctx, accountId)
	}
	return created, nil
}

// BatchResult reports a multi-parent generation run.
type BatchResult struct {
	Generated int            `json:"generated"`
	Created   int            `json:"created"`
	Skipped   map[int]string `json:"skipped,omitempty"`
}

// GenerateBatch generates each parent independently; failures are recorded per parent.
func (g *Generator) GenerateBatch(ctx context.Context, parentIds []int) *BatchResult {
	res := &BatchResult{Skipped: map[int]string{}}
	for _, id := range utils.UniqueSlice(parentIds) {
		created, err := g.GenerateInstallments(ctx, id)
		if err != nil {
			res.Skipped[id] = err.Error()
			if !errors.Is(err, ErrNotInstallment) && !errors.Is(err, ErrAlreadyGenerated) {
				config.LogError(g.Logger, "installments", "GenerateBatch", "GenerateInstallments", map[string]any{"transaction_id": id}, err)
			}
			continue
		}
		res.Generated++
		res.Created += len(created)
	}
	return res
}

// UpdateInstallmentSeries copies name, notes, category, merchant and kind from the given
// member onto the rest of its series. Dates and amounts stay as generated.
func (g *Generator) UpdateInstallmentSeries(ctx context.Context, transactionId int) (int64, error) {
	var affected int64
	err := g.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var src models.Transaction
		if err := tx.Where("id = ?", transactionId).Take(&src).Error; err != nil {
			return err
		}
		n, err := UpdateSeries(tx, &src)
		affected = n
		return err
	})
	if utils.IsNotFound(err) {
		return 0, utils.ErrorRecordNotFound
	}
	return affected, err
}

// DeleteInstallmentSeries deletes every other member of the transaction's series.
func (g *Generator) DeleteInstallmentSeries(ctx context.Context, transactionId int) (int64, error) {
	var affected int64
	var accountId int
	err := g.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var src models.Transaction
		if err := tx.Where("id = ?", transactionId).Take(&src).Error; err != nil {
			return err
		}
		accountId = src.AccountId
		var ids []int
		if err := tx.Model(&models.Transaction{}).
			Where("original_purchase_id = ? AND id <> ?", src.SeriesRootId(), src.ID).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		n, err := DeleteTransactions(tx, ids)
		affected = n
		return err
	})
	if err != nil {
		if utils.IsNotFound(err) {
			return 0, utils.ErrorRecordNotFound
		}
		return 0, err
	}
	if affected > 0 {
		g.Invalidator.AfterEntryChange(ctx, accountId)
	}
	return affected, nil
}

// UpdateSeries copies name, notes, category, merchant and kind from src onto the other
// installments of its series. It runs on the caller's transaction.
func UpdateSeries(tx *gorm.DB, src *models.Transaction) (int64, error) {
	res := tx.Model(&models.Transaction{}).
		Where("original_purchase_id = ? AND id <> ?", src.SeriesRootId(), src.ID).
		Updates(map[string]interface{}{
			"name":        gorm.Expr("CONCAT(?, ' (', installment_current, '/', installment_total, ')')", src.Name),
			"notes":       src.Notes,
			"category_id": src.CategoryId,
			"merchant_id": src.MerchantId,
			"kind":        src.Kind,
		})
	return res.RowsAffected, res.Error
}

// DeleteTransactions removes ids together with their tag links and any transfer
// that references them.
func DeleteTransactions(tx *gorm.DB, ids []int) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if err := tx.Where("transaction_id IN ?", ids).Delete(&models.TransactionTag{}).Error; err != nil {
		return 0, err
	}
	if err := tx.Where("inflow_transaction_id IN ? OR outflow_transaction_id IN ?", ids, ids).Delete(&models.Transfer{}).Error; err != nil {
		return 0, err
	}
	res := tx.Where("id IN ?", ids).Delete(&models.Transaction{})
	return res.RowsAffected, res.Error
}
