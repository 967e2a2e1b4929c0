package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

const balanceInsertBatchSize = 500

// MaterializeResult summarizes one rebuild.
type MaterializeResult struct {
	AccountId int
	Rows      int
	From      *time.Time
	To        *time.Time
	Account   *models.Account
}

// BalanceMaterializer persists calculator output for one account atomically.
type BalanceMaterializer struct {
	DB *gorm.DB
	// UseAdvisoryLock takes a MySQL GET_LOCK per account inside the transaction.
	UseAdvisoryLock bool
	// NewCalculator builds the calculator for a strategy; nil means the package NewCalculator.
	NewCalculator func(Strategy, *models.Account, *EntryCache) (Calculator, error)
}

func NewBalanceMaterializer(db *gorm.DB) *BalanceMaterializer {
	return &BalanceMaterializer{DB: db, UseAdvisoryLock: true, NewCalculator: NewCalculator}
}

// MaterializeBalances recalculates and replaces the account's balances in one transaction:
// rows inside the computed range are replaced, rows outside it are purged, and for the
// forward strategy the account's cached balance fields are refreshed from the latest row.
// Any error rolls everything back.
func (m *BalanceMaterializer) MaterializeBalances(ctx context.Context, accountId int, strategy Strategy) (*MaterializeResult, error) {
	ctx, span := tracer.Start(ctx, "ledger.MaterializeBalances")
	defer span.End()
	span.SetAttributes(attribute.Int("account_id", accountId), attribute.String("strategy", string(strategy)))

	result := &MaterializeResult{AccountId: accountId}
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if m.UseAdvisoryLock {
			if err := AcquireAccountSyncLock(tx, accountId); err != nil {
				return err
			}
			defer ReleaseAccountSyncLock(tx, accountId)
		}

		account, err := models.GetAccount(ctx, tx, accountId)
		if err != nil {
			return err
		}
		result.Account = account

		newCalculator := m.NewCalculator
		if newCalculator == nil {
			newCalculator = NewCalculator
		}
		calc, err := newCalculator(strategy, account, NewEntryCache(GormLoader{DB: tx}))
		if err != nil {
			return err
		}
		balances, err := calc.Calculate(ctx)
		if err != nil {
			return fmt.Errorf("calculate balances: %w", err)
		}
		if len(balances) == 0 {
			return resetBalances(tx, account, strategy)
		}

		from, to := balances[0].Date, balances[len(balances)-1].Date
		result.From, result.To, result.Rows = &from, &to, len(balances)

		if err := tx.Where("account_id = ? AND currency = ? AND date BETWEEN ? AND ?",
			accountId, account.Currency, day(from), day(to)).
			Delete(&models.Balance{}).Error; err != nil {
			return err
		}
		if err := tx.CreateInBatches(&balances, balanceInsertBatchSize).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ? AND currency = ? AND (date < ? OR date > ?)",
			accountId, account.Currency, day(from), day(to)).
			Delete(&models.Balance{}).Error; err != nil {
			return err
		}

		if strategy == StrategyForward {
			latest := balances[len(balances)-1]
			if err := tx.Model(&models.Account{}).Where("id = ?", accountId).
				Updates(map[string]interface{}{
					"balance":      latest.Balance,
					"cash_balance": latest.CashBalance,
				}).Error; err != nil {
				return err
			}
			account.Balance = latest.Balance
			account.CashBalance = latest.CashBalance
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		if utils.IsNotFound(err) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return result, nil
}

// resetBalances handles an empty calculation: every row for the account's currency goes and,
// for the forward strategy, the cached fields fall back to the opening balance.
func resetBalances(tx *gorm.DB, account *models.Account, strategy Strategy) error {
	if err := tx.Where("account_id = ? AND currency = ?", account.ID, account.Currency).
		Delete(&models.Balance{}).Error; err != nil {
		return err
	}
	if strategy != StrategyForward {
		return nil
	}
	balance := account.OpeningBalance
	cash := decimal.Zero
	if account.AccountableType.BalanceType() == models.BalanceTypeCash {
		cash = balance
	}
	if err := tx.Model(&models.Account{}).Where("id = ?", account.ID).
		Updates(map[string]interface{}{
			"balance":      balance,
			"cash_balance": cash,
		}).Error; err != nil {
		return err
	}
	account.Balance = balance
	account.CashBalance = cash
	return nil
}
