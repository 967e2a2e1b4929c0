package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ActivityBounds are the first/last dated records of an account, nil when absent.
type ActivityBounds struct {
	FirstEntry      *time.Time
	LastTransaction *time.Time
	LastTrade       *time.Time
	LastHolding     *time.Time
	LastValuation   *time.Time
}

// Loader reads the raw entries of one account.
type Loader interface {
	TransactionsOn(ctx context.Context, accountId int, date time.Time) ([]models.Transaction, error)
	TradesOn(ctx context.Context, accountId int, date time.Time) ([]models.Trade, error)
	ValuationsOn(ctx context.Context, accountId int, date time.Time) ([]models.Valuation, error)
	HoldingsOn(ctx context.Context, accountId int, date time.Time) ([]models.Holding, error)
	// SecurityPriceOn returns the latest price on or before date.
	SecurityPriceOn(ctx context.Context, securityId int, date time.Time) (decimal.Decimal, bool, error)
	LatestReconciliation(ctx context.Context, accountId int) (*models.Valuation, error)
	ActivityBounds(ctx context.Context, accountId int) (ActivityBounds, error)
}

// RangeLoader is implemented by loaders that can fetch a whole date range in one read.
type RangeLoader interface {
	Loader
	TransactionsBetween(ctx context.Context, accountId int, from, to time.Time) ([]models.Transaction, error)
	TradesBetween(ctx context.Context, accountId int, from, to time.Time) ([]models.Trade, error)
	ValuationsBetween(ctx context.Context, accountId int, from, to time.Time) ([]models.Valuation, error)
	HoldingsBetween(ctx context.Context, accountId int, from, to time.Time) ([]models.Holding, error)
}

// GormLoader reads entries through gorm. Pass the transaction handle so reads
// see the same snapshot the materializer writes into.
type GormLoader struct {
	DB *gorm.DB
}

func day(t time.Time) string {
	return t.Format("2006-01-02")
}

func (l GormLoader) TransactionsOn(ctx context.Context, accountId int, date time.Time) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := l.DB.WithContext(ctx).Where("account_id = ? AND date = ?", accountId, day(date)).Order("id").Find(&rows).Error
	return rows, err
}

func (l GormLoader) TradesOn(ctx context.Context, accountId int, date time.Time) ([]models.Trade, error) {
	var rows []models.Trade
	err := l.DB.WithContext(ctx).Where("account_id = ? AND date = ?", accountId, day(date)).Order("id").Find(&rows).Error
	return rows, err
}

func (l GormLoader) ValuationsOn(ctx context.Context, accountId int, date time.Time) ([]models.Valuation, error) {
	var rows []models.Valuation
	err := l.DB.WithContext(ctx).Where("account_id = ? AND date = ?", accountId, day(date)).Order("id").Find(&rows).Error
	return rows, err
}

func (l GormLoader) HoldingsOn(ctx context.Context, accountId int, date time.Time) ([]models.Holding, error) {
	var rows []models.Holding
	err := l.DB.WithContext(ctx).Where("account_id = ? AND date = ?", accountId, day(date)).Order("id").Find(&rows).Error
	return rows, err
}

func (l GormLoader) TransactionsBetween(ctx context.Context, accountId int, from, to time.Time) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := l.DB.WithContext(ctx).Where("account_id = ? AND date BETWEEN ? AND ?", accountId, day(from), day(to)).Order("date, id").Find(&rows).Error
	return rows, err
}

func (l GormLoader) TradesBetween(ctx context.Context, accountId int, from, to time.Time) ([]models.Trade, error) {
	var rows []models.Trade
	err := l.DB.WithContext(ctx).Where("account_id = ? AND date BETWEEN ? AND ?", accountId, day(from), day(to)).Order("date, id").Find(&rows).Error
	return rows, err
}

func (l GormLoader) ValuationsBetween(ctx context.Context, accountId int, from, to time.Time) ([]models.Valuation, error) {
	var rows []models.Valuation
	err := l.DB.WithContext(ctx).Where("account_id = ? AND date BETWEEN ? AND ?", accountId, day(from), day(to)).Order("date, id").Find(&rows).Error
	return rows, err
}

func (l GormLoader) HoldingsBetween(ctx context.Context, accountId int, from, to time.Time) ([]models.Holding, error) {
	var rows []models.Holding
	err := l.DB.WithContext(ctx).Where("account_id = ? AND date BETWEEN ? AND ?", accountId, day(from), day(to)).Order("date, id").Find(&rows).Error
	return rows, err
}

func (l GormLoader) SecurityPriceOn(ctx context.Context, securityId int, date time.Time) (decimal.Decimal, bool, error) {
	var price models.SecurityPrice
	err := l.DB.WithContext(ctx).
		Where("security_id = ? AND date <= ?", securityId, day(date)).
		Order("date DESC").
		Take(&price).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return price.Price, true, nil
}

func (l GormLoader) LatestReconciliation(ctx context.Context, accountId int) (*models.Valuation, error) {
	var v models.Valuation
	err := l.DB.WithContext(ctx).
		Where("account_id = ? AND kind = ?", accountId, models.ValuationKindReconciliation).
		Order("date DESC, id DESC").
		Take(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

type dateRange struct {
	MinDate *time.Time
	MaxDate *time.Time
}

func (l GormLoader) bounds(ctx context.Context, model any, accountId int) (dateRange, error) {
	var r dateRange
	err := l.DB.WithContext(ctx).Model(model).
		Select("MIN(date) AS min_date, MAX(date) AS max_date").
		Where("account_id = ?", accountId).
		Scan(&r).Error
	return r, err
}

func (l GormLoader) ActivityBounds(ctx context.Context, accountId int) (ActivityBounds, error) {
	var out ActivityBounds
	txns, err := l.bounds(ctx, &models.Transaction{}, accountId)
	if err != nil {
		return out, err
	}
	trades, err := l.bounds(ctx, &models.Trade{}, accountId)
	if err != nil {
		return out, err
	}
	holdings, err := l.bounds(ctx, &models.Holding{}, accountId)
	if err != nil {
		return out, err
	}
	valuations, err := l.bounds(ctx, &models.Valuation{}, accountId)
	if err != nil {
		return out, err
	}
	out.LastTransaction = txns.MaxDate
	out.LastTrade = trades.MaxDate
	out.LastHolding = holdings.MaxDate
	out.LastValuation = valuations.MaxDate
	out.FirstEntry = utils.MinDate(txns.MinDate, trades.MinDate, holdings.MinDate, valuations.MinDate)
	return out, nil
}
