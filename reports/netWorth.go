// Package reports builds read-side aggregates over materialized balances.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/money"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("reports")

type NetWorthPoint struct {
	Date     time.Time       `json:"date"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type NetWorthSeries struct {
	UserId   int             `json:"user_id"`
	Currency string          `json:"currency"`
	Points   []NetWorthPoint `json:"points"`
	// Unconverted lists "<currency>@<date>" groups left out for lack of an exchange rate.
	Unconverted []string `json:"unconverted,omitempty"`
}

// netWorthRow is the signed balance total of one currency on one date.
type netWorthRow struct {
	Date     time.Time
	Currency string
	Total    decimal.Decimal
}

type NetWorthService struct {
	DB        *gorm.DB
	Redis     *redis.Client
	Converter *money.Converter
	TTL       time.Duration
	Logger    *logrus.Logger
}

func NewNetWorthService(db *gorm.DB, rdb *redis.Client, logger *logrus.Logger) *NetWorthService {
	return &NetWorthService{
		DB:        db,
		Redis:     rdb,
		Converter: money.NewConverter(money.GormRateStore{DB: db}),
		TTL:       config.NetWorthCacheTTL(),
		Logger:    logger,
	}
}

func netWorthKey(userId int) string {
	return fmt.Sprintf("NetWorth:User:%d", userId)
}

func windowField(currency string, from, to time.Time) string {
	return currency + ":" + from.Format("2006-01-02") + ":" + to.Format("2006-01-02")
}

// NetWorth returns the user's daily net worth over [from, to] in currency: asset
// balances minus liability balances of active accounts. Series are cached per user
// in one redis hash so a single delete drops every cached window.
func (s *NetWorthService) NetWorth(ctx context.Context, userId int, currency string, from, to time.Time) (*NetWorthSeries, error) {
	ctx, span := tracer.Start(ctx, "reports.NetWorth")
	defer span.End()

	if currency == "" {
		currency = config.DefaultCurrency()
	}
	field := windowField(currency, from, to)
	if cached, ok := s.cached(ctx, userId, field); ok {
		return cached, nil
	}

	rows, err := s.loadRows(ctx, userId, from, to)
	if err != nil {
		return nil, err
	}
	series, err := aggregate(ctx, rows, currency, s.Converter.Convert)
	if err != nil {
		return nil, err
	}
	series.UserId = userId
	s.store(ctx, userId, field, series)
	return series, nil
}

func (s *NetWorthService) loadRows(ctx context.Context, userId int, from, to time.Time) ([]netWorthRow, error) {
	var rows []netWorthRow
	err := s.DB.WithContext(ctx).
		Table("balances").
		Select("balances.date AS date, balances.currency AS currency, "+
			"SUM(CASE WHEN accounts.classification = ? THEN -balances.balance ELSE balances.balance END) AS total",
			models.AccountClassificationLiability).
		Joins("JOIN accounts ON accounts.id = balances.account_id").
		Where("accounts.user_id = ? AND accounts.status = ?", userId, models.AccountStatusActive).
		Where("balances.date BETWEEN ? AND ?", from, to).
		Group("balances.date, balances.currency").
		Order("balances.date, balances.currency").
		Scan(&rows).Error
	return rows, err
}

type convertFunc func(ctx context.Context, m money.Money, to string, date time.Time, fallback *decimal.Decimal) (money.Money, error)

// aggregate folds per-currency rows into one point per date. Groups without a rate are
// reported in Unconverted instead of failing the series.
func aggregate(ctx context.Context, rows []netWorthRow, currency string, convert convertFunc) (*NetWorthSeries, error) {
	series := &NetWorthSeries{Currency: currency, Points: []NetWorthPoint{}}
	totals := map[string]*NetWorthPoint{}
	for _, r := range rows {
		key := r.Date.Format("2006-01-02")
		p, ok := totals[key]
		if !ok {
			p = &NetWorthPoint{Date: r.Date, Amount: decimal.Zero, Currency: currency}
			totals[key] = p
		}
		converted, err := convert(ctx, money.New(r.Total, r.Currency), currency, r.Date, nil)
		if err != nil {
			if errors.Is(err, money.ErrConversion) {
				series.Unconverted = append(series.Unconverted, r.Currency+"@"+key)
				continue
			}
			return nil, err
		}
		p.Amount = p.Amount.Add(converted.Amount)
	}
	for _, p := range totals {
		series.Points = append(series.Points, *p)
	}
	sort.Slice(series.Points, func(i, j int) bool { return series.Points[i].Date.Before(series.Points[j].Date) })
	return series, nil
}

func (s *NetWorthService) cached(ctx context.Context, userId int, field string) (*NetWorthSeries, bool) {
	if s.Redis == nil {
		return nil, false
	}
	var series NetWorthSeries
	raw, err := s.Redis.HGet(ctx, netWorthKey(userId), field).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			config.LogError(s.Logger, "reports/netWorth", "cached", "HGet", map[string]any{"user_id": userId}, err)
		}
		return nil, false
	}
	if err := json.Unmarshal(raw, &series); err != nil {
		return nil, false
	}
	return &series, true
}

func (s *NetWorthService) store(ctx context.Context, userId int, field string, series *NetWorthSeries) {
	if s.Redis == nil {
		return
	}
	raw, err := json.Marshal(series)
	if err != nil {
		return
	}
	key := netWorthKey(userId)
	pipe := s.Redis.TxPipeline()
	pipe.HSet(ctx, key, field, raw)
	pipe.Expire(ctx, key, s.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		config.LogError(s.Logger, "reports/netWorth", "store", "HSet", map[string]any{"user_id": userId}, err)
	}
}

// InvalidateAccount drops the cached series of the account's owner. The syncer calls
// it after every materialization.
func (s *NetWorthService) InvalidateAccount(ctx context.Context, account *models.Account) error {
	if s.Redis == nil || account == nil {
		return nil
	}
	return s.Redis.Del(ctx, netWorthKey(account.UserId)).Err()
}
