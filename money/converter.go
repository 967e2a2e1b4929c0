package money

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/ledger_backend/models"
	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrConversion = errors.New("currency conversion failed")

// ConversionError is returned when no rate exists for the pair on the date and no fallback was given.
type ConversionError struct {
	From string
	To   string
	Date time.Time
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("couldn't find exchange rate from %s to %s on %s", e.From, e.To, e.Date.Format("2006-01-02"))
}

func (e *ConversionError) Is(target error) bool {
	return target == ErrConversion
}

// RateStore looks up the rate converting one unit of from into to on date.
type RateStore interface {
	FindRate(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, bool, error)
}

// GormRateStore reads ExchangeRate rows.
type GormRateStore struct {
	DB *gorm.DB
}

func (s GormRateStore) FindRate(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, bool, error) {
	var rates []models.ExchangeRate
	err := s.DB.WithContext(ctx).
		Where("from_currency = ? AND to_currency = ? AND date = ?", from, to, date.Format("2006-01-02")).
		Limit(1).
		Find(&rates).Error
	if err != nil {
		return decimal.Zero, false, err
	}
	if len(rates) == 0 {
		return decimal.Zero, false, nil
	}
	return rates[0].Rate, true, nil
}

type cachedRate struct {
	rate  decimal.Decimal
	found bool
}

// Converter converts Money between currencies using a RateStore.
// Lookups are memoized in-process, including misses.
type Converter struct {
	store RateStore
	cache *gocache.Cache
}

func NewConverter(store RateStore) *Converter {
	return &Converter{
		store: store,
		cache: gocache.New(15*time.Minute, 30*time.Minute),
	}
}

func rateKey(from, to string, date time.Time) string {
	return from + ":" + to + ":" + date.Format("2006-01-02")
}

// Rate returns the rate for from->to on date, falling back to fallback when no rate is stored.
func (c *Converter) Rate(ctx context.Context, from, to string, date time.Time, fallback *decimal.Decimal) (decimal.Decimal, error) {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	key := rateKey(from, to, date)
	var hit cachedRate
	if v, ok := c.cache.Get(key); ok {
		hit = v.(cachedRate)
	} else {
		rate, found, err := c.store.FindRate(ctx, from, to, date)
		if err != nil {
			return decimal.Zero, err
		}
		hit = cachedRate{rate: rate, found: found}
		c.cache.SetDefault(key, hit)
	}
	if hit.found {
		return hit.rate, nil
	}
	if fallback != nil {
		return *fallback, nil
	}
	return decimal.Zero, &ConversionError{From: from, To: to, Date: date}
}

// Convert exchanges m into currency to on date.
func (c *Converter) Convert(ctx context.Context, m Money, to string, date time.Time, fallback *decimal.Decimal) (Money, error) {
	rate, err := c.Rate(ctx, m.Currency, to, date, fallback)
	if err != nil {
		return Money{}, err
	}
	return New(m.Amount.Mul(rate), to), nil
}

// Forget drops cached lookups, e.g. after new rates were written.
func (c *Converter) Forget() {
	c.cache.Flush()
}
