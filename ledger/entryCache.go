package ledger

import (
	"context"
	"time"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/shopspring/decimal"
)

// DayEntries are the transactions and trades booked on one date.
type DayEntries struct {
	Transactions []models.Transaction
	Trades       []models.Trade
}

type cacheKey struct {
	accountId int
	day       string
}

type priceKey struct {
	securityId int
	day        string
}

type priceHit struct {
	price decimal.Decimal
	found bool
}

// EntryCache memoizes per (account, date) reads for the lifetime of one calculation pass.
// Build a new cache for every pass; it is not safe for concurrent use.
type EntryCache struct {
	loader     Loader
	entries    map[cacheKey]*DayEntries
	valuations map[cacheKey][]models.Valuation
	holdings   map[cacheKey][]models.Holding
	hvalues    map[cacheKey]decimal.Decimal
	prices     map[priceKey]priceHit
}

func NewEntryCache(loader Loader) *EntryCache {
	return &EntryCache{
		loader:     loader,
		entries:    make(map[cacheKey]*DayEntries),
		valuations: make(map[cacheKey][]models.Valuation),
		holdings:   make(map[cacheKey][]models.Holding),
		hvalues:    make(map[cacheKey]decimal.Decimal),
		prices:     make(map[priceKey]priceHit),
	}
}

// Preload fills the cache for every date in [from, to] with one read per entry type
// when the loader supports range reads. Otherwise it is a no-op and dates load lazily.
func (c *EntryCache) Preload(ctx context.Context, accountId int, from, to time.Time) error {
	rl, ok := c.loader.(RangeLoader)
	if !ok || from.After(to) {
		return nil
	}
	txns, err := rl.TransactionsBetween(ctx, accountId, from, to)
	if err != nil {
		return err
	}
	trades, err := rl.TradesBetween(ctx, accountId, from, to)
	if err != nil {
		return err
	}
	valuations, err := rl.ValuationsBetween(ctx, accountId, from, to)
	if err != nil {
		return err
	}
	holdings, err := rl.HoldingsBetween(ctx, accountId, from, to)
	if err != nil {
		return err
	}

	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		k := cacheKey{accountId, day(d)}
		c.entries[k] = &DayEntries{}
		c.valuations[k] = nil
		c.holdings[k] = nil
	}
	for _, t := range txns {
		k := cacheKey{accountId, day(t.Date)}
		if e, ok := c.entries[k]; ok {
			e.Transactions = append(e.Transactions, t)
		}
	}
	for _, t := range trades {
		k := cacheKey{accountId, day(t.Date)}
		if e, ok := c.entries[k]; ok {
			e.Trades = append(e.Trades, t)
		}
	}
	for _, v := range valuations {
		k := cacheKey{accountId, day(v.Date)}
		if _, ok := c.valuations[k]; ok {
			c.valuations[k] = append(c.valuations[k], v)
		}
	}
	for _, h := range holdings {
		k := cacheKey{accountId, day(h.Date)}
		if _, ok := c.holdings[k]; ok {
			c.holdings[k] = append(c.holdings[k], h)
		}
	}
	return nil
}

func (c *EntryCache) Entries(ctx context.Context, accountId int, date time.Time) (*DayEntries, error) {
	k := cacheKey{accountId, day(date)}
	if e, ok := c.entries[k]; ok {
		return e, nil
	}
	txns, err := c.loader.TransactionsOn(ctx, accountId, date)
	if err != nil {
		return nil, err
	}
	trades, err := c.loader.TradesOn(ctx, accountId, date)
	if err != nil {
		return nil, err
	}
	e := &DayEntries{Transactions: txns, Trades: trades}
	c.entries[k] = e
	return e, nil
}

// Valuation returns the anchor on date, preferring a reconciliation over a current anchor.
func (c *EntryCache) Valuation(ctx context.Context, accountId int, date time.Time) (*models.Valuation, error) {
	k := cacheKey{accountId, day(date)}
	vals, ok := c.valuations[k]
	if !ok {
		var err error
		vals, err = c.loader.ValuationsOn(ctx, accountId, date)
		if err != nil {
			return nil, err
		}
		c.valuations[k] = vals
	}
	if len(vals) == 0 {
		return nil, nil
	}
	for i := range vals {
		if vals[i].Kind == models.ValuationKindReconciliation {
			return &vals[i], nil
		}
	}
	return &vals[0], nil
}

func (c *EntryCache) Holdings(ctx context.Context, accountId int, date time.Time) ([]models.Holding, error) {
	k := cacheKey{accountId, day(date)}
	if h, ok := c.holdings[k]; ok {
		return h, nil
	}
	h, err := c.loader.HoldingsOn(ctx, accountId, date)
	if err != nil {
		return nil, err
	}
	c.holdings[k] = h
	return h, nil
}

// HoldingsValue is the summed value of the positions recorded on date. Positions without a
// stored amount are valued at qty times their own price, or the latest security price.
func (c *EntryCache) HoldingsValue(ctx context.Context, accountId int, date time.Time) (decimal.Decimal, error) {
	k := cacheKey{accountId, day(date)}
	if v, ok := c.hvalues[k]; ok {
		return v, nil
	}
	holdings, err := c.Holdings(ctx, accountId, date)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, h := range holdings {
		if !h.Amount.IsZero() {
			total = total.Add(h.Amount)
			continue
		}
		price := h.Price
		if price.IsZero() {
			p, err := c.securityPrice(ctx, h.SecurityId, date)
			if err != nil {
				return decimal.Zero, err
			}
			price = p
		}
		total = total.Add(h.Qty.Mul(price).Round(4))
	}
	c.hvalues[k] = total
	return total, nil
}

func (c *EntryCache) securityPrice(ctx context.Context, securityId int, date time.Time) (decimal.Decimal, error) {
	k := priceKey{securityId, day(date)}
	if hit, ok := c.prices[k]; ok {
		return hit.price, nil
	}
	p, found, err := c.loader.SecurityPriceOn(ctx, securityId, date)
	if err != nil {
		return decimal.Zero, err
	}
	c.prices[k] = priceHit{price: p, found: found}
	return p, nil
}
