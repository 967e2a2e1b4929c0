package ledger

import (
	"context"
	"time"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

// memLoader serves entries from memory and counts per-date reads.
type memLoader struct {
	txns       []models.Transaction
	trades     []models.Trade
	valuations []models.Valuation
	holdings   []models.Holding
	prices     []models.SecurityPrice

	txnReads int
}

func sameDay(a, b time.Time) bool { return day(a) == day(b) }

func (m *memLoader) TransactionsOn(ctx context.Context, accountId int, date time.Time) ([]models.Transaction, error) {
	m.txnReads++
	var out []models.Transaction
	for _, t := range m.txns {
		if t.AccountId == accountId && sameDay(t.Date, date) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memLoader) TradesOn(ctx context.Context, accountId int, date time.Time) ([]models.Trade, error) {
	var out []models.Trade
	for _, t := range m.trades {
		if t.AccountId == accountId && sameDay(t.Date, date) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memLoader) ValuationsOn(ctx context.Context, accountId int, date time.Time) ([]models.Valuation, error) {
	var out []models.Valuation
	for _, v := range m.valuations {
		if v.AccountId == accountId && sameDay(v.Date, date) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memLoader) HoldingsOn(ctx context.Context, accountId int, date time.Time) ([]models.Holding, error) {
	var out []models.Holding
	for _, h := range m.holdings {
		if h.AccountId == accountId && sameDay(h.Date, date) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memLoader) SecurityPriceOn(ctx context.Context, securityId int, date time.Time) (decimal.Decimal, bool, error) {
	var best *models.SecurityPrice
	for i, p := range m.prices {
		if p.SecurityId != securityId || p.Date.After(date) {
			continue
		}
		if best == nil || p.Date.After(best.Date) {
			best = &m.prices[i]
		}
	}
	if best == nil {
		return decimal.Zero, false, nil
	}
	return best.Price, true, nil
}

func (m *memLoader) LatestReconciliation(ctx context.Context, accountId int) (*models.Valuation, error) {
	var best *models.Valuation
	for i, v := range m.valuations {
		if v.AccountId != accountId || v.Kind != models.ValuationKindReconciliation {
			continue
		}
		if best == nil || v.Date.After(best.Date) {
			best = &m.valuations[i]
		}
	}
	return best, nil
}

func (m *memLoader) ActivityBounds(ctx context.Context, accountId int) (ActivityBounds, error) {
	var b ActivityBounds
	for _, t := range m.txns {
		if t.AccountId == accountId {
			d := t.Date
			b.LastTransaction = utils.MaxDate(b.LastTransaction, &d)
			b.FirstEntry = utils.MinDate(b.FirstEntry, &d)
		}
	}
	for _, t := range m.trades {
		if t.AccountId == accountId {
			d := t.Date
			b.LastTrade = utils.MaxDate(b.LastTrade, &d)
			b.FirstEntry = utils.MinDate(b.FirstEntry, &d)
		}
	}
	for _, h := range m.holdings {
		if h.AccountId == accountId {
			d := h.Date
			b.LastHolding = utils.MaxDate(b.LastHolding, &d)
			b.FirstEntry = utils.MinDate(b.FirstEntry, &d)
		}
	}
	for _, v := range m.valuations {
		if v.AccountId == accountId {
			d := v.Date
			b.LastValuation = utils.MaxDate(b.LastValuation, &d)
			b.FirstEntry = utils.MinDate(b.FirstEntry, &d)
		}
	}
	return b, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func dayN(n int) time.Time { return day0.AddDate(0, 0, n) }

func txn(accountId, n int, amount string) models.Transaction {
	return models.Transaction{AccountId: accountId, Date: dayN(n), Amount: dec(amount), Kind: models.TransactionKindStandard}
}

func valuation(accountId, n int, amount string, kind models.ValuationKind) models.Valuation {
	return models.Valuation{AccountId: accountId, Date: dayN(n), Amount: dec(amount), Kind: kind}
}

func calculate(account *models.Account, loader Loader) ([]models.Balance, error) {
	calc := NewForwardCalculator(account, NewEntryCache(loader))
	calc.today = func() time.Time { return dayN(30) }
	return calc.Calculate(context.Background())
}
