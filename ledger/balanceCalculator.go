package ledger

import (
	"context"
	"time"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

// Flows are the unsigned movements of one day, split by balance side.
type Flows struct {
	CashInflows     decimal.Decimal
	CashOutflows    decimal.Decimal
	NonCashInflows  decimal.Decimal
	NonCashOutflows decimal.Decimal
}

// ForwardCalculator walks day by day from the opening anchor to the last activity date.
type ForwardCalculator struct {
	account *models.Account
	cache   *EntryCache
	today   func() time.Time
}

func NewForwardCalculator(account *models.Account, cache *EntryCache) *ForwardCalculator {
	return &ForwardCalculator{account: account, cache: cache, today: utils.Today}
}

func (c *ForwardCalculator) balanceType() models.BalanceType {
	return c.account.AccountableType.BalanceType()
}

func (c *ForwardCalculator) Calculate(ctx context.Context) ([]models.Balance, error) {
	bounds, err := c.cache.loader.ActivityBounds(ctx, c.account.ID)
	if err != nil {
		return nil, err
	}
	openDate, openBalance, err := c.openingAnchor(ctx, bounds)
	if err != nil {
		return nil, err
	}
	endDate := c.endDate(bounds)
	if openDate.After(endDate) {
		return nil, nil
	}
	// one extra day back so market flows on the opening date can diff holdings
	if err := c.cache.Preload(ctx, c.account.ID, openDate.AddDate(0, 0, -1), endDate); err != nil {
		return nil, err
	}

	factor := c.account.AccountableType.Classification().FlowsFactor()
	fd := decimal.NewFromInt(int64(factor))
	bt := c.balanceType()
	transactionsMovePrincipal := c.account.AccountableType.TransactionsMovePrincipal()

	startCash, err := c.deriveCashFromTotal(ctx, openBalance, openDate)
	if err != nil {
		return nil, err
	}
	startNonCash := openBalance.Sub(startCash)

	out := make([]models.Balance, 0, utils.DaysBetween(openDate, endDate)+1)
	for d := openDate; !d.After(endDate); d = d.AddDate(0, 0, 1) {
		flows, err := c.flowsForDate(ctx, d)
		if err != nil {
			return nil, err
		}
		marketFlows, err := c.marketFlowsForDate(ctx, d, flows)
		if err != nil {
			return nil, err
		}

		var endCash, endNonCash decimal.Decimal
		valuation, err := c.cache.Valuation(ctx, c.account.ID, d)
		if err != nil {
			return nil, err
		}
		if valuation != nil {
			endCash, err = c.deriveCashFromTotal(ctx, valuation.Amount, d)
			if err != nil {
				return nil, err
			}
			endNonCash = valuation.Amount.Sub(endCash)
		} else {
			endCash = c.deriveEndCash(startCash, flows, fd)
			endNonCash, err = c.deriveEndNonCash(ctx, d, startNonCash, flows, fd)
			if err != nil {
				return nil, err
			}
		}

		netCash := flows.CashInflows.Sub(flows.CashOutflows).Mul(fd)
		netNonCash := flows.NonCashInflows.Sub(flows.NonCashOutflows).Mul(fd)

		b := models.Balance{
			AccountId:           c.account.ID,
			Date:                d,
			Currency:            c.account.Currency,
			Balance:             endCash.Add(endNonCash),
			CashBalance:         endCash,
			StartCashBalance:    startCash,
			StartNonCashBalance: startNonCash,
			CashInflows:         flows.CashInflows,
			CashOutflows:        flows.CashOutflows,
			NonCashInflows:      flows.NonCashInflows,
			NonCashOutflows:     flows.NonCashOutflows,
			NetMarketFlows:      marketFlows,
			FlowsFactor:         factor,
		}
		// loans never touch cash; cash accounts never touch non-cash
		if !transactionsMovePrincipal {
			b.CashAdjustments = endCash.Sub(startCash).Sub(netCash)
		}
		if bt != models.BalanceTypeCash {
			b.NonCashAdjustments = endNonCash.Sub(startNonCash).Sub(netNonCash).Sub(marketFlows)
		}
		out = append(out, b)

		startCash = endCash
		startNonCash = endNonCash
	}
	return out, nil
}

// openingAnchor picks the latest reconciliation valuation. Without one it starts the day
// before the earliest of the first entry, valuation or holding and the account's creation,
// using the opening balance.
func (c *ForwardCalculator) openingAnchor(ctx context.Context, bounds ActivityBounds) (time.Time, decimal.Decimal, error) {
	v, err := c.cache.loader.LatestReconciliation(ctx, c.account.ID)
	if err != nil {
		return time.Time{}, decimal.Zero, err
	}
	if v != nil {
		return utils.TruncateToDate(v.Date), v.Amount, nil
	}
	if bounds.FirstEntry == nil {
		return c.today().AddDate(0, 0, -1), c.account.OpeningBalance, nil
	}
	first := utils.TruncateToDate(*bounds.FirstEntry)
	if !c.account.CreatedAt.IsZero() {
		created := utils.TruncateToDate(c.account.CreatedAt)
		if created.Before(first) {
			first = created
		}
	}
	return first.AddDate(0, 0, -1), c.account.OpeningBalance, nil
}

func (c *ForwardCalculator) endDate(bounds ActivityBounds) time.Time {
	last := utils.MaxDate(bounds.LastTransaction, bounds.LastTrade, bounds.LastHolding, bounds.LastValuation)
	if last == nil {
		return c.today()
	}
	return utils.TruncateToDate(*last)
}

// deriveCashFromTotal splits a total into its cash part.
func (c *ForwardCalculator) deriveCashFromTotal(ctx context.Context, total decimal.Decimal, date time.Time) (decimal.Decimal, error) {
	switch c.balanceType() {
	case models.BalanceTypeInvestment:
		hv, err := c.cache.HoldingsValue(ctx, c.account.ID, date)
		if err != nil {
			return decimal.Zero, err
		}
		return total.Sub(hv), nil
	case models.BalanceTypeCash:
		return total, nil
	}
	return decimal.Zero, nil
}

func (c *ForwardCalculator) deriveEndCash(start decimal.Decimal, flows Flows, fd decimal.Decimal) decimal.Decimal {
	if c.account.AccountableType.PrincipalOnly() {
		return decimal.Zero
	}
	return start.Add(flows.CashInflows.Sub(flows.CashOutflows).Mul(fd))
}

func (c *ForwardCalculator) deriveEndNonCash(ctx context.Context, date time.Time, start decimal.Decimal, flows Flows, fd decimal.Decimal) (decimal.Decimal, error) {
	if c.balanceType() == models.BalanceTypeInvestment {
		return c.cache.HoldingsValue(ctx, c.account.ID, date)
	}
	return start.Add(flows.NonCashInflows.Sub(flows.NonCashOutflows).Mul(fd)), nil
}

// flowsForDate separates transaction and trade movements. Negative amounts are inflows.
// Transactions move cash, except on loans where they move principal.
// Trades move cash one way and holdings the other.
func (c *ForwardCalculator) flowsForDate(ctx context.Context, date time.Time) (Flows, error) {
	entries, err := c.cache.Entries(ctx, c.account.ID, date)
	if err != nil {
		return Flows{}, err
	}
	txnIn, txnOut := splitSigned(entries.Transactions, func(t models.Transaction) decimal.Decimal { return t.Amount })
	tradeIn, tradeOut := splitSigned(entries.Trades, func(t models.Trade) decimal.Decimal { return t.Amount })

	var f Flows
	if c.account.AccountableType.TransactionsMovePrincipal() {
		f.NonCashInflows = txnIn.Abs()
		f.NonCashOutflows = txnOut
		return f, nil
	}
	f.CashInflows = txnIn.Abs().Add(tradeIn.Abs())
	f.CashOutflows = txnOut.Add(tradeOut)
	f.NonCashOutflows = tradeIn.Abs()
	f.NonCashInflows = tradeOut
	return f, nil
}

// marketFlowsForDate is the holdings value change not explained by trades; investment accounts only.
func (c *ForwardCalculator) marketFlowsForDate(ctx context.Context, date time.Time, flows Flows) (decimal.Decimal, error) {
	if c.balanceType() != models.BalanceTypeInvestment {
		return decimal.Zero, nil
	}
	today, err := c.cache.HoldingsValue(ctx, c.account.ID, date)
	if err != nil {
		return decimal.Zero, err
	}
	yesterday, err := c.cache.HoldingsValue(ctx, c.account.ID, date.AddDate(0, 0, -1))
	if err != nil {
		return decimal.Zero, err
	}
	return today.Sub(yesterday).Sub(flows.NonCashInflows.Sub(flows.NonCashOutflows)), nil
}

// splitSigned sums negative and non-negative amounts separately.
func splitSigned[T any](rows []T, amount func(T) decimal.Decimal) (in, out decimal.Decimal) {
	for _, r := range rows {
		a := amount(r)
		if a.IsNegative() {
			in = in.Add(a)
		} else {
			out = out.Add(a)
		}
	}
	return in, out
}
