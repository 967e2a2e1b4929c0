package transfers

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/money"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

// Candidate is one unlinked standard transaction that could be a transfer leg.
type Candidate struct {
	TransactionId int
	AccountId     int
	AccountType   models.AccountableType
	Date          time.Time
	Amount        decimal.Decimal
	Currency      string
}

func candidateFrom(t models.Transaction, accountType models.AccountableType) Candidate {
	return Candidate{
		TransactionId: t.ID,
		AccountId:     t.AccountId,
		AccountType:   accountType,
		Date:          t.Date,
		Amount:        t.Amount,
		Currency:      t.Currency,
	}
}

// Pair is a proposed transfer.
type Pair struct {
	Inflow   Candidate
	Outflow  Candidate
	DateDiff int
}

// Pairer decides which outflow, if any, completes each inflow.
type Pairer struct {
	WindowDays int
	Tolerance  decimal.Decimal
	Converter  *money.Converter
}

// Pair proposes at most one outflow per inflow: the first in outflows order that sits in
// another account, within the date window and with a matching amount. The result is sorted
// by date distance, ties keeping inflow order. Two inflows may propose the same outflow;
// Claim resolves that.
func (p Pairer) Pair(ctx context.Context, inflows, outflows []Candidate) ([]Pair, error) {
	var pairs []Pair
	for _, in := range inflows {
		for _, out := range outflows {
			if out.AccountId == in.AccountId {
				continue
			}
			diff := utils.AbsDaysBetween(in.Date, out.Date)
			if diff > p.WindowDays {
				continue
			}
			ok, err := p.amountsMatch(ctx, in, out)
			if err != nil {
				return nil, err
			}
			if ok {
				pairs = append(pairs, Pair{Inflow: in, Outflow: out, DateDiff: diff})
				break
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].DateDiff < pairs[j].DateDiff })
	return pairs, nil
}

// amountsMatch requires exact cancellation in one currency. Across currencies the outflow
// is converted at its date's rate and must land within tolerance of the inflow; a missing
// rate is simply no match.
func (p Pairer) amountsMatch(ctx context.Context, in, out Candidate) (bool, error) {
	if in.Currency == out.Currency {
		return in.Amount.Add(out.Amount).IsZero(), nil
	}
	if p.Converter == nil {
		return false, nil
	}
	inflowAbs := in.Amount.Abs()
	if inflowAbs.IsZero() {
		return false, nil
	}
	rate, err := p.Converter.Rate(ctx, out.Currency, in.Currency, out.Date, nil)
	if err != nil {
		if errors.Is(err, money.ErrConversion) {
			return false, nil
		}
		return false, err
	}
	ratio := out.Amount.Abs().Mul(rate).Div(inflowAbs)
	one := decimal.NewFromInt(1)
	return ratio.GreaterThanOrEqual(one.Sub(p.Tolerance)) && ratio.LessThanOrEqual(one.Add(p.Tolerance)), nil
}

// claimSet tracks transaction ids already used by a transfer in this run.
type claimSet map[int]struct{}

func (c claimSet) free(p Pair) bool {
	_, in := c[p.Inflow.TransactionId]
	_, out := c[p.Outflow.TransactionId]
	return !in && !out
}

func (c claimSet) take(p Pair) {
	c[p.Inflow.TransactionId] = struct{}{}
	c[p.Outflow.TransactionId] = struct{}{}
}

// Claim walks pairs in order and keeps those whose legs are both still unused.
func Claim(pairs []Pair) []Pair {
	used := claimSet{}
	var out []Pair
	for _, pr := range pairs {
		if !used.free(pr) {
			continue
		}
		used.take(pr)
		out = append(out, pr)
	}
	return out
}

// OutflowKind is the kind given to the paying leg, based on the account it leaves.
func OutflowKind(accountType models.AccountableType) models.TransactionKind {
	switch accountType {
	case models.AccountableTypeLoan:
		return models.TransactionKindLoanPayment
	case models.AccountableTypeCreditCard:
		return models.TransactionKindCcPayment
	}
	return models.TransactionKindFundsMovement
}
