package reports

import (
	"context"
	"fmt"
	"io"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/money"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const balanceSheetName = "Balances"

var balanceHeadings = []string{
	"Date", "Currency",
	"Start Cash", "Start Non-Cash",
	"Cash Inflows", "Cash Outflows",
	"Non-Cash Inflows", "Non-Cash Outflows",
	"Net Market Flows",
	"Cash Adjustments", "Non-Cash Adjustments",
	"End Cash", "End Non-Cash",
	"End Balance", "Formatted",
}

func balanceCells(b models.Balance) []interface{} {
	f := func(d decimal.Decimal) float64 { return d.InexactFloat64() }
	return []interface{}{
		b.Date.Format("2006-01-02"), b.Currency,
		f(b.StartCashBalance), f(b.StartNonCashBalance),
		f(b.CashInflows), f(b.CashOutflows),
		f(b.NonCashInflows), f(b.NonCashOutflows),
		f(b.NetMarketFlows),
		f(b.CashAdjustments), f(b.NonCashAdjustments),
		f(b.EndCashBalance()), f(b.EndNonCashBalance()),
		f(b.EndBalance()), money.Format(b.EndBalance(), b.Currency),
	}
}

// BalanceWorkbook lays out one row per balance with every component.
func BalanceWorkbook(balances []models.Balance) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", balanceSheetName); err != nil {
		return nil, err
	}
	for i, h := range balanceHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(balanceSheetName, cell, h); err != nil {
			return nil, err
		}
	}
	for r, b := range balances {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return nil, err
		}
		cells := balanceCells(b)
		if err := f.SetSheetRow(balanceSheetName, cell, &cells); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// ExportBalances writes the balance history of an account as xlsx to w.
func ExportBalances(ctx context.Context, db *gorm.DB, accountId int, w io.Writer) (int, error) {
	ctx, span := tracer.Start(ctx, "reports.ExportBalances")
	defer span.End()

	var balances []models.Balance
	if err := db.WithContext(ctx).Where("account_id = ?", accountId).Order("date, currency").Find(&balances).Error; err != nil {
		return 0, err
	}
	f, err := BalanceWorkbook(balances)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	return len(balances), nil
}
