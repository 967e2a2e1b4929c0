package installments

import (
	"errors"
	"fmt"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

var (
	ErrNotInstallment = errors.New("transaction has no installment total above 1")
	ErrInvalidCurrent = errors.New("installment current is outside 1..total")
)

// amountScale matches the decimal(20,4) amount column.
const amountScale = 4

// InstallmentName is "<name> (i/total)".
func InstallmentName(base string, number, total int) string {
	return fmt.Sprintf("%s (%d/%d)", base, number, total)
}

// Build returns the unsaved siblings that follow parent in its series, numbered
// current+1..total. Each is |amount|/total with the parent's sign, dated (i-current)
// months after the parent with the day clamped to the target month.
// A missing current is treated as 1.
func Build(parent models.Transaction) ([]models.Transaction, error) {
	if parent.InstallmentTotal == nil || *parent.InstallmentTotal <= 1 {
		return nil, ErrNotInstallment
	}
	total := *parent.InstallmentTotal
	current := 1
	if parent.InstallmentCurrent != nil {
		current = *parent.InstallmentCurrent
	}
	if current < 1 || current > total {
		return nil, ErrInvalidCurrent
	}

	each := parent.Amount.Abs().Div(decimal.NewFromInt(int64(total))).Round(amountScale)
	if parent.Amount.IsNegative() {
		each = each.Neg()
	}
	root := parent.SeriesRootId()

	out := make([]models.Transaction, 0, total-current)
	for i := current + 1; i <= total; i++ {
		number, t, r := i, total, root
		out = append(out, models.Transaction{
			AccountId:          parent.AccountId,
			Date:               utils.AddMonthsClamped(parent.Date, i-current),
			Amount:             each,
			Currency:           parent.Currency,
			Name:               InstallmentName(parent.Name, i, total),
			Notes:              parent.Notes,
			Kind:               parent.Kind,
			CategoryId:         parent.CategoryId,
			MerchantId:         parent.MerchantId,
			InstallmentCurrent: &number,
			InstallmentTotal:   &t,
			OriginalPurchaseId: &r,
		})
	}
	return out, nil
}
