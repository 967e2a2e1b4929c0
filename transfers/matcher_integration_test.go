package transfers_test

import (
	"context"
	"testing"

	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/testenv"
	"github.com/mmdatafocus/ledger_backend/transfers"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

func TestAutoMatchTransfers(t *testing.T) {
	testenv.Setup(t, false)

	ctx := utils.SetUserIdInContext(context.Background(), 1)
	db := config.GetDB()

	checking, err := models.CreateAccount(ctx, &models.NewAccount{Name: "Checking", AccountableType: models.AccountableTypeDepository, Currency: "BRL"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	card, err := models.CreateAccount(ctx, &models.NewAccount{Name: "Card", AccountableType: models.AccountableTypeCreditCard, Currency: "BRL"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	day10 := utils.Today().AddDate(0, 0, -20)
	inflow := models.Transaction{AccountId: card.ID, Date: day10, Amount: decimal.NewFromInt(-100), Currency: "BRL", Name: "Payment received", Kind: models.TransactionKindStandard}
	outflow := models.Transaction{AccountId: checking.ID, Date: day10.AddDate(0, 0, 2), Amount: decimal.NewFromInt(100), Currency: "BRL", Name: "Card payment", Kind: models.TransactionKindStandard}
	sameAccount := models.Transaction{AccountId: checking.ID, Date: day10, Amount: decimal.NewFromInt(-100), Currency: "BRL", Name: "Refund", Kind: models.TransactionKindStandard}
	for _, txn := range []*models.Transaction{&inflow, &outflow, &sameAccount} {
		if err := db.Create(txn).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	m := transfers.NewMatcher(db, config.GetLogger())
	res, err := m.AutoMatchTransfers(ctx, 1)
	if err != nil {
		t.Fatalf("AutoMatchTransfers: %v", err)
	}
	if res.Created != 1 {
		t.Fatalf("expected 1 transfer, got %d (%v)", res.Created, res.Errors)
	}

	var tr models.Transfer
	if err := db.First(&tr).Error; err != nil {
		t.Fatalf("load transfer: %v", err)
	}
	if tr.InflowTransactionId != inflow.ID || tr.OutflowTransactionId != outflow.ID || tr.Status != models.TransferStatusMatched {
		t.Fatalf("unexpected transfer %+v", tr)
	}

	var in, out models.Transaction
	db.First(&in, inflow.ID)
	db.First(&out, outflow.ID)
	if in.Kind != models.TransactionKindFundsMovement {
		t.Fatalf("inflow kind = %s", in.Kind)
	}
	if out.Kind != models.TransactionKindFundsMovement {
		t.Fatalf("outflow from a depository should be a funds movement, got %s", out.Kind)
	}

	again, err := m.AutoMatchTransfers(ctx, 1)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if again.Created != 0 {
		t.Fatalf("second run should match nothing, got %d", again.Created)
	}
}
