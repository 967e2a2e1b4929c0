package installments_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/installments"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/testenv"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

func TestInstallmentSeriesLifecycle(t *testing.T) {
	testenv.Setup(t, false)

	ctx := utils.SetUserIdInContext(context.Background(), 1)
	db := config.GetDB()

	card, err := models.CreateAccount(ctx, &models.NewAccount{Name: "Card", AccountableType: models.AccountableTypeCreditCard})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	total := 3
	parent := models.Transaction{
		AccountId:        card.ID,
		Date:             time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Amount:           decimal.NewFromInt(1200),
		Currency:         "BRL",
		Name:             "TV",
		Kind:             models.TransactionKindStandard,
		InstallmentTotal: &total,
	}
	if err := db.Create(&parent).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	gen := installments.NewGenerator(db, nil, config.GetLogger())
	created, err := gen.GenerateInstallments(ctx, parent.ID)
	if err != nil {
		t.Fatalf("GenerateInstallments: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 installments, got %d", len(created))
	}

	var reloaded models.Transaction
	db.First(&reloaded, parent.ID)
	if reloaded.InstallmentCurrent == nil || *reloaded.InstallmentCurrent != 1 {
		t.Fatalf("parent should be stamped as installment 1")
	}

	if _, err := gen.GenerateInstallments(ctx, parent.ID); !errors.Is(err, installments.ErrAlreadyGenerated) {
		t.Fatalf("expected ErrAlreadyGenerated, got %v", err)
	}

	if err := db.Model(&reloaded).Updates(map[string]interface{}{"name": "Smart TV", "notes": "sala"}).Error; err != nil {
		t.Fatalf("rename parent: %v", err)
	}
	n, err := gen.UpdateInstallmentSeries(ctx, parent.ID)
	if err != nil || n != 2 {
		t.Fatalf("UpdateInstallmentSeries = %d, %v", n, err)
	}
	var sibling models.Transaction
	db.First(&sibling, created[1].ID)
	if sibling.Name != "Smart TV (3/3)" || sibling.Notes != "sala" {
		t.Fatalf("sibling not updated: %q %q", sibling.Name, sibling.Notes)
	}
	if !sibling.Amount.Equal(decimal.NewFromInt(400)) || sibling.Date.Format("2006-01-02") != "2024-03-15" {
		t.Fatalf("date and amount must stay fixed: %s %s", sibling.Amount, sibling.Date)
	}

	n, err = gen.DeleteInstallmentSeries(ctx, parent.ID)
	if err != nil || n != 2 {
		t.Fatalf("DeleteInstallmentSeries = %d, %v", n, err)
	}
	var left int64
	db.Model(&models.Transaction{}).Where("original_purchase_id = ?", parent.ID).Count(&left)
	if left != 0 {
		t.Fatalf("expected siblings deleted, %d left", left)
	}

	batch := gen.GenerateBatch(ctx, []int{parent.ID, 987654})
	if batch.Generated != 1 || batch.Created != 2 || len(batch.Skipped) != 1 {
		t.Fatalf("unexpected batch result %+v", batch)
	}
}
